// Package directory owns the conversation list: loading it for the current
// user and lazily creating two-party conversations.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Directory tracks the ordered conversation list for one user.
type Directory struct {
	userID        string
	conversations *gateway.Conversations
	logger        *zap.Logger

	mu   sync.Mutex
	list []chat.Conversation
}

// New creates a directory for userID.
func New(userID string, conversations *gateway.Conversations, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{userID: userID, conversations: conversations, logger: logger}
}

// LoadConversations fetches every conversation the user participates in,
// newest activity first, and replaces the in-memory list wholesale.
func (d *Directory) LoadConversations(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := d.conversations.ForUser(ctx, d.userID)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	d.mu.Lock()
	d.list = convs
	d.mu.Unlock()
	return convs, nil
}

// GetOrCreateConversation returns the conversation with otherUserID,
// creating it when absent. Safe to call concurrently by both participants:
// the canonical pair ordering plus the store's uniqueness constraint mean a
// losing insert re-reads and returns the winner's row.
func (d *Directory) GetOrCreateConversation(ctx context.Context, otherUserID string) (chat.Conversation, error) {
	existing, err := d.conversations.ForPair(ctx, d.userID, otherUserID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("lookup conversation: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	ua, ub := chat.CanonicalPair(d.userID, otherUserID)
	now := time.Now().UnixMilli()
	created, err := d.conversations.Create(ctx, chat.Conversation{
		ID:        uuid.New().String(),
		UserA:     ua,
		UserB:     ub,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil {
		d.remember(created)
		return created, nil
	}
	if !errors.Is(err, gateway.ErrConflict) {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	// Lost the creation race; the other participant's row wins.
	winner, err := d.conversations.ForPair(ctx, d.userID, otherUserID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("reread conversation: %w", err)
	}
	if winner == nil {
		// Should not happen: the conflicting row vanished between the insert
		// and the re-read. Hand back a placeholder so the caller can render.
		d.logger.Warn("conversation re-read came back empty after conflict",
			zap.String("user_a", ua), zap.String("user_b", ub))
		return chat.Conversation{ID: uuid.New().String(), UserA: ua, UserB: ub, CreatedAt: now, UpdatedAt: now}, nil
	}
	d.remember(*winner)
	return *winner, nil
}

// Conversations returns a copy of the current conversation list.
func (d *Directory) Conversations() []chat.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]chat.Conversation, len(d.list))
	copy(out, d.list)
	return out
}

// PartnerIDs returns the other participant of each listed conversation.
func (d *Directory) PartnerIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.Uniq(lo.Map(d.list, func(c chat.Conversation, _ int) string {
		return c.Partner(d.userID)
	}))
}

func (d *Directory) remember(conv chat.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.list {
		if c.ID == conv.ID {
			return
		}
	}
	d.list = append([]chat.Conversation{conv}, d.list...)
}
