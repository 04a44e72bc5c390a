// Package pager fetches conversation history in fixed-size offset windows
// and owns the in-memory timeline of the selected conversation.
package pager

import (
	"context"
	"fmt"
	"sync"

	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Pager pages through message history for one user's session. All state is
// scoped to the currently selected conversation and replaced wholesale on
// switch.
type Pager struct {
	userID      string
	messages    *gateway.Messages
	attachments *gateway.Attachments
	logger      *zap.Logger
	pageSize    int

	mu       sync.Mutex
	selected string // conversation id, "" when none
	peer     string
	offset   int
	hasMore  bool
	timeline Timeline
}

// New creates a pager for userID with the given page size.
func New(userID string, messages *gateway.Messages, attachments *gateway.Attachments, pageSize int, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Pager{
		userID:      userID,
		messages:    messages,
		attachments: attachments,
		logger:      logger,
		pageSize:    pageSize,
	}
}

// GetMessagesBetweenUsers fetches one page of history with otherUserID:
// up to pageSize messages starting at offset, newest first at the store,
// reversed to chronological order, with all attachments for the page fetched
// in a single batch query. An attachment fetch failure degrades to messages
// with empty attachment lists instead of failing the page.
func (p *Pager) GetMessagesBetweenUsers(ctx context.Context, otherUserID string, pageSize, offset int) ([]chat.Message, error) {
	msgs, err := p.messages.Page(ctx, p.userID, otherUserID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch message page: %w", err)
	}
	lo.Reverse(msgs)

	ids := lo.Map(msgs, func(m chat.Message, _ int) string { return m.ID })
	atts, err := p.attachments.ForMessages(ctx, ids)
	if err != nil {
		p.logger.Warn("attachment fetch failed, returning page without attachments", zap.Error(err))
		return msgs, nil
	}
	byMessage := lo.GroupBy(atts, func(a chat.Attachment) string { return a.MessageID })
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
	}
	return msgs, nil
}

// Select points the pager at a conversation and clears pagination state.
func (p *Pager) Select(conversationID, otherUserID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = conversationID
	p.peer = otherUserID
	p.resetLocked()
}

// ResetPaginationState zeroes the offset and clears the no-more-history
// flag for the selected conversation.
func (p *Pager) ResetPaginationState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pager) resetLocked() {
	p.offset = 0
	p.hasMore = true
	p.timeline.Replace(nil)
}

// LoadNewest fetches the newest page for the selected conversation and
// replaces the timeline. A response for a conversation that is no longer
// selected is discarded.
func (p *Pager) LoadNewest(ctx context.Context) error {
	p.mu.Lock()
	convID, peer := p.selected, p.peer
	p.mu.Unlock()
	if convID == "" {
		return nil
	}

	page, err := p.GetMessagesBetweenUsers(ctx, peer, p.pageSize, 0)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != convID {
		// Stale response for an abandoned conversation.
		return nil
	}
	p.timeline.Replace(page)
	p.offset = 0
	p.hasMore = len(page) == p.pageSize
	return nil
}

// LoadMoreMessages advances the window one page into history and prepends
// the older page to the timeline. A page shorter than the page size marks
// the history as exhausted.
func (p *Pager) LoadMoreMessages(ctx context.Context) error {
	p.mu.Lock()
	if p.selected == "" || !p.hasMore {
		p.mu.Unlock()
		return nil
	}
	convID, peer := p.selected, p.peer
	offset := p.offset + p.pageSize
	p.mu.Unlock()

	page, err := p.GetMessagesBetweenUsers(ctx, peer, p.pageSize, offset)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != convID {
		return nil
	}
	p.offset = offset
	p.timeline.PrependOlder(page)
	if len(page) < p.pageSize {
		p.hasMore = false
	}
	return nil
}

// Append merges a realtime insert into the timeline. Events for a
// conversation other than the selected one are discarded; duplicate delivery
// collapses by message id.
func (p *Pager) Append(msg chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.ConversationID != p.selected {
		return
	}
	p.timeline.Insert(msg)
}

// Patch applies a realtime update to the matching timeline message, if
// present.
func (p *Pager) Patch(msg chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.ConversationID != p.selected {
		return
	}
	p.timeline.Patch(msg)
}

// Remove drops a locally deleted message from the timeline.
func (p *Pager) Remove(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeline.Remove(messageID)
}

// RemoveAttachment filters a deleted attachment out of the timeline.
func (p *Pager) RemoveAttachment(attachmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeline.RemoveAttachment(attachmentID)
}

// Timeline returns a copy of the current window, oldest first.
func (p *Pager) Timeline() []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline.Snapshot()
}

// HasMore reports whether older history may exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Selected returns the selected conversation id, or "".
func (p *Pager) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}
