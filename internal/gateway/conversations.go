package gateway

import (
	"context"

	"github.com/inkpad-notes/chatcore/internal/chat"
)

// Conversations issues filtered CRUD against the conversations table.
type Conversations struct {
	store Store
}

// NewConversations wraps store.
func NewConversations(store Store) *Conversations {
	return &Conversations{store: store}
}

// ForUser returns every conversation the user participates in, most recently
// updated first.
func (c *Conversations) ForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := c.store.Query(ctx, TableConversations,
		Filter{Any: [][]Cond{
			{Eq("user_a", userID)},
			{Eq("user_b", userID)},
		}},
		[]Order{{Column: "updated_at", Desc: true}}, 0, 0)
	if err != nil {
		return nil, err
	}
	convs := make([]chat.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, DecodeConversation(row))
	}
	return convs, nil
}

// ForPair looks up the conversation for an unordered user pair.
func (c *Conversations) ForPair(ctx context.Context, a, b string) (*chat.Conversation, error) {
	ua, ub := chat.CanonicalPair(a, b)
	rows, err := c.store.Query(ctx, TableConversations,
		Where(Eq("user_a", ua), Eq("user_b", ub)), nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	conv := DecodeConversation(rows[0])
	return &conv, nil
}

// Create inserts the conversation row. Returns ErrConflict when the pair
// already exists.
func (c *Conversations) Create(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	row, err := c.store.Insert(ctx, TableConversations, encodeConversation(conv))
	if err != nil {
		return chat.Conversation{}, err
	}
	return DecodeConversation(row), nil
}

// Touch bumps the conversation's last-message snapshot and updated_at.
func (c *Conversations) Touch(ctx context.Context, id, preview string, now int64) error {
	_, err := c.store.Update(ctx, TableConversations, Where(Eq("id", id)), Row{
		"last_message": preview,
		"updated_at":   now,
	})
	return err
}

func encodeConversation(c chat.Conversation) Row {
	return Row{
		"id":           c.ID,
		"user_a":       c.UserA,
		"user_b":       c.UserB,
		"last_message": c.LastMessage,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}
}

// DecodeConversation converts a raw row into the domain struct.
func DecodeConversation(row Row) chat.Conversation {
	return chat.Conversation{
		ID:          rowString(row, "id"),
		UserA:       rowString(row, "user_a"),
		UserB:       rowString(row, "user_b"),
		LastMessage: rowString(row, "last_message"),
		CreatedAt:   rowInt64(row, "created_at"),
		UpdatedAt:   rowInt64(row, "updated_at"),
	}
}
