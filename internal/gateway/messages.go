package gateway

import (
	"context"
	"time"

	"github.com/inkpad-notes/chatcore/internal/chat"
)

// Messages issues filtered CRUD against the messages table.
type Messages struct {
	store Store
}

// NewMessages wraps store.
func NewMessages(store Store) *Messages {
	return &Messages{store: store}
}

// Page fetches up to limit messages between the two users, newest first
// ordered by (created_at, id) descending, starting at offset. The caller
// reverses the page for display; using the same tiebreak in both directions
// keeps a message from shifting position between refreshes.
func (m *Messages) Page(ctx context.Context, userA, userB string, limit, offset int) ([]chat.Message, error) {
	rows, err := m.store.Query(ctx, TableMessages,
		Filter{Any: [][]Cond{
			{Eq("sender_id", userA), Eq("recipient_id", userB)},
			{Eq("sender_id", userB), Eq("recipient_id", userA)},
		}},
		[]Order{
			{Column: "created_at", Desc: true},
			{Column: "id", Desc: true},
		}, limit, offset)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, DecodeMessage(row))
	}
	return msgs, nil
}

// Get returns the message by id, or nil when absent.
func (m *Messages) Get(ctx context.Context, id string) (*chat.Message, error) {
	rows, err := m.store.Query(ctx, TableMessages, Where(Eq("id", id)), nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	msg := DecodeMessage(rows[0])
	return &msg, nil
}

// Create inserts the message row.
func (m *Messages) Create(ctx context.Context, msg chat.Message) (chat.Message, error) {
	row, err := m.store.Insert(ctx, TableMessages, encodeMessage(msg))
	if err != nil {
		return chat.Message{}, err
	}
	return DecodeMessage(row), nil
}

// MarkRead flips read false→true on every unread message addressed to
// readerID in the conversation. The read=0 filter makes a second call match
// nothing, so the transition is one-way and idempotent.
func (m *Messages) MarkRead(ctx context.Context, conversationID, readerID string) ([]chat.Message, error) {
	rows, err := m.store.Update(ctx, TableMessages,
		Where(
			Eq("conversation_id", conversationID),
			Eq("recipient_id", readerID),
			Eq("read", int64(0)),
		),
		Row{"read": int64(1), "updated_at": time.Now().UnixMilli()})
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, DecodeMessage(row))
	}
	return msgs, nil
}

// SetContent rewrites the message body and bumps updated_at.
func (m *Messages) SetContent(ctx context.Context, id, content string) error {
	_, err := m.store.Update(ctx, TableMessages, Where(Eq("id", id)), Row{
		"content":    content,
		"updated_at": time.Now().UnixMilli(),
	})
	return err
}

// Delete removes the message row. Attachment rows cascade at the store.
func (m *Messages) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, TableMessages, Where(Eq("id", id)))
}

// UnreadCount counts messages in the conversation still unread by userID.
func (m *Messages) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	rows, err := m.store.Query(ctx, TableMessages,
		Where(
			Eq("conversation_id", conversationID),
			Eq("recipient_id", userID),
			Eq("read", int64(0)),
		), nil, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func encodeMessage(m chat.Message) Row {
	read := int64(0)
	if m.Read {
		read = 1
	}
	return Row{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"recipient_id":    m.RecipientID,
		"content":         m.Content,
		"read":            read,
		"reply_to_id":     m.ReplyToID,
		"created_at":      m.CreatedAt,
		"updated_at":      m.UpdatedAt,
	}
}

// DecodeMessage converts a raw row into the domain struct. Attachments are
// not part of the row; callers attach them separately.
func DecodeMessage(row Row) chat.Message {
	return chat.Message{
		ID:             rowString(row, "id"),
		ConversationID: rowString(row, "conversation_id"),
		SenderID:       rowString(row, "sender_id"),
		RecipientID:    rowString(row, "recipient_id"),
		Content:        rowString(row, "content"),
		Read:           rowBool(row, "read"),
		ReplyToID:      rowString(row, "reply_to_id"),
		CreatedAt:      rowInt64(row, "created_at"),
		UpdatedAt:      rowInt64(row, "updated_at"),
	}
}
