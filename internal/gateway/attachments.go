package gateway

import (
	"context"

	"github.com/inkpad-notes/chatcore/internal/chat"
)

// Attachments issues filtered CRUD against the attachments table.
type Attachments struct {
	store Store
}

// NewAttachments wraps store.
func NewAttachments(store Store) *Attachments {
	return &Attachments{store: store}
}

// ForMessages batch-fetches the attachments of all given message ids in one
// query, avoiding a per-message round trip.
func (a *Attachments) ForMessages(ctx context.Context, messageIDs []string) ([]chat.Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := a.store.Query(ctx, TableAttachments,
		Where(In("message_id", messageIDs)),
		[]Order{{Column: "created_at"}}, 0, 0)
	if err != nil {
		return nil, err
	}
	atts := make([]chat.Attachment, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, DecodeAttachment(row))
	}
	return atts, nil
}

// Create inserts the attachment row.
func (a *Attachments) Create(ctx context.Context, att chat.Attachment) (chat.Attachment, error) {
	row, err := a.store.Insert(ctx, TableAttachments, encodeAttachment(att))
	if err != nil {
		return chat.Attachment{}, err
	}
	return DecodeAttachment(row), nil
}

// Delete removes the attachment row.
func (a *Attachments) Delete(ctx context.Context, id string) error {
	return a.store.Delete(ctx, TableAttachments, Where(Eq("id", id)))
}

func encodeAttachment(a chat.Attachment) Row {
	return Row{
		"id":           a.ID,
		"message_id":   a.MessageID,
		"file_name":    a.FileName,
		"file_size":    a.FileSize,
		"mime_type":    a.MimeType,
		"storage_path": a.StoragePath,
		"created_at":   a.CreatedAt,
	}
}

// DecodeAttachment converts a raw row into the domain struct.
func DecodeAttachment(row Row) chat.Attachment {
	return chat.Attachment{
		ID:          rowString(row, "id"),
		MessageID:   rowString(row, "message_id"),
		FileName:    rowString(row, "file_name"),
		FileSize:    rowInt64(row, "file_size"),
		MimeType:    rowString(row, "mime_type"),
		StoragePath: rowString(row, "storage_path"),
		CreatedAt:   rowInt64(row, "created_at"),
	}
}
