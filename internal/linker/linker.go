// Package linker writes messages with file attachments and reconciles the
// race between a message becoming visible and its attachment rows
// committing.
package linker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/inkpad-notes/chatcore/internal/blob"
	"github.com/inkpad-notes/chatcore/internal/blob/fsblob"
	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"go.uber.org/zap"
)

// File is one attachment to send: a name, an optional declared MIME type,
// and the bytes.
type File struct {
	Name   string
	Type   string
	Reader io.Reader
}

// Linker couples the message/attachment tables with the blob store.
type Linker struct {
	messages      *gateway.Messages
	attachments   *gateway.Attachments
	conversations *gateway.Conversations
	blobs         blob.Store
	logger        *zap.Logger

	retryAttempts int
	retryDelay    time.Duration
}

// New creates a linker. attempts and delay bound the receive-side attachment
// resolution retry.
func New(messages *gateway.Messages, attachments *gateway.Attachments, conversations *gateway.Conversations, blobs blob.Store, attempts int, delay time.Duration, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Linker{
		messages:      messages,
		attachments:   attachments,
		conversations: conversations,
		blobs:         blobs,
		logger:        logger,
		retryAttempts: attempts,
		retryDelay:    delay,
	}
}

// SendMessageWithAttachments inserts the message row, then uploads each file
// and inserts its attachment row, then bumps the conversation snapshot.
// Uploads run sequentially; a failed upload is logged and skipped, never
// rolling the message back. The window between the message insert and the
// attachment inserts is exactly the race ResolveAttachments covers on the
// receive side.
func (l *Linker) SendMessageWithAttachments(ctx context.Context, conversationID, senderID, recipientID, text string, files []File) (chat.Message, error) {
	now := time.Now().UnixMilli()
	msg, err := l.messages.Create(ctx, chat.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        text,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	for _, f := range files {
		att, err := l.uploadOne(ctx, conversationID, msg.ID, f)
		if err != nil {
			l.logger.Error("attachment upload failed, skipping",
				zap.Error(err),
				zap.String("message_id", msg.ID),
				zap.String("file", f.Name))
			continue
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	preview := chat.TruncatePreview(text)
	if preview == "" && len(files) > 0 {
		preview = files[0].Name
	}
	if err := l.conversations.Touch(ctx, conversationID, preview, time.Now().UnixMilli()); err != nil {
		l.logger.Error("conversation bump failed", zap.Error(err), zap.String("conversation_id", conversationID))
	}
	return msg, nil
}

func (l *Linker) uploadOne(ctx context.Context, conversationID, messageID string, f File) (chat.Attachment, error) {
	mtype := f.Type
	rdr := f.Reader
	if mtype == "" {
		detected, replay, err := fsblob.DetectType(rdr)
		if err != nil {
			return chat.Attachment{}, fmt.Errorf("detect type: %w", err)
		}
		mtype, rdr = detected, replay
	}

	path := fmt.Sprintf("conversations/%s/%s/%s", conversationID, messageID, f.Name)
	size, err := l.blobs.Upload(ctx, path, rdr)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload blob: %w", err)
	}

	att, err := l.attachments.Create(ctx, chat.Attachment{
		ID:          uuid.New().String(),
		MessageID:   messageID,
		FileName:    f.Name,
		FileSize:    size,
		MimeType:    mtype,
		StoragePath: path,
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("insert attachment row: %w", err)
	}
	return att, nil
}

// ResolveAttachments fetches the attachments of a message that just became
// visible. Because attachment rows commit after the message row, an empty
// result may mean "not yet": the fetch retries with a short delay, and only
// the final attempt accepts empty as the answer. Bounded so the caller never
// blocks indefinitely.
func (l *Linker) ResolveAttachments(ctx context.Context, messageID string) []chat.Attachment {
	for attempt := 1; ; attempt++ {
		atts, err := l.attachments.ForMessages(ctx, []string{messageID})
		if err != nil {
			l.logger.Warn("attachment resolution fetch failed",
				zap.Error(err), zap.String("message_id", messageID), zap.Int("attempt", attempt))
		} else if len(atts) > 0 {
			return atts
		}
		if attempt >= l.retryAttempts {
			return nil
		}
		select {
		case <-time.After(l.retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// DeleteAttachment removes the blob, then the metadata row. Order matters:
// a failed blob removal keeps the row so the blob stays discoverable for
// manual cleanup.
func (l *Linker) DeleteAttachment(ctx context.Context, attachmentID, storagePath string) error {
	if err := l.blobs.Remove(ctx, storagePath); err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := l.attachments.Delete(ctx, attachmentID); err != nil {
		return fmt.Errorf("remove attachment row: %w", err)
	}
	return nil
}
