package linker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkpad-notes/chatcore/internal/blob/fsblob"
	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/gateway/sqlitestore"
	"github.com/stretchr/testify/require"
)

type harness struct {
	messages      *gateway.Messages
	attachments   *gateway.Attachments
	conversations *gateway.Conversations
	blobs         *fsblob.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"), bus.New())
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := fsblob.New(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		messages:      gateway.NewMessages(db),
		attachments:   gateway.NewAttachments(db),
		conversations: gateway.NewConversations(db),
		blobs:         blobs,
	}
	now := time.Now().UnixMilli()
	_, err = h.conversations.Create(context.Background(), chat.Conversation{
		ID: "c1", UserA: "amy", UserB: "bob", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) linker(t *testing.T, attempts int, delay time.Duration) *Linker {
	t.Helper()
	return New(h.messages, h.attachments, h.conversations, h.blobs, attempts, delay, nil)
}

// failingBlobs rejects every operation.
type failingBlobs struct{}

func (failingBlobs) Upload(context.Context, string, io.Reader) (int64, error) {
	return 0, errors.New("storage unavailable")
}
func (failingBlobs) Remove(context.Context, string) error { return errors.New("storage unavailable") }
func (failingBlobs) URL(string) string                    { return "" }

func TestSendMessageWithAttachments(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	l := h.linker(t, 3, time.Millisecond)

	msg, err := l.SendMessageWithAttachments(ctx, "c1", "amy", "bob", "see attached", []File{
		{Name: "notes.txt", Reader: strings.NewReader("plain text contents")},
		{Name: "report.csv", Type: "text/csv", Reader: strings.NewReader("a,b\n1,2\n")},
	})
	req.NoError(err)
	req.Len(msg.Attachments, 2)
	req.NotEmpty(msg.Attachments[0].MimeType, "type is sniffed when not declared")
	req.Equal("text/csv", msg.Attachments[1].MimeType)
	req.Equal(int64(19), msg.Attachments[0].FileSize)

	rows, err := h.attachments.ForMessages(ctx, []string{msg.ID})
	req.NoError(err)
	req.Len(rows, 2)

	// Snapshot on the conversation is bumped.
	convs, err := h.conversations.ForUser(ctx, "amy")
	req.NoError(err)
	req.Len(convs, 1)
	req.Equal("see attached", convs[0].LastMessage)
}

func TestSendSkipsFailedUploads(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	l := New(h.messages, h.attachments, h.conversations, failingBlobs{}, 3, time.Millisecond, nil)

	msg, err := l.SendMessageWithAttachments(ctx, "c1", "amy", "bob", "hello", []File{
		{Name: "broken.bin", Type: "application/octet-stream", Reader: strings.NewReader("xx")},
	})
	req.NoError(err, "a failed upload never rolls the message back")
	req.Empty(msg.Attachments)

	got, err := h.messages.Get(ctx, msg.ID)
	req.NoError(err)
	req.Equal("hello", got.Content)
	rows, err := h.attachments.ForMessages(ctx, []string{msg.ID})
	req.NoError(err)
	req.Empty(rows)
}

func TestSendPreviewFallsBackToFileName(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	l := h.linker(t, 3, time.Millisecond)

	_, err := l.SendMessageWithAttachments(ctx, "c1", "amy", "bob", "", []File{
		{Name: "photo.png", Type: "image/png", Reader: strings.NewReader("not a real png")},
	})
	req.NoError(err)

	convs, err := h.conversations.ForUser(ctx, "amy")
	req.NoError(err)
	req.Equal("photo.png", convs[0].LastMessage)
}

func TestResolveAttachmentsWaitsForLateRows(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	l := h.linker(t, 5, 20*time.Millisecond)

	msg, err := h.messages.Create(ctx, chat.Message{
		ID: "m1", ConversationID: "c1", SenderID: "amy", RecipientID: "bob",
		Content: "racing", CreatedAt: 1, UpdatedAt: 1,
	})
	req.NoError(err)

	// The attachment row lands after the message is already visible.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = h.attachments.Create(ctx, chat.Attachment{
			ID: "a1", MessageID: "m1", FileName: "late.txt", StoragePath: "p", CreatedAt: 2,
		})
	}()

	atts := l.ResolveAttachments(ctx, msg.ID)
	req.Len(atts, 1)
	req.Equal("a1", atts[0].ID)
}

func TestResolveAttachmentsGivesUpAfterBoundedRetries(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	l := h.linker(t, 3, 5*time.Millisecond)

	start := time.Now()
	atts := l.ResolveAttachments(context.Background(), "nonexistent")
	req.Nil(atts)
	req.Less(time.Since(start), 500*time.Millisecond, "resolution is bounded")
}

func TestResolveAttachmentsHonorsContextCancel(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	l := h.linker(t, 10, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	req.Nil(l.ResolveAttachments(ctx, "nonexistent"))
	req.Less(time.Since(start), time.Second)
}

func TestDeleteAttachmentBlobFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	l := h.linker(t, 3, time.Millisecond)

	msg, err := l.SendMessageWithAttachments(ctx, "c1", "amy", "bob", "x", []File{
		{Name: "doc.txt", Type: "text/plain", Reader: strings.NewReader("bytes")},
	})
	req.NoError(err)
	req.Len(msg.Attachments, 1)
	att := msg.Attachments[0]

	req.NoError(l.DeleteAttachment(ctx, att.ID, att.StoragePath))
	rows, err := h.attachments.ForMessages(ctx, []string{msg.ID})
	req.NoError(err)
	req.Empty(rows)

	// Deleting again: blob removal tolerates a missing file, row delete is a
	// no-op.
	req.NoError(l.DeleteAttachment(ctx, att.ID, att.StoragePath))
}

func TestDeleteAttachmentKeepsRowWhenBlobRemovalFails(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.messages.Create(ctx, chat.Message{
		ID: "m1", ConversationID: "c1", SenderID: "amy", RecipientID: "bob",
		Content: "x", CreatedAt: 1, UpdatedAt: 1,
	})
	req.NoError(err)
	_, err = h.attachments.Create(ctx, chat.Attachment{
		ID: "a1", MessageID: "m1", FileName: "f", StoragePath: "p", CreatedAt: 1,
	})
	req.NoError(err)

	l := New(h.messages, h.attachments, h.conversations, failingBlobs{}, 3, time.Millisecond, nil)
	req.Error(l.DeleteAttachment(ctx, "a1", "p"))

	rows, err := h.attachments.ForMessages(ctx, []string{"m1"})
	req.NoError(err)
	req.Len(rows, 1, "row survives so the blob stays discoverable")
}
