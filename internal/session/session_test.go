package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkpad-notes/chatcore/internal/blob/fsblob"
	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/directory"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/gateway/sqlitestore"
	"github.com/inkpad-notes/chatcore/internal/identity"
	"github.com/inkpad-notes/chatcore/internal/linker"
	"github.com/inkpad-notes/chatcore/internal/pager"
	"github.com/inkpad-notes/chatcore/internal/presence"
	"github.com/inkpad-notes/chatcore/internal/realtime"
	"github.com/stretchr/testify/require"
)

// backend is the shared store and bus two test sessions talk through, playing
// the role of the realtime database both clients connect to.
type backend struct {
	db    *sqlitestore.DB
	bus   *bus.Bus
	blobs *fsblob.Store
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := bus.New()
	db, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"), b)
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := fsblob.New(t.TempDir())
	require.NoError(t, err)
	return &backend{db: db, bus: b, blobs: blobs}
}

func (b *backend) session(t *testing.T, userID string) *Session {
	t.Helper()
	convs := gateway.NewConversations(b.db)
	msgs := gateway.NewMessages(b.db)
	atts := gateway.NewAttachments(b.db)
	pres := gateway.NewPresence(b.db)

	dir := directory.New(userID, convs, nil)
	pg := pager.New(userID, msgs, atts, 50, nil)
	tracker := presence.New(pres, 50*time.Millisecond, nil)
	lk := linker.New(msgs, atts, convs, b.blobs, 3, 50*time.Millisecond, nil)
	sy := realtime.New(userID, b.db, b.bus, dir, pg, tracker, lk, nil)

	s := New(userID, identity.Static{UserID: userID}, dir, pg, tracker, lk, sy, msgs, nil)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func startTwo(t *testing.T) (*backend, *Session, *Session) {
	t.Helper()
	b := newBackend(t)
	amy := b.session(t, "amy")
	bob := b.session(t, "bob")
	ctx := context.Background()
	require.NoError(t, amy.Start(ctx))
	require.NoError(t, bob.Start(ctx))
	return b, amy, bob
}

func TestStartRequiresAuthentication(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)
	convs := gateway.NewConversations(b.db)
	msgs := gateway.NewMessages(b.db)
	atts := gateway.NewAttachments(b.db)

	dir := directory.New("", convs, nil)
	pg := pager.New("", msgs, atts, 50, nil)
	tracker := presence.New(gateway.NewPresence(b.db), time.Minute, nil)
	lk := linker.New(msgs, atts, convs, b.blobs, 3, time.Millisecond, nil)
	sy := realtime.New("", b.db, b.bus, dir, pg, tracker, lk, nil)
	s := New("", identity.Static{}, dir, pg, tracker, lk, sy, msgs, nil)

	ctx := context.Background()
	req.ErrorIs(s.Start(ctx), chat.ErrNotAuthenticated)
	_, err := s.SelectConversation(ctx, "bob")
	req.ErrorIs(err, chat.ErrNotAuthenticated)
	_, err = s.Send(ctx, "hi", nil)
	req.ErrorIs(err, chat.ErrNotAuthenticated)
	req.ErrorIs(s.MarkRead(ctx, "c1"), chat.ErrNotAuthenticated)
	// Stop on a session that never authenticated is still clean.
	req.NoError(s.Stop(ctx))
}

// First contact: amy opens a conversation with bob and sends a message; bob
// opens his side and sees both the conversation and the live message.
func TestFirstContactFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b, amy, bob := startTwo(t)

	conv, err := amy.SelectConversation(ctx, "bob")
	req.NoError(err)
	req.Equal([2]string{conv.UserA, conv.UserB}, [2]string{"amy", "bob"})

	// Bob opens the same pair and lands on the same row.
	bobConv, err := bob.SelectConversation(ctx, "amy")
	req.NoError(err)
	req.Equal(conv.ID, bobConv.ID)

	_, err = amy.Send(ctx, "hello bob", nil)
	req.NoError(err)

	req.Eventually(func() bool {
		tl := bob.Timeline()
		return len(tl) == 1 && tl[0].Content == "hello bob"
	}, 2*time.Second, 10*time.Millisecond)

	// Bob's conversation list reloaded off the insert.
	req.Eventually(func() bool {
		convs := bob.Conversations()
		return len(convs) == 1 && convs[0].ID == conv.ID
	}, 2*time.Second, 10*time.Millisecond)

	// The last-message snapshot is persisted on the row.
	stored, err := gateway.NewConversations(b.db).ForUser(ctx, "bob")
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("hello bob", stored[0].LastMessage)
}

// A message with a photo: the receiver's timeline entry carries the
// attachment even though its row commits after the message row.
func TestAttachmentArrivesWithMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, amy, bob := startTwo(t)

	_, err := amy.SelectConversation(ctx, "bob")
	req.NoError(err)
	_, err = bob.SelectConversation(ctx, "amy")
	req.NoError(err)

	sent, err := amy.Send(ctx, "vacation photo", []linker.File{
		{Name: "beach.jpg", Type: "image/jpeg", Reader: strings.NewReader("jpeg bytes")},
	})
	req.NoError(err)
	req.Len(sent.Attachments, 1)

	req.Eventually(func() bool {
		tl := bob.Timeline()
		return len(tl) == 1 && len(tl[0].Attachments) == 1 && tl[0].Attachments[0].FileName == "beach.jpg"
	}, 2*time.Second, 10*time.Millisecond)
}

// Going offline: bob's tracker flips amy offline when her session stops.
func TestPresencePropagates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, amy, bob := startTwo(t)

	req.Eventually(func() bool {
		return bob.Presences()["amy"].IsOnline
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(amy.Stop(ctx))
	req.Eventually(func() bool {
		return !bob.Presences()["amy"].IsOnline
	}, 2*time.Second, 10*time.Millisecond)
}

// Scrolling history: 100 stored messages at page size 50 load in two pages
// through LoadMore, and the third call reports the history exhausted.
func TestHistoryPagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b := newBackend(t)

	now := time.Now().UnixMilli()
	_, err := gateway.NewConversations(b.db).Create(ctx, chat.Conversation{
		ID: "c1", UserA: "amy", UserB: "bob", CreatedAt: now, UpdatedAt: now,
	})
	req.NoError(err)
	msgs := gateway.NewMessages(b.db)
	for i := 0; i < 100; i++ {
		_, err := msgs.Create(ctx, chat.Message{
			ID: fmt.Sprintf("m%03d", i), ConversationID: "c1",
			SenderID: "amy", RecipientID: "bob",
			Content: "x", CreatedAt: int64(1000 + i), UpdatedAt: int64(1000 + i),
		})
		req.NoError(err)
	}

	amy := b.session(t, "amy")
	req.NoError(amy.Start(ctx))
	_, err = amy.SelectConversation(ctx, "bob")
	req.NoError(err)
	req.Len(amy.Timeline(), 50)
	req.True(amy.HasMoreHistory())

	req.NoError(amy.LoadMore(ctx))
	req.Len(amy.Timeline(), 100)
	req.True(amy.HasMoreHistory())

	req.NoError(amy.LoadMore(ctx))
	req.False(amy.HasMoreHistory())

	tl := amy.Timeline()
	req.Equal("m000", tl[0].ID)
	req.Equal("m099", tl[99].ID)
}

func TestMarkReadIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b, amy, bob := startTwo(t)

	conv, err := amy.SelectConversation(ctx, "bob")
	req.NoError(err)
	_, err = amy.Send(ctx, "unread", nil)
	req.NoError(err)

	msgs := gateway.NewMessages(b.db)
	n, err := msgs.UnreadCount(ctx, conv.ID, "bob")
	req.NoError(err)
	req.Equal(1, n)

	req.NoError(bob.MarkRead(ctx, conv.ID))
	n, err = msgs.UnreadCount(ctx, conv.ID, "bob")
	req.NoError(err)
	req.Zero(n)

	req.NoError(bob.MarkRead(ctx, conv.ID), "second pass is a no-op")
	// Amy's own outbound message never flips from her read pass.
	req.NoError(amy.MarkRead(ctx, conv.ID))
	n, err = msgs.UnreadCount(ctx, conv.ID, "bob")
	req.NoError(err)
	req.Zero(n)
}

func TestEditAndDeleteRequireOwnership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, amy, bob := startTwo(t)

	_, err := amy.SelectConversation(ctx, "bob")
	req.NoError(err)
	sent, err := amy.Send(ctx, "typo", nil)
	req.NoError(err)

	req.ErrorIs(bob.EditMessage(ctx, sent.ID, "hijacked"), chat.ErrPermissionDenied)
	req.ErrorIs(bob.DeleteMessage(ctx, sent.ID), chat.ErrPermissionDenied)
	req.ErrorIs(amy.EditMessage(ctx, "no-such-id", "x"), chat.ErrNotFound)

	req.NoError(amy.EditMessage(ctx, sent.ID, "fixed"))
	req.Eventually(func() bool {
		tl := amy.Timeline()
		return len(tl) == 1 && tl[0].Content == "fixed"
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(amy.DeleteMessage(ctx, sent.ID))
	req.Empty(amy.Timeline())
}

func TestSendWithoutSelection(t *testing.T) {
	req := require.New(t)
	_, amy, _ := startTwo(t)
	_, err := amy.Send(context.Background(), "into the void", nil)
	req.ErrorIs(err, ErrNoConversation)
}

func TestStopIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, amy, _ := startTwo(t)

	req.NoError(amy.Stop(ctx))
	req.NoError(amy.Stop(ctx))
	// Start again after a stop.
	req.NoError(amy.Start(ctx))
	req.NoError(amy.Stop(ctx))
}
