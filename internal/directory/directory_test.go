package directory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/gateway/sqlitestore"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *sqlitestore.DB {
	t.Helper()
	db, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"), bus.New())
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetOrCreateConversationCreatesOnce(t *testing.T) {
	req := require.New(t)
	db := testStore(t)
	convs := gateway.NewConversations(db)
	dir := New("amy", convs, nil)
	ctx := context.Background()

	first, err := dir.GetOrCreateConversation(ctx, "bob")
	req.NoError(err)
	req.Equal("amy", first.UserA)
	req.Equal("bob", first.UserB)

	second, err := dir.GetOrCreateConversation(ctx, "bob")
	req.NoError(err)
	req.Equal(first.ID, second.ID)
}

func TestGetOrCreateConversationBothSidesShareRow(t *testing.T) {
	req := require.New(t)
	db := testStore(t)
	convs := gateway.NewConversations(db)
	ctx := context.Background()

	amy := New("amy", convs, nil)
	bob := New("bob", convs, nil)

	fromAmy, err := amy.GetOrCreateConversation(ctx, "bob")
	req.NoError(err)
	fromBob, err := bob.GetOrCreateConversation(ctx, "amy")
	req.NoError(err)
	req.Equal(fromAmy.ID, fromBob.ID)

	all, err := convs.ForUser(ctx, "amy")
	req.NoError(err)
	req.Len(all, 1)
}

// Both participants race on first contact; the uniqueness constraint plus
// the conflict re-read must leave exactly one row.
func TestGetOrCreateConversationConcurrent(t *testing.T) {
	req := require.New(t)
	db := testStore(t)
	convs := gateway.NewConversations(db)
	ctx := context.Background()

	amy := New("amy", convs, nil)
	bob := New("bob", convs, nil)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		conv, err := amy.GetOrCreateConversation(ctx, "bob")
		ids[0], errs[0] = conv.ID, err
	}()
	go func() {
		defer wg.Done()
		conv, err := bob.GetOrCreateConversation(ctx, "amy")
		ids[1], errs[1] = conv.ID, err
	}()
	wg.Wait()

	req.NoError(errs[0])
	req.NoError(errs[1])
	req.Equal(ids[0], ids[1])

	all, err := convs.ForUser(ctx, "amy")
	req.NoError(err)
	req.Len(all, 1)
}

func TestLoadConversationsOrdersByActivity(t *testing.T) {
	req := require.New(t)
	db := testStore(t)
	convs := gateway.NewConversations(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	_, err := convs.Create(ctx, chat.Conversation{ID: "c-old", UserA: "amy", UserB: "bob", CreatedAt: now, UpdatedAt: now - 5000})
	req.NoError(err)
	_, err = convs.Create(ctx, chat.Conversation{ID: "c-new", UserA: "amy", UserB: "zoe", CreatedAt: now, UpdatedAt: now})
	req.NoError(err)

	dir := New("amy", convs, nil)
	list, err := dir.LoadConversations(ctx)
	req.NoError(err)
	req.Len(list, 2)
	req.Equal("c-new", list[0].ID)
	req.Equal("c-old", list[1].ID)

	req.ElementsMatch([]string{"bob", "zoe"}, dir.PartnerIDs())
}
