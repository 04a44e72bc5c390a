// Package session ties the core together for one logged-in user: startup
// and teardown ordering, the upward API consumed by presentation layers,
// and the observer list notified on live-view changes. All subscription
// handles and timers live on the Session so their lifecycle is structural.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/directory"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/identity"
	"github.com/inkpad-notes/chatcore/internal/linker"
	"github.com/inkpad-notes/chatcore/internal/pager"
	"github.com/inkpad-notes/chatcore/internal/presence"
	"github.com/inkpad-notes/chatcore/internal/realtime"
	"go.uber.org/zap"
)

// ErrNoConversation is returned by Send when no conversation is selected.
var ErrNoConversation = errors.New("no conversation selected")

// Session is the per-user chat session.
type Session struct {
	userID   string
	id       identity.Provider
	dir      *directory.Directory
	pager    *pager.Pager
	tracker  *presence.Tracker
	linker   *linker.Linker
	sync     *realtime.Synchronizer
	messages *gateway.Messages
	logger   *zap.Logger

	mu        sync.Mutex
	started   bool
	selected  *chat.Conversation
	observers []func(realtime.Change)
}

// New assembles a session from its components. The synchronizer's change
// callback is routed into the session's observer list.
func New(userID string, id identity.Provider, dir *directory.Directory, pg *pager.Pager, tracker *presence.Tracker, lk *linker.Linker, sy *realtime.Synchronizer, messages *gateway.Messages, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		userID:   userID,
		id:       id,
		dir:      dir,
		pager:    pg,
		tracker:  tracker,
		linker:   lk,
		sync:     sy,
		messages: messages,
		logger:   logger,
	}
	sy.SetOnChange(s.broadcast)
	return s
}

// OnChange registers an observer called after a live view (conversation
// list, timeline, presence map) changes.
func (s *Session) OnChange(fn func(realtime.Change)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Session) broadcast(c realtime.Change) {
	s.mu.Lock()
	observers := append(([]func(realtime.Change))(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(c)
	}
}

func (s *Session) authed() error {
	if s.id.CurrentUserID() == "" {
		return chat.ErrNotAuthenticated
	}
	return nil
}

// Start brings the session online: presence claim, conversation list,
// partner status hydration, inbox and presence subscriptions, heartbeat.
func (s *Session) Start(ctx context.Context) error {
	if err := s.authed(); err != nil {
		return err
	}
	if err := s.tracker.SetOnline(ctx, s.userID); err != nil {
		return err
	}
	if _, err := s.dir.LoadConversations(ctx); err != nil {
		return err
	}
	// Best effort: a failed hydration leaves partners rendered offline.
	if err := s.tracker.LoadConversationPartnerStatuses(ctx, s.dir.PartnerIDs()); err != nil {
		s.logger.Warn("partner status hydration failed", zap.Error(err))
	}
	if err := s.sync.OpenInbox(); err != nil {
		return err
	}
	if err := s.sync.OpenPresence(); err != nil {
		return err
	}
	// Heartbeat outlives the startup context; Stop cancels it.
	s.tracker.StartHeartbeat(context.Background(), s.userID)

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.logger.Info("session started", zap.String("user_id", s.userID))
	return nil
}

// Stop tears the session down: every subscription closed, heartbeat
// stopped, presence written offline. Idempotent, and safe to call before
// Start completes — whatever was initialized gets released.
func (s *Session) Stop(ctx context.Context) error {
	s.sync.CloseAll()
	s.tracker.StopHeartbeat()

	s.mu.Lock()
	s.started = false
	s.selected = nil
	s.mu.Unlock()

	if s.id.CurrentUserID() == "" {
		return nil
	}
	if err := s.tracker.SetOffline(ctx, s.userID); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	s.logger.Info("session stopped", zap.String("user_id", s.userID))
	return nil
}

// SelectConversation opens (creating if needed) the conversation with
// otherUserID: pagination state resets, the live subscription switches over,
// and the newest page loads into the timeline.
func (s *Session) SelectConversation(ctx context.Context, otherUserID string) (chat.Conversation, error) {
	if err := s.authed(); err != nil {
		return chat.Conversation{}, err
	}
	conv, err := s.dir.GetOrCreateConversation(ctx, otherUserID)
	if err != nil {
		return chat.Conversation{}, err
	}

	s.pager.Select(conv.ID, otherUserID)
	if err := s.sync.SwitchConversation(conv.ID); err != nil {
		return chat.Conversation{}, err
	}
	if err := s.pager.LoadNewest(ctx); err != nil {
		return chat.Conversation{}, err
	}

	s.mu.Lock()
	s.selected = &conv
	s.mu.Unlock()
	s.broadcast(realtime.ChangeTimeline)
	return conv, nil
}

// Selected returns the open conversation, or nil.
func (s *Session) Selected() *chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	conv := *s.selected
	return &conv
}

// Send writes a message (optionally with attachments) into the selected
// conversation. The timeline picks it up through the conversation
// subscription rather than a local append.
func (s *Session) Send(ctx context.Context, text string, files []linker.File) (chat.Message, error) {
	if err := s.authed(); err != nil {
		return chat.Message{}, err
	}
	s.mu.Lock()
	sel := s.selected
	s.mu.Unlock()
	if sel == nil {
		return chat.Message{}, ErrNoConversation
	}
	return s.linker.SendMessageWithAttachments(ctx, sel.ID, s.userID, sel.Partner(s.userID), text, files)
}

// MarkRead flips every unread inbound message of the conversation to read.
// Read transitions only false→true; a second call is a no-op.
func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	if err := s.authed(); err != nil {
		return err
	}
	_, err := s.messages.MarkRead(ctx, conversationID, s.userID)
	return err
}

// EditMessage rewrites a message the caller owns.
func (s *Session) EditMessage(ctx context.Context, messageID, content string) error {
	if err := s.authed(); err != nil {
		return err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return chat.ErrNotFound
	}
	if msg.SenderID != s.userID {
		return chat.ErrPermissionDenied
	}
	return s.messages.SetContent(ctx, messageID, content)
}

// DeleteMessage removes a message the caller owns from the store and the
// local timeline.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if err := s.authed(); err != nil {
		return err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return chat.ErrNotFound
	}
	if msg.SenderID != s.userID {
		return chat.ErrPermissionDenied
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	s.pager.Remove(messageID)
	s.broadcast(realtime.ChangeTimeline)
	return nil
}

// DeleteAttachment removes an attachment's blob and row, then filters it
// out of the timeline.
func (s *Session) DeleteAttachment(ctx context.Context, attachmentID, storagePath string) error {
	if err := s.authed(); err != nil {
		return err
	}
	if err := s.linker.DeleteAttachment(ctx, attachmentID, storagePath); err != nil {
		return err
	}
	s.pager.RemoveAttachment(attachmentID)
	s.broadcast(realtime.ChangeTimeline)
	return nil
}

// LoadMore pulls one more page of history into the timeline.
func (s *Session) LoadMore(ctx context.Context) error {
	if err := s.pager.LoadMoreMessages(ctx); err != nil {
		return err
	}
	s.broadcast(realtime.ChangeTimeline)
	return nil
}

// Conversations returns the current conversation list, newest activity
// first.
func (s *Session) Conversations() []chat.Conversation {
	return s.dir.Conversations()
}

// Timeline returns the active timeline, oldest first.
func (s *Session) Timeline() []chat.Message {
	return s.pager.Timeline()
}

// HasMoreHistory reports whether older pages may exist.
func (s *Session) HasMoreHistory() bool {
	return s.pager.HasMore()
}

// Presences returns a copy of the live presence map.
func (s *Session) Presences() map[string]chat.PresenceStatus {
	return s.tracker.Statuses()
}
