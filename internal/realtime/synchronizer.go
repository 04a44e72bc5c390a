// Package realtime owns the session's live subscriptions and applies their
// events to the in-memory state: the per-user inbox feed, the per-open-
// conversation feed, and the global presence feed.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/directory"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/linker"
	"github.com/inkpad-notes/chatcore/internal/pager"
	"github.com/inkpad-notes/chatcore/internal/presence"
	"go.uber.org/zap"
)

// Change identifies which live view a subscription event touched.
type Change string

const (
	ChangeConversations Change = "conversations"
	ChangeTimeline      Change = "timeline"
	ChangePresence      Change = "presence"
)

// Synchronizer routes subscription events into the directory, pager, and
// presence tracker. Exactly one conversation subscription is live at a time;
// switching conversations closes the old one before opening the new one.
type Synchronizer struct {
	userID   string
	store    gateway.Store
	bus      *bus.Bus
	dir      *directory.Directory
	pager    *pager.Pager
	tracker  *presence.Tracker
	linker   *linker.Linker
	logger   *zap.Logger
	onChange func(Change)

	mu          sync.Mutex
	inboxSub    gateway.Subscription
	presenceSub gateway.Subscription
	convSub     gateway.Subscription
	convMachine *Machine
	convID      string
}

// New creates a synchronizer for userID.
func New(userID string, store gateway.Store, b *bus.Bus, dir *directory.Directory, pg *pager.Pager, tracker *presence.Tracker, lk *linker.Linker, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		userID:  userID,
		store:   store,
		bus:     b,
		dir:     dir,
		pager:   pg,
		tracker: tracker,
		linker:  lk,
		logger:  logger,
	}
}

// SetOnChange registers the observer callback invoked after a subscription
// event mutates one of the live views.
func (s *Synchronizer) SetOnChange(fn func(Change)) {
	s.onChange = fn
}

func (s *Synchronizer) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

// OpenInbox subscribes to every message addressed to or sent by the user.
// An insert reloads the whole conversation list: the last-message snapshot
// denormalization is easier to keep correct by refetch than by partial
// merge. An update patches the active timeline in place.
func (s *Synchronizer) OpenInbox() error {
	sub, err := s.store.Subscribe(gateway.TableMessages,
		gateway.Filter{Any: [][]gateway.Cond{
			{gateway.Eq("sender_id", s.userID)},
			{gateway.Eq("recipient_id", s.userID)},
		}},
		func(gateway.Row) {
			if _, err := s.dir.LoadConversations(context.Background()); err != nil {
				s.logger.Error("conversation reload failed", zap.Error(err))
				return
			}
			s.notify(ChangeConversations)
		},
		func(row gateway.Row) {
			s.pager.Patch(gateway.DecodeMessage(row))
			s.notify(ChangeTimeline)
		})
	if err != nil {
		return fmt.Errorf("open inbox subscription: %w", err)
	}
	s.mu.Lock()
	s.inboxSub = sub
	s.mu.Unlock()
	return nil
}

// OpenPresence subscribes to the unfiltered presence feed and merges every
// change into the tracker's map.
func (s *Synchronizer) OpenPresence() error {
	merge := func(row gateway.Row) {
		s.tracker.HandleChange(row)
		s.notify(ChangePresence)
	}
	sub, err := s.store.Subscribe(gateway.TablePresence, gateway.Filter{}, merge, merge)
	if err != nil {
		return fmt.Errorf("open presence subscription: %w", err)
	}
	s.mu.Lock()
	s.presenceSub = sub
	s.mu.Unlock()
	return nil
}

// SwitchConversation closes the previous conversation subscription and
// opens one filtered to conversationID. Inserted messages get their
// attachments resolved (bounded retry, the attachment rows may not have
// committed yet) before landing in the timeline.
func (s *Synchronizer) SwitchConversation(conversationID string) error {
	s.closeConversation()

	machine := NewMachine(s.bus)
	if err := machine.Transition(Subscribing); err != nil {
		return err
	}

	sub, err := s.store.Subscribe(gateway.TableMessages,
		gateway.Where(gateway.Eq("conversation_id", conversationID)),
		func(row gateway.Row) {
			msg := gateway.DecodeMessage(row)
			msg.Attachments = s.linker.ResolveAttachments(context.Background(), msg.ID)
			s.pager.Append(msg)
			s.notify(ChangeTimeline)
		},
		func(row gateway.Row) {
			s.pager.Patch(gateway.DecodeMessage(row))
			s.notify(ChangeTimeline)
		})
	if err != nil {
		_ = machine.Transition(Failed)
		s.logger.Error("conversation subscription failed",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return fmt.Errorf("open conversation subscription: %w", err)
	}
	if err := machine.Transition(Subscribed); err != nil {
		sub.Close()
		return err
	}

	s.mu.Lock()
	s.convSub = sub
	s.convMachine = machine
	s.convID = conversationID
	s.mu.Unlock()
	return nil
}

// ConversationState returns the state of the live conversation subscription.
func (s *Synchronizer) ConversationState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.convMachine == nil {
		return Unsubscribed
	}
	return s.convMachine.Current()
}

func (s *Synchronizer) closeConversation() {
	s.mu.Lock()
	sub, machine := s.convSub, s.convMachine
	s.convSub, s.convMachine, s.convID = nil, nil, ""
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	if machine != nil {
		if err := machine.Transition(Closed); err != nil {
			s.logger.Warn("subscription close transition", zap.Error(err))
		}
	}
}

// CloseAll tears down every open subscription. Idempotent and safe on a
// partially initialized synchronizer; leaking a subscription is the failure
// mode this exists to prevent.
func (s *Synchronizer) CloseAll() {
	s.closeConversation()

	s.mu.Lock()
	inbox, pres := s.inboxSub, s.presenceSub
	s.inboxSub, s.presenceSub = nil, nil
	s.mu.Unlock()
	if inbox != nil {
		inbox.Close()
	}
	if pres != nil {
		pres.Close()
	}
}
