// Package presence maintains this user's online flag via heartbeat writes
// and mirrors other users' presence from subscription events.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inkpad-notes/chatcore/internal/chat"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Tracker owns the local presence map and the heartbeat loop. Peers are only
// marked offline by their own session's teardown; there is no TTL expiry
// here, so an abrupt disconnect leaves a stale online row (accepted gap).
type Tracker struct {
	presence *gateway.Presence
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	statuses map[string]chat.PresenceStatus
	stop     context.CancelFunc
}

// New creates a tracker with the given heartbeat interval.
func New(presence *gateway.Presence, interval time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Tracker{
		presence: presence,
		logger:   logger,
		interval: interval,
		statuses: make(map[string]chat.PresenceStatus),
	}
}

// SetOnline upserts the user's presence row as online.
func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	now := time.Now().UnixMilli()
	err := t.presence.Upsert(ctx, chat.PresenceStatus{
		UserID:    userID,
		IsOnline:  true,
		LastSeen:  now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// SetOffline upserts the user's presence row as offline. Called on clean
// teardown only.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	now := time.Now().UnixMilli()
	err := t.presence.Upsert(ctx, chat.PresenceStatus{
		UserID:    userID,
		IsOnline:  false,
		LastSeen:  now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

// LoadConversationPartnerStatuses bulk-fetches presence for every partner in
// one query and merges the rows into the local map. Partners with no row are
// synthesized as offline locally (never written back) so callers always have
// a status to render.
func (t *Tracker) LoadConversationPartnerStatuses(ctx context.Context, partnerIDs []string) error {
	statuses, err := t.presence.ForUsers(ctx, partnerIDs)
	if err != nil {
		return fmt.Errorf("load partner statuses: %w", err)
	}
	byUser := lo.KeyBy(statuses, func(s chat.PresenceStatus) string { return s.UserID })

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range partnerIDs {
		if s, ok := byUser[id]; ok {
			t.statuses[id] = s
			continue
		}
		if _, ok := t.statuses[id]; !ok {
			t.statuses[id] = chat.PresenceStatus{UserID: id, IsOnline: false}
		}
	}
	return nil
}

// HandleChange merges a presence row delivered by the global subscription,
// replacing any prior entry for that user.
func (t *Tracker) HandleChange(row gateway.Row) {
	status := gateway.DecodePresence(row)
	if status.UserID == "" {
		return
	}
	t.mu.Lock()
	t.statuses[status.UserID] = status
	t.mu.Unlock()
}

// Statuses returns a copy of the presence map.
func (t *Tracker) Statuses() map[string]chat.PresenceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]chat.PresenceStatus, len(t.statuses))
	for k, v := range t.statuses {
		out[k] = v
	}
	return out
}

// StartHeartbeat re-issues SetOnline on the configured interval until
// StopHeartbeat. This periodic write is the sole liveness signal.
func (t *Tracker) StartHeartbeat(ctx context.Context, userID string) {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return
	}
	ctx, t.stop = context.WithCancel(ctx)
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.SetOnline(ctx, userID); err != nil {
					t.logger.Error("heartbeat write failed", zap.Error(err), zap.String("user_id", userID))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat loop. Idempotent; safe before
// StartHeartbeat.
func (t *Tracker) StopHeartbeat() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}
