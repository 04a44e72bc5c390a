package gateway

import (
	"context"
	"errors"

	"github.com/inkpad-notes/chatcore/internal/chat"
)

// Presence issues filtered CRUD against the presence_status table.
type Presence struct {
	store Store
}

// NewPresence wraps store.
func NewPresence(store Store) *Presence {
	return &Presence{store: store}
}

// ForUsers bulk-fetches presence rows for the given user ids in one query.
// Users with no row are simply absent from the result.
func (p *Presence) ForUsers(ctx context.Context, userIDs []string) ([]chat.PresenceStatus, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := p.store.Query(ctx, TablePresence,
		Where(In("user_id", userIDs)), nil, 0, 0)
	if err != nil {
		return nil, err
	}
	statuses := make([]chat.PresenceStatus, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, DecodePresence(row))
	}
	return statuses, nil
}

// Upsert writes the status row, updating in place when the user already has
// one. A concurrent first insert for the same user resolves by retrying the
// update against the winner's row.
func (p *Presence) Upsert(ctx context.Context, status chat.PresenceStatus) error {
	patch := encodePresence(status)
	delete(patch, "user_id")

	rows, err := p.store.Update(ctx, TablePresence, Where(Eq("user_id", status.UserID)), patch)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	_, err = p.store.Insert(ctx, TablePresence, encodePresence(status))
	if errors.Is(err, ErrConflict) {
		_, err = p.store.Update(ctx, TablePresence, Where(Eq("user_id", status.UserID)), patch)
	}
	return err
}

func encodePresence(s chat.PresenceStatus) Row {
	online := int64(0)
	if s.IsOnline {
		online = 1
	}
	return Row{
		"user_id":    s.UserID,
		"is_online":  online,
		"last_seen":  s.LastSeen,
		"updated_at": s.UpdatedAt,
	}
}

// DecodePresence converts a raw row into the domain struct.
func DecodePresence(row Row) chat.PresenceStatus {
	return chat.PresenceStatus{
		UserID:    rowString(row, "user_id"),
		IsOnline:  rowBool(row, "is_online"),
		LastSeen:  rowInt64(row, "last_seen"),
		UpdatedAt: rowInt64(row, "updated_at"),
	}
}
