// Package gateway is the typed boundary to the backend data store. The
// generic Store interface mirrors what the backend offers (filtered CRUD
// plus change-notification subscriptions); the per-table wrappers in this
// package encode and decode domain structs so the rest of the core never
// touches raw rows.
package gateway

import (
	"context"
	"errors"
)

// Row is one record of a backend table, keyed by column name.
type Row map[string]any

// ErrConflict is returned by Insert when a uniqueness constraint rejects the
// row. Callers that race on creation (two participants creating the same
// conversation) re-read the winner instead of failing.
var ErrConflict = errors.New("store conflict")

// Subscription is an open change feed on one table. Close is idempotent.
type Subscription interface {
	Close()
}

// Store is the backend data store boundary. Every call is a suspension
// point; implementations must be safe for concurrent use.
type Store interface {
	// Query returns rows matching filter, ordered and windowed. A limit of
	// zero or less means no limit.
	Query(ctx context.Context, table string, filter Filter, order []Order, limit, offset int) ([]Row, error)
	// Insert stores row and returns it as stored. Returns ErrConflict when a
	// uniqueness constraint rejects it.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies patch to every row matching filter and returns the
	// updated rows.
	Update(ctx context.Context, table string, filter Filter, patch Row) ([]Row, error)
	// Delete removes every row matching filter.
	Delete(ctx context.Context, table string, filter Filter) error
	// Subscribe opens a change feed on table. onInsert/onUpdate receive rows
	// matching filter; either callback may be nil. Events are delivered on a
	// dedicated goroutine, one at a time, until Close.
	Subscribe(table string, filter Filter, onInsert, onUpdate func(Row)) (Subscription, error)
}

// Table names shared by the wrappers and the store implementations.
const (
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableAttachments   = "attachments"
	TablePresence      = "presence_status"
)

// Change-notification kinds published on the bus by store implementations.
func InsertKind(table string) string { return "change." + table + ".insert" }
func UpdateKind(table string) string { return "change." + table + ".update" }
