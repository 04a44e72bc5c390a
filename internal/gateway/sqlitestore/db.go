// Package sqlitestore is the reference backend for the gateway.Store
// boundary: a SQLite database with embedded migrations that fans row-change
// notifications out through the event bus. It gives the session core a real
// store to run against in the daemon and in tests.
package sqlitestore

import (
	"database/sql"
	"fmt"

	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	_ "github.com/mattn/go-sqlite3"
)

// DB implements gateway.Store on top of SQLite.
type DB struct {
	db  *sql.DB
	bus *bus.Bus
}

// Open creates a SQLite connection with WAL mode and foreign keys enabled.
// Change events for Subscribe are published on b.
func Open(path string, b *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db: db, bus: b}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// tableSchema fixes the column set per table so the generic builders never
// interpolate caller-supplied identifiers.
type tableSchema struct {
	pk      string
	columns []string
}

var schemas = map[string]tableSchema{
	gateway.TableConversations: {
		pk:      "id",
		columns: []string{"id", "user_a", "user_b", "last_message", "created_at", "updated_at"},
	},
	gateway.TableMessages: {
		pk:      "id",
		columns: []string{"id", "conversation_id", "sender_id", "recipient_id", "content", "read", "reply_to_id", "created_at", "updated_at"},
	},
	gateway.TableAttachments: {
		pk:      "id",
		columns: []string{"id", "message_id", "file_name", "file_size", "mime_type", "storage_path", "created_at"},
	},
	gateway.TablePresence: {
		pk:      "user_id",
		columns: []string{"user_id", "is_online", "last_seen", "updated_at"},
	},
}

func (s tableSchema) has(column string) bool {
	for _, c := range s.columns {
		if c == column {
			return true
		}
	}
	return false
}

func schemaFor(table string) (tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return tableSchema{}, fmt.Errorf("unknown table %q", table)
	}
	return s, nil
}
