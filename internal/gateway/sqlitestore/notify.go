package sqlitestore

import (
	"strings"
	"sync"
	"time"

	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/gateway"
)

func busEvent(kind string, row gateway.Row) bus.Event {
	return bus.Event{Kind: kind, Timestamp: time.Now(), Payload: row}
}

// Subscribe implements gateway.Store. Events for the table are filtered
// client-side against the subscription's filter and dispatched one at a time
// on a dedicated goroutine, so a handler never races itself.
func (d *DB) Subscribe(table string, filter gateway.Filter, onInsert, onUpdate func(gateway.Row)) (gateway.Subscription, error) {
	if _, err := schemaFor(table); err != nil {
		return nil, err
	}

	ch, unsub := d.bus.Subscribe("change."+table+".", 256)
	sub := &subscription{
		unsub: unsub,
		done:  make(chan struct{}),
	}

	go func() {
		for {
			select {
			case evt := <-ch:
				row, ok := evt.Payload.(gateway.Row)
				if !ok || !filter.Matches(row) {
					continue
				}
				switch {
				case strings.HasSuffix(evt.Kind, ".insert"):
					if onInsert != nil {
						onInsert(row)
					}
				case strings.HasSuffix(evt.Kind, ".update"):
					if onUpdate != nil {
						onUpdate(row)
					}
				}
			case <-sub.done:
				return
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	unsub func()
	done  chan struct{}
	once  sync.Once
}

// Close detaches from the bus and stops the dispatch goroutine. Idempotent.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.unsub()
		close(s.done)
	})
}
