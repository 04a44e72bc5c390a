package pager

import "github.com/inkpad-notes/chatcore/internal/chat"

// Timeline is the in-memory message list for the open conversation, oldest
// first. Display position is defined by (created_at, id) alone, so merging a
// page fetch and a realtime insert converges regardless of arrival order.
// Not safe for concurrent use; the Pager serializes access.
type Timeline struct {
	msgs []chat.Message
}

// Replace swaps in a full page of messages (already chronological).
func (t *Timeline) Replace(msgs []chat.Message) {
	t.msgs = append([]chat.Message(nil), msgs...)
}

// PrependOlder merges an older page in front of the current window,
// deduplicating by message id.
func (t *Timeline) PrependOlder(older []chat.Message) {
	seen := make(map[string]bool, len(t.msgs))
	for _, m := range t.msgs {
		seen[m.ID] = true
	}
	merged := make([]chat.Message, 0, len(older)+len(t.msgs))
	for _, m := range older {
		if !seen[m.ID] {
			merged = append(merged, m)
		}
	}
	t.msgs = append(merged, t.msgs...)
}

// Insert places msg at its (created_at, id) position. A message already
// present is patched instead, which makes duplicate delivery harmless.
func (t *Timeline) Insert(msg chat.Message) {
	if t.Patch(msg) {
		return
	}
	pos := len(t.msgs)
	for i := range t.msgs {
		if msg.Before(t.msgs[i]) {
			pos = i
			break
		}
	}
	t.msgs = append(t.msgs, chat.Message{})
	copy(t.msgs[pos+1:], t.msgs[pos:])
	t.msgs[pos] = msg
}

// Patch updates the message with msg's id in place. Attachments already
// resolved locally survive a patch that carries none (row-change events do
// not include attachment rows). Returns false when the message is absent.
func (t *Timeline) Patch(msg chat.Message) bool {
	for i := range t.msgs {
		if t.msgs[i].ID == msg.ID {
			if len(msg.Attachments) == 0 {
				msg.Attachments = t.msgs[i].Attachments
			}
			t.msgs[i] = msg
			return true
		}
	}
	return false
}

// Remove drops the message with the given id.
func (t *Timeline) Remove(id string) {
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

// RemoveAttachment filters the attachment out of whichever message holds it.
func (t *Timeline) RemoveAttachment(attachmentID string) {
	for i := range t.msgs {
		atts := t.msgs[i].Attachments
		for j := range atts {
			if atts[j].ID == attachmentID {
				t.msgs[i].Attachments = append(atts[:j:j], atts[j+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the messages.
func (t *Timeline) Snapshot() []chat.Message {
	out := make([]chat.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages in the window.
func (t *Timeline) Len() int { return len(t.msgs) }
