package chat

// Conversation is a two-party message thread. UserA and UserB are stored in
// canonical order (UserA < UserB) so a pair of users maps to exactly one row.
type Conversation struct {
	ID          string
	UserA       string
	UserB       string
	LastMessage string
	CreatedAt   int64
	UpdatedAt   int64
}

// Partner returns the participant that is not userID.
func (c Conversation) Partner(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Message is a single direct message. Timestamps are unix milliseconds.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Content        string
	Read           bool
	ReplyToID      string
	CreatedAt      int64
	UpdatedAt      int64
	Attachments    []Attachment
}

// Before defines the display order of messages: (created_at, id) ascending.
// Receipt order is never used, so pages and realtime inserts converge to the
// same position.
func (m Message) Before(other Message) bool {
	if m.CreatedAt != other.CreatedAt {
		return m.CreatedAt < other.CreatedAt
	}
	return m.ID < other.ID
}

// Attachment is a file linked to a message. StoragePath is the opaque blob
// store locator; bytes live in the blob store, not the row.
type Attachment struct {
	ID          string
	MessageID   string
	FileName    string
	FileSize    int64
	MimeType    string
	StoragePath string
	CreatedAt   int64
}

// PresenceStatus is a user's liveness row, refreshed by the owning session's
// heartbeat. One row per user.
type PresenceStatus struct {
	UserID    string
	IsOnline  bool
	LastSeen  int64
	UpdatedAt int64
}

// CanonicalPair orders two user ids so that the smaller one comes first.
// Both participants of a conversation derive the same pair regardless of
// which side asks.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// TruncatePreview shortens message content for the conversation list
// snapshot.
func TruncatePreview(s string) string {
	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
