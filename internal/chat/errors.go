package chat

import "errors"

// ErrNotAuthenticated is returned by every mutating operation when the
// identity provider has no current user.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNotFound is returned when a referenced message or conversation does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrPermissionDenied is returned when a caller tries to mutate a message it
// does not own. The check happens before any store write.
var ErrPermissionDenied = errors.New("permission denied")
