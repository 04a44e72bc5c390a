// Package identity is the boundary to the authentication provider.
package identity

// Provider reports the logged-in user. An empty id means no one is
// authenticated and every mutating operation must fail fast.
type Provider interface {
	CurrentUserID() string
}

// Static is a fixed-identity provider, used by the daemon and in tests.
type Static struct {
	UserID string
}

// CurrentUserID implements Provider.
func (s Static) CurrentUserID() string { return s.UserID }
