// Package storage persists the client's authentication token between runs,
// consulted at startup to decide whether to attempt session restoration.
package storage

// Key is the stable key the token lives under, shared by every backend.
const Key = "chatlink.auth_token"

// TokenStore persists one authentication token. Load returns an empty
// string, not an error, when nothing is stored.
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}
