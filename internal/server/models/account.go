// Package models defines server-side data models persisted by the
// repositories.
package models

import (
	"encoding/json"
	"time"
)

// Account is one encrypted data partition. The server only ever knows the
// key-derivation salt and a hash of the auth fingerprint.
type Account struct {
	ID string
	// Salt is the PBKDF2 salt handed back to clients before login.
	Salt []byte
	// AuthHash is SHA-256 of the client's auth fingerprint.
	AuthHash []byte
	// Metadata is the opaque settings blob, normally an encrypted envelope.
	Metadata        json.RawMessage
	MetadataVersion int64
	CreatedAt       time.Time
}
