// Package wire defines the JSON documents exchanged between the client core
// and the server. Both sides import it so the shapes cannot drift.
package wire

import (
	"encoding/json"

	"github.com/dmitrijs2005/praylist/internal/cryptox"
)

// Item is a StoredRecord as it travels over the network. A partial item
// (unchanged since the client's cache timestamp) carries only ID.
type Item struct {
	ID       string `json:"id"`
	Cipher   string `json:"cipher,omitempty"`
	IV       string `json:"iv,omitempty"`
	Type     string `json:"type,omitempty"`
	Modified int64  `json:"modified,omitempty"`
	Version  int64  `json:"version,omitempty"`
}

// Partial reports whether the server omitted the payload.
func (i Item) Partial() bool { return i.Cipher == "" }

// Envelope returns the encrypted payload of the item.
func (i Item) Envelope() cryptox.Envelope {
	return cryptox.Envelope{IV: i.IV, Cipher: i.Cipher}
}

// ItemsResponse answers GET /{account}/items. Timestamp is the server time
// the client passes as since on its next incremental fetch.
type ItemsResponse struct {
	Items     []Item `json:"items"`
	Timestamp int64  `json:"timestamp"`
}

// ItemDetail reports the outcome of one item of a batch write or delete.
type ItemDetail struct {
	Item    string `json:"item"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchResponse answers PUT and DELETE on /{account}/items.
type BatchResponse struct {
	Success bool         `json:"success"`
	Details []ItemDetail `json:"details"`
}

// StatusResponse is the generic single-operation reply.
type StatusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type CreateAccountRequest struct {
	Salt      string `json:"salt"`
	AuthToken string `json:"authToken"`
}

type CreateAccountResponse struct {
	Account string `json:"account"`
}

type SaltResponse struct {
	Success bool   `json:"success"`
	Salt    string `json:"salt"`
}

type LoginRequest struct {
	AuthToken string `json:"authToken"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Session string `json:"session"`
}

// MetadataRequest carries the account metadata blob. Metadata is normally an
// encrypted envelope; legacy accounts may still hold plaintext JSON.
type MetadataRequest struct {
	Metadata json.RawMessage `json:"metadata"`
	Version  int64           `json:"version"`
}

type MetadataResponse struct {
	Success  bool            `json:"success"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Version  int64           `json:"version"`
}

type SubscriptionRequest struct {
	Subscription json.RawMessage `json:"subscription"`
}

type SubscriptionResponse struct {
	Success      bool            `json:"success"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

type BackupResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}
