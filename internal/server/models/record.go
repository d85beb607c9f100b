package models

import "time"

// StoredRecord is an encrypted record as the server keeps it, partitioned
// by account and keyed by id.
type StoredRecord struct {
	AccountID string
	ID        string
	Cipher    string
	IV        string
	Type      string
	// Modified is assigned from the server clock on every write.
	Modified time.Time
	Version  int64
}

