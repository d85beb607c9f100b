package models

import (
	"encoding/json"
	"time"
)

// Subscription is an opaque per-account push subscription, stored verbatim.
type Subscription struct {
	AccountID string
	ID        string
	Data      json.RawMessage
	Modified  time.Time
}
