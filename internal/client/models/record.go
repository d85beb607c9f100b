// Package models defines the client-side plaintext records and account
// metadata that are encrypted before they leave the device.
package models

import (
	"errors"
	"strings"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/google/uuid"
)

// RecordType classifies a record.
type RecordType string

const (
	RecordTypePerson RecordType = "person"
	RecordTypeGroup  RecordType = "group"
)

// Record is a person or a group. Members is used by groups only; Archived,
// Tags and Notes by people only.
type Record struct {
	ID          string     `json:"id"`
	Version     int64      `json:"version,omitempty"`
	Type        RecordType `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Archived    bool       `json:"archived,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Members     []string   `json:"members,omitempty"`
}

// NewPerson returns an unsaved person with a fresh id.
func NewPerson(name string) Record {
	return Record{ID: uuid.NewString(), Type: RecordTypePerson, Name: name}
}

// NewGroup returns an unsaved group with a fresh id.
func NewGroup(name string, members ...string) Record {
	return Record{ID: uuid.NewString(), Type: RecordTypeGroup, Name: name, Members: members}
}

// Validate checks the required fields.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return &common.ValidationError{Field: "id", Reason: "required"}
	case r.Name == "":
		return &common.ValidationError{Field: "name", Reason: "required"}
	}
	switch r.Type {
	case RecordTypePerson, RecordTypeGroup:
	default:
		return &common.ValidationError{Field: "type", Reason: "must be person or group"}
	}
	if r.Version < 0 {
		return &common.ValidationError{Field: "version", Reason: "must not be negative"}
	}
	return nil
}

// SetFields names the JSON fields of t that merge as unordered sets.
func SetFields(t RecordType) []string {
	switch t {
	case RecordTypeGroup:
		return []string{"members"}
	case RecordTypePerson:
		return []string{"tags"}
	}
	return nil
}

// WithoutMembers returns a copy of a group with ids removed from Members, and
// whether anything changed.
func (r Record) WithoutMembers(ids map[string]struct{}) (Record, bool) {
	if r.Type != RecordTypeGroup || len(r.Members) == 0 {
		return r, false
	}
	kept := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if _, drop := ids[m]; !drop {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(r.Members) {
		return r, false
	}
	r.Members = kept
	return r, true
}

// Metadata is the versioned per-account settings blob.
type Metadata struct {
	Version  int64          `json:"version,omitempty"`
	Settings map[string]any `json:"settings"`
}

var ErrIncorrectSetting = errors.New("setting must be name=value")

// SettingsFromStrings parses "name=value" pairs into a settings map.
func SettingsFromStrings(s []string) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for _, item := range s {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" || strings.Contains(value, "=") {
			return nil, ErrIncorrectSetting
		}
		out[name] = value
	}
	return out, nil
}
