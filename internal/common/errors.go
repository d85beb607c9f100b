// Package common defines shared constants and error values used across
// client and server layers of praylist. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// VersionConflictMessage is the wire-level marker of a rejected versioned
// write. Clients look for this substring in per-item error details and treat
// nothing else as a conflict.
const VersionConflictMessage = "Version conflict"

// UserFacingRequestMessage is what the UI shows for any failed request.
const UserFacingRequestMessage = "Something went wrong while talking to the server. Please try again."

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Versioned store errors.
	ErrVersionConflict = errors.New("version conflict")
	ErrSizeLimit       = errors.New("item exceeds size limit")

	// Client core errors.
	ErrNotInitialised = errors.New("not initialised")
	ErrDecryption     = errors.New("decryption failed")
	ErrValidation     = errors.New("validation error")
	ErrSessionExpired = errors.New("session expired")
)

// IsVersionConflict reports whether a per-item error detail describes a
// version conflict.
func IsVersionConflict(detail string) bool {
	return strings.Contains(detail, VersionConflictMessage)
}

// DecryptionError is returned when an envelope cannot be opened: wrong key,
// tag mismatch or malformed base64/IV.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Cause)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

// ValidationError rejects a record before it is encrypted or sent anywhere.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ItemFailure describes one failed item of a batch request.
type ItemFailure struct {
	ID     string
	Detail string
}

// BatchError aggregates every failed item of a chunked batch request, across
// all chunks. Items not listed in Failures were accepted by the server.
type BatchError struct {
	Op        string
	Total     int
	Failures  []ItemFailure
	Succeeded []string
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ID)
	}
	return fmt.Sprintf("%s: %d of %d items failed (%s)", e.Op, len(e.Failures), e.Total, strings.Join(ids, ","))
}

// ConflictIDs returns the ids whose failure was a version conflict.
func (e *BatchError) ConflictIDs() []string {
	var out []string
	for _, f := range e.Failures {
		if IsVersionConflict(f.Detail) {
			out = append(out, f.ID)
		}
	}
	return out
}

// OnlyConflicts reports whether every failure is a version conflict.
func (e *BatchError) OnlyConflicts() bool {
	return len(e.Failures) > 0 && len(e.ConflictIDs()) == len(e.Failures)
}

// SessionExpiredError is surfaced when the server rejects the session token.
type SessionExpiredError struct {
	Account string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired for account %s", e.Account)
}

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

// RequestError wraps any failed network call. Message is safe to show to a
// user; Err keeps the underlying cause for errors.Is/As and logging.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// SecondaryWriteError reports that the follow-up write of a logical operation
// failed while the primary write stayed in place.
type SecondaryWriteError struct {
	Op  string
	Err error
}

func (e *SecondaryWriteError) Error() string {
	return fmt.Sprintf("%s: secondary write failed: %v", e.Op, e.Err)
}

func (e *SecondaryWriteError) Unwrap() error { return e.Err }
