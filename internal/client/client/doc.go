// Package client talks to the praylist server over JSON/HTTP.
//
// # Overview
//
// HTTPClient implements every remote operation the client core needs:
// delta and by-id fetches, versioned puts and deletes, account metadata,
// account bootstrap (salt, create, login) and push subscriptions.
//
// Batch operations are split into chunks of common.BatchChunkSize items
// sent one after another. Per-item failures from all chunks are collected
// into a single *common.BatchError; a detail containing
// common.VersionConflictMessage marks a version conflict.
//
// # Error Handling
//
// Every failure is returned as *common.RequestError carrying a message safe
// to show to a user and the underlying cause. Causes include ErrUnavailable,
// ErrUnauthorized, ErrBadResponse, common.ErrorNotFound, common.ErrSizeLimit
// and *common.SessionExpiredError. A 403 from the server fires the
// OnSessionExpired hook once per negotiated session.
//
// # Concurrency
//
// HTTPClient is safe for concurrent use. InFlight reports how many requests
// are currently outstanding.
package client
