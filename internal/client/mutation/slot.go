package mutation

import "context"

// Slot adapts one kind of cached, remotely versioned value to the engine.
// T is the plaintext value the caller works with.
type Slot[T any] interface {
	Name() string

	Key(v T) string
	Version(v T) int64
	WithVersion(v T, version int64) T

	// Base returns the cached values for keys. Missing keys are omitted.
	Base(ctx context.Context, keys []string) (map[string]T, error)

	// CancelRefresh aborts a refresh of the slot that is still in flight.
	CancelRefresh()
	Snapshot(ctx context.Context) (any, error)
	Restore(ctx context.Context, snapshot any) error
	Apply(ctx context.Context, values []T) error

	// Save writes values remotely. Version conflicts must be reported as a
	// *common.BatchError whose failures carry the conflict marker.
	Save(ctx context.Context, values []T) error
	// Fetch reads the authoritative values for keys from the server.
	Fetch(ctx context.Context, keys []string) (map[string]T, error)

	Refresh(ctx context.Context) error
}

// Merger is implemented by slots that can resolve conflicts. A slot without
// it rolls back on the first conflict.
type Merger[T any] interface {
	Merge(base, theirs, yours T) (T, error)
}

// ReadTracker is implemented by slots that remember the values they handed
// out. A pending value whose version differs from the cached one was edited
// from an older read, and that read becomes its merge base.
type ReadTracker[T any] interface {
	ReadAt(key string, version int64) (T, bool)
}
