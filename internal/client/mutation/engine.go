// Package mutation drives a local change through optimistic application,
// remote save, conflict resolution and rollback.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
)

// DefaultMaxAttempts is the number of saves tried before giving up on
// conflicts.
const DefaultMaxAttempts = 3

type Options struct {
	MaxAttempts int
	// RetryDelay is waited between save attempts, plus up to half of it
	// again as random jitter. Zero retries immediately.
	RetryDelay time.Duration
}

type Engine struct {
	opts Options
	log  logging.Logger
}

func NewEngine(opts Options, log logging.Logger) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{opts: opts, log: log.With("module", "mutation")}
}

// Execute runs changes through the slot until it commits or rolls back and
// then refreshes the slot from the server. The returned error is the one
// that caused the rollback.
func Execute[T any](ctx context.Context, e *Engine, slot Slot[T], changes []T) error {
	r := NewRun(e, slot, changes)
	return r.Drive(ctx)
}

// Run is a single mutation. Its exported methods are the individual
// transitions; Drive applies them until a terminal state is reached.
type Run[T any] struct {
	engine *Engine
	slot   Slot[T]
	log    logging.Logger

	State   State
	History []State
	Attempt int
	Err     error

	// Base holds the last known server values, Pending what the next save
	// sends.
	Base      map[string]T
	Pending   []T
	Conflicts []string
	Theirs    map[string]T

	snapshot any
	snapped  bool
}

func NewRun[T any](e *Engine, slot Slot[T], changes []T) *Run[T] {
	pending := make([]T, len(changes))
	copy(pending, changes)
	return &Run[T]{
		engine:  e,
		slot:    slot,
		log:     e.log.With("slot", slot.Name()),
		State:   Preparing,
		History: []State{Preparing},
		Pending: pending,
	}
}

func (r *Run[T]) to(ctx context.Context, s State) {
	r.log.Debug(ctx, "transition", "from", r.State.String(), "to", s.String(), "attempt", r.Attempt)
	r.State = s
	r.History = append(r.History, s)
}

func (r *Run[T]) fail(ctx context.Context, err error) {
	if r.Err == nil {
		r.Err = err
	}
	r.Rollback(ctx)
}

func (r *Run[T]) keys(values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.slot.Key(v)
	}
	return out
}

// Drive steps the run to a terminal state and always refreshes the slot.
func (r *Run[T]) Drive(ctx context.Context) error {
	for !r.State.Terminal() {
		r.Step(ctx)
	}

	if err := r.slot.Refresh(ctx); err != nil {
		r.log.Warn(ctx, "refresh after mutation failed", "error", err)
	}

	if r.State == RolledBack {
		return r.Err
	}
	return nil
}

// Step performs the transition out of the current state.
func (r *Run[T]) Step(ctx context.Context) {
	switch r.State {
	case Preparing:
		r.Prepare(ctx)
	case OptimisticallyApplied:
		r.to(ctx, Saving)
	case Saving:
		r.Save(ctx)
	case ConflictDetected:
		r.Detect(ctx)
	case Merging:
		r.Merge(ctx)
	}
}

// Prepare reads the cached base and proposes one past the version each
// pending value was read at, then applies the result locally. Values
// without a version are taken to be read at the cached one. A stale read
// keeps its old version so the server reports the conflict.
func (r *Run[T]) Prepare(ctx context.Context) {
	if len(r.Pending) == 0 {
		r.to(ctx, Committed)
		return
	}

	base, err := r.slot.Base(ctx, r.keys(r.Pending))
	if err != nil {
		r.fail(ctx, fmt.Errorf("read cached base: %w", err))
		return
	}
	r.Base = base

	tracker, _ := r.slot.(ReadTracker[T])
	for i, v := range r.Pending {
		key := r.slot.Key(v)
		read := r.slot.Version(v)
		cached, inCache := base[key]

		switch {
		case read == 0:
			if inCache {
				read = r.slot.Version(cached)
			}
		case inCache && tracker != nil && read != r.slot.Version(cached):
			if old, ok := tracker.ReadAt(key, read); ok {
				r.Base[key] = old
			} else {
				r.log.Debug(ctx, "stale read without a remembered base", "key", key, "read", read, "cached", r.slot.Version(cached))
			}
		}
		r.Pending[i] = r.slot.WithVersion(v, read+1)
	}

	r.Apply(ctx)
}

// Apply cancels any refresh of the slot, snapshots the cache once and
// writes Pending into it.
func (r *Run[T]) Apply(ctx context.Context) {
	r.slot.CancelRefresh()

	if !r.snapped {
		snap, err := r.slot.Snapshot(ctx)
		if err != nil {
			r.fail(ctx, fmt.Errorf("snapshot cache: %w", err))
			return
		}
		r.snapshot, r.snapped = snap, true
	}

	if err := r.slot.Apply(ctx, r.Pending); err != nil {
		r.fail(ctx, fmt.Errorf("apply locally: %w", err))
		return
	}
	r.to(ctx, OptimisticallyApplied)
}

// Save sends Pending to the server.
func (r *Run[T]) Save(ctx context.Context) {
	if r.Attempt > 0 {
		if err := r.engine.wait(ctx); err != nil {
			r.fail(ctx, err)
			return
		}
	}
	r.Attempt++

	err := r.slot.Save(ctx, r.Pending)
	if err == nil {
		r.to(ctx, Committed)
		return
	}

	var be *common.BatchError
	if errors.As(err, &be) && be.OnlyConflicts() {
		if _, ok := r.slot.(Merger[T]); !ok {
			r.fail(ctx, fmt.Errorf("%w: %w", common.ErrVersionConflict, err))
			return
		}
		if r.Attempt >= r.engine.opts.MaxAttempts {
			r.fail(ctx, fmt.Errorf("%w after %d attempts: %w", common.ErrVersionConflict, r.Attempt, err))
			return
		}
		r.Conflicts = be.ConflictIDs()
		r.to(ctx, ConflictDetected)
		return
	}

	r.fail(ctx, err)
}

// Detect fetches the server's values for the conflicting keys.
func (r *Run[T]) Detect(ctx context.Context) {
	theirs, err := r.slot.Fetch(ctx, r.Conflicts)
	if err != nil {
		r.fail(ctx, fmt.Errorf("fetch conflicting values: %w", err))
		return
	}
	r.Theirs = theirs
	r.to(ctx, Merging)
}

// Merge resolves every conflicting value against the server's copy. Only
// the conflicting values are retried, each at theirs' version plus one,
// and theirs becomes the new base.
func (r *Run[T]) Merge(ctx context.Context) {
	merger, ok := r.slot.(Merger[T])
	if !ok {
		r.fail(ctx, common.ErrVersionConflict)
		return
	}

	conflicting := make(map[string]struct{}, len(r.Conflicts))
	for _, k := range r.Conflicts {
		conflicting[k] = struct{}{}
	}

	if r.Base == nil {
		r.Base = make(map[string]T)
	}

	retry := make([]T, 0, len(r.Conflicts))
	for _, yours := range r.Pending {
		key := r.slot.Key(yours)
		if _, ok := conflicting[key]; !ok {
			continue
		}

		theirs, ok := r.Theirs[key]
		if !ok {
			// gone on the server; the next save recreates it
			r.log.Info(ctx, "conflicting value no longer on server", "key", key)
			retry = append(retry, yours)
			continue
		}

		merged, err := merger.Merge(r.Base[key], theirs, yours)
		if err != nil {
			r.fail(ctx, fmt.Errorf("merge %s: %w", key, err))
			return
		}
		retry = append(retry, r.slot.WithVersion(merged, r.slot.Version(theirs)+1))
		r.Base[key] = theirs
	}

	r.Pending = retry
	r.Conflicts = nil
	r.Theirs = nil

	if err := r.slot.Apply(ctx, r.Pending); err != nil {
		r.fail(ctx, fmt.Errorf("apply merged: %w", err))
		return
	}
	r.to(ctx, Saving)
}

// Rollback restores the pre-mutation snapshot, if one was taken.
func (r *Run[T]) Rollback(ctx context.Context) {
	if r.snapped {
		if err := r.slot.Restore(context.WithoutCancel(ctx), r.snapshot); err != nil {
			r.log.Error(ctx, "restore snapshot failed", "error", err)
		}
	}
	r.log.Warn(ctx, "mutation rolled back", "error", r.Err, "attempt", r.Attempt)
	r.to(ctx, RolledBack)
}

func (e *Engine) wait(ctx context.Context) error {
	d := e.opts.RetryDelay
	if d <= 0 {
		return ctx.Err()
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
