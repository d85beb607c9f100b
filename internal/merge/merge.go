// Package merge implements the three-way merge used to reconcile a local
// pending change with a concurrent remote change against their common
// ancestor.
//
// Objects are compared field by field:
//
//	only yours changed  -> yours
//	only theirs changed -> theirs
//	both changed        -> yours
//	neither changed     -> base
//
// A missing key is a value of its own, so deleting a field is a change.
// Fields named in Options.SetFields hold unordered sets and are reconciled
// element-wise instead: everything added by either side is kept, and an
// element removed by either side is dropped even if the other side kept it.
//
// The resolver never touches versions; callers set version = theirs + 1.
package merge

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Options tunes a merge.
type Options struct {
	// SetFields lists top-level keys whose values are JSON arrays to be merged
	// as sets.
	SetFields []string
}

func (o Options) isSet(key string) bool {
	for _, f := range o.SetFields {
		if f == key {
			return true
		}
	}
	return false
}

type slot struct {
	v  any
	ok bool
}

func lookup(m map[string]any, key string) slot {
	v, ok := m[key]
	return slot{v: v, ok: ok}
}

func same(a, b slot) bool {
	if a.ok != b.ok {
		return false
	}
	return !a.ok || reflect.DeepEqual(a.v, b.v)
}

// Objects merges three JSON-shaped objects. Nil maps are treated as empty.
// The inputs are not modified; the result shares no maps with them but may
// share nested values.
func Objects(base, theirs, yours map[string]any, opts Options) map[string]any {
	out := make(map[string]any, len(yours))

	for _, key := range unionKeys(base, theirs, yours) {
		b, t, y := lookup(base, key), lookup(theirs, key), lookup(yours, key)

		if opts.isSet(key) {
			if merged, ok := mergeSet(b, t, y); ok {
				out[key] = merged
				continue
			}
		}

		var pick slot
		switch {
		case !same(b, y):
			pick = y
		case !same(b, t):
			pick = t
		default:
			pick = b
		}
		if pick.ok {
			out[key] = pick.v
		}
	}
	return out
}

func unionKeys(maps ...map[string]any) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range maps {
		for k := range m {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// mergeSet reports ok=false when any present side is not an array, in which
// case the caller falls back to the scalar rule.
func mergeSet(b, t, y slot) ([]any, bool) {
	if !b.ok && !t.ok && !y.ok {
		return nil, false
	}
	base, ok1 := asList(b)
	theirs, ok2 := asList(t)
	yours, ok3 := asList(y)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}

	baseSet := index(base)
	theirSet := index(theirs)
	yourSet := index(yours)

	out := make([]any, 0, len(base)+len(theirs)+len(yours))
	emitted := make(map[string]struct{}, cap(out))
	emit := func(v any, k string) {
		if _, dup := emitted[k]; dup {
			return
		}
		emitted[k] = struct{}{}
		out = append(out, v)
	}

	for _, v := range base {
		k := elementKey(v)
		_, inTheirs := theirSet[k]
		_, inYours := yourSet[k]
		if inTheirs && inYours {
			emit(v, k)
		}
	}
	for _, side := range [][]any{theirs, yours} {
		for _, v := range side {
			k := elementKey(v)
			if _, wasBase := baseSet[k]; !wasBase {
				emit(v, k)
			}
		}
	}
	return out, true
}

func asList(s slot) ([]any, bool) {
	if !s.ok || s.v == nil {
		return nil, true
	}
	list, ok := s.v.([]any)
	return list, ok
}

func index(list []any) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		m[elementKey(v)] = struct{}{}
	}
	return m
}

func elementKey(v any) string {
	if s, ok := v.(string); ok {
		return "s:" + s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return "j:" + string(b)
}
