package merge

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/client/models"
)

// Typed merges three values of the same struct type by way of their JSON
// object form.
func Typed[T any](base, theirs, yours T, opts Options) (T, error) {
	var zero T

	b, err := toObject(base)
	if err != nil {
		return zero, fmt.Errorf("merge base: %w", err)
	}
	t, err := toObject(theirs)
	if err != nil {
		return zero, fmt.Errorf("merge theirs: %w", err)
	}
	y, err := toObject(yours)
	if err != nil {
		return zero, fmt.Errorf("merge yours: %w", err)
	}

	raw, err := json.Marshal(Objects(b, t, y, opts))
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func toObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Records merges two concurrent edits of one record. The record type
// decides which list fields are sets. A zero base (record unknown locally)
// merges against an empty object. Version is left as yours'.
func Records(base, theirs, yours models.Record) (models.Record, error) {
	kind := yours.Type
	if kind == "" {
		kind = theirs.Type
	}
	if base.ID == "" {
		base = models.Record{}
	}
	out, err := Typed(base, theirs, yours, Options{SetFields: models.SetFields(kind)})
	if err != nil {
		return models.Record{}, err
	}
	out.Version = yours.Version
	return out, nil
}

// Metadata merges the settings maps key by key. Version is left as yours'.
func Metadata(base, theirs, yours models.Metadata) models.Metadata {
	return models.Metadata{
		Version:  yours.Version,
		Settings: Objects(base.Settings, theirs.Settings, yours.Settings, Options{}),
	}
}
