package services

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/client/codec"
	"github.com/dmitrijs2005/praylist/internal/client/keys"
	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/client/mutation"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/merge"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// StateAccountMetadata holds the last known metadata blob and its version.
const StateAccountMetadata = "account_metadata"

const metadataKey = "metadata"

func (s *recordService) Metadata(ctx context.Context) (models.Metadata, error) {
	m, ok, err := s.meta.cached(ctx)
	if err != nil || ok {
		return m, err
	}
	if err := s.meta.Refresh(ctx); err != nil {
		return models.Metadata{}, err
	}
	m, ok, err = s.meta.cached(ctx)
	if err != nil {
		return models.Metadata{}, err
	}
	if !ok {
		m = models.Metadata{Settings: map[string]any{}}
	}
	return m, nil
}

// SaveSettings overlays settings on the current metadata and saves it.
func (s *recordService) SaveSettings(ctx context.Context, settings map[string]any) error {
	current, err := s.Metadata(ctx)
	if err != nil {
		return err
	}
	next := models.Metadata{Version: current.Version, Settings: maps.Clone(current.Settings)}
	if next.Settings == nil {
		next.Settings = make(map[string]any, len(settings))
	}
	maps.Copy(next.Settings, settings)

	return mutation.Execute[models.Metadata](ctx, s.engine, s.meta, []models.Metadata{next})
}

// metadataSlot keeps the account metadata in the local state store.
type metadataSlot struct {
	remote RecordRemote
	codec  *codec.Codec
	store  keys.StateStore
	log    logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

func newMetadataSlot(remote RecordRemote, cd *codec.Codec, store keys.StateStore, log logging.Logger) *metadataSlot {
	return &metadataSlot{remote: remote, codec: cd, store: store, log: log}
}

func (ms *metadataSlot) Name() string { return metadataKey }
func (ms *metadataSlot) Key(models.Metadata) string { return metadataKey }
func (ms *metadataSlot) Version(m models.Metadata) int64 { return m.Version }

func (ms *metadataSlot) WithVersion(m models.Metadata, v int64) models.Metadata {
	m.Version = v
	return m
}

func (ms *metadataSlot) decode(raw []byte, version int64) (models.Metadata, error) {
	m := models.Metadata{Version: version, Settings: map[string]any{}}
	if len(raw) == 0 || string(raw) == "null" {
		return m, nil
	}
	legacy, err := ms.codec.DecryptMetadata(raw, &m.Settings)
	if err != nil {
		return models.Metadata{}, err
	}
	if legacy {
		ms.log.Info(context.Background(), "plaintext metadata found, it is encrypted on next save")
	}
	if m.Settings == nil {
		m.Settings = map[string]any{}
	}
	return m, nil
}

func (ms *metadataSlot) encode(m models.Metadata) ([]byte, error) {
	env, err := ms.codec.EncryptObject(m.Settings)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return json.Marshal(env)
}

func (ms *metadataSlot) persist(ctx context.Context, raw []byte, version int64) error {
	doc, err := json.Marshal(wire.MetadataRequest{Metadata: raw, Version: version})
	if err != nil {
		return err
	}
	return ms.store.Set(ctx, StateAccountMetadata, doc)
}

// cached returns the stored metadata; ok is false when nothing is stored.
func (ms *metadataSlot) cached(ctx context.Context) (models.Metadata, bool, error) {
	doc, err := ms.store.Get(ctx, StateAccountMetadata)
	if err != nil || len(doc) == 0 {
		return models.Metadata{}, false, err
	}
	var stored wire.MetadataRequest
	if err := json.Unmarshal(doc, &stored); err != nil {
		return models.Metadata{}, false, fmt.Errorf("corrupt cached metadata: %w", err)
	}
	m, err := ms.decode(stored.Metadata, stored.Version)
	if err != nil {
		return models.Metadata{}, false, err
	}
	return m, true, nil
}

func (ms *metadataSlot) Base(ctx context.Context, _ []string) (map[string]models.Metadata, error) {
	m, ok, err := ms.cached(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return map[string]models.Metadata{metadataKey: m}, nil
}

func (ms *metadataSlot) CancelRefresh() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.cancel != nil {
		ms.cancel()
		ms.cancel = nil
	}
	ms.seq++
}

func (ms *metadataSlot) Snapshot(ctx context.Context) (any, error) {
	return ms.store.Get(ctx, StateAccountMetadata)
}

func (ms *metadataSlot) Restore(ctx context.Context, snapshot any) error {
	doc, _ := snapshot.([]byte)
	if len(doc) == 0 {
		return ms.store.Delete(ctx, StateAccountMetadata)
	}
	return ms.store.Set(ctx, StateAccountMetadata, doc)
}

func (ms *metadataSlot) Apply(ctx context.Context, values []models.Metadata) error {
	for _, m := range values {
		raw, err := ms.encode(m)
		if err != nil {
			return err
		}
		if err := ms.persist(ctx, raw, m.Version); err != nil {
			return err
		}
	}
	return nil
}

func (ms *metadataSlot) Save(ctx context.Context, values []models.Metadata) error {
	for _, m := range values {
		raw, err := ms.encode(m)
		if err != nil {
			return err
		}
		if err := ms.remote.SetMetadata(ctx, raw, m.Version); err != nil {
			return err
		}
	}
	return nil
}

func (ms *metadataSlot) Fetch(ctx context.Context, _ []string) (map[string]models.Metadata, error) {
	raw, version, err := ms.remote.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}
	m, err := ms.decode(raw, version)
	if err != nil {
		return nil, err
	}
	return map[string]models.Metadata{metadataKey: m}, nil
}

func (ms *metadataSlot) Merge(base, theirs, yours models.Metadata) (models.Metadata, error) {
	return merge.Metadata(base, theirs, yours), nil
}

// Refresh stores the server's metadata unless a mutation cancelled it
// meanwhile.
func (ms *metadataSlot) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ms.mu.Lock()
	if ms.cancel != nil {
		ms.cancel()
	}
	ms.cancel = cancel
	ms.seq++
	seq := ms.seq
	ms.mu.Unlock()

	raw, version, err := ms.remote.GetMetadata(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ctx.Err() != nil || seq != ms.seq {
		ms.log.Debug(ctx, "metadata refresh superseded")
		return nil
	}
	ms.cancel = nil
	return ms.persist(ctx, raw, version)
}
