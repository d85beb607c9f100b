package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/dmitrijs2005/praylist/internal/client/cache"
	"github.com/dmitrijs2005/praylist/internal/client/codec"
	"github.com/dmitrijs2005/praylist/internal/client/keys"
	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/client/mutation"
	"github.com/dmitrijs2005/praylist/internal/client/repositories"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/stretchr/testify/require"
)

type account struct {
	salt        []byte
	fingerprint string
}

// fakeRemote is an in-memory versioned store with the client's contract.
type fakeRemote struct {
	mu sync.Mutex

	clock int64
	items map[string]wire.Item
	order []string

	metadata        []byte
	metadataVersion int64

	accounts map[string]account
	sessions int
	expired  func(ctx context.Context, err *common.SessionExpiredError)

	putErr    error
	rejectPut func(wire.Item) bool
	puts      [][]wire.Item
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{items: map[string]wire.Item{}, accounts: map[string]account{}}
}

func (f *fakeRemote) FetchSince(_ context.Context, since *int64) ([]wire.Item, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Item, 0, len(f.order))
	for _, id := range f.order {
		it := f.items[id]
		if since != nil && it.Modified <= *since {
			out = append(out, wire.Item{ID: id})
			continue
		}
		out = append(out, it)
	}
	return out, f.clock, nil
}

func (f *fakeRemote) FetchByIDs(_ context.Context, ids []string) ([]wire.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Item
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// store writes it unless the stored version is not lower.
func (f *fakeRemote) store(it wire.Item) bool {
	if cur, ok := f.items[it.ID]; ok && cur.Version >= it.Version {
		return false
	}
	if _, ok := f.items[it.ID]; !ok {
		f.order = append(f.order, it.ID)
	}
	f.clock++
	it.Modified = f.clock
	f.items[it.ID] = it
	return true
}

func (f *fakeRemote) PutMany(_ context.Context, items []wire.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, slices.Clone(items))
	if f.putErr != nil {
		return f.putErr
	}

	be := &common.BatchError{Op: "put items", Total: len(items)}
	for _, it := range items {
		switch {
		case f.rejectPut != nil && f.rejectPut(it):
			be.Failures = append(be.Failures, common.ItemFailure{ID: it.ID, Detail: "rejected"})
		case !f.store(it):
			be.Failures = append(be.Failures, common.ItemFailure{ID: it.ID, Detail: common.VersionConflictMessage})
		default:
			be.Succeeded = append(be.Succeeded, it.ID)
		}
	}
	if len(be.Failures) > 0 {
		return be
	}
	return nil
}

func (f *fakeRemote) DeleteMany(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.items, id)
		f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == id })
	}
	return nil
}

func (f *fakeRemote) SetMetadata(_ context.Context, metadata []byte, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataVersion >= version {
		return &common.BatchError{Op: "set metadata", Total: 1, Failures: []common.ItemFailure{
			{ID: "metadata", Detail: common.VersionConflictMessage},
		}}
	}
	f.metadata = slices.Clone(metadata)
	f.metadataVersion = version
	return nil
}

func (f *fakeRemote) GetMetadata(context.Context) ([]byte, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.metadata), f.metadataVersion, nil
}

func (f *fakeRemote) Backup(context.Context) (string, error) { return "backups/test.json", nil }

func (f *fakeRemote) CreateAccount(_ context.Context, salt []byte, fingerprint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("acc-%d", len(f.accounts)+1)
	f.accounts[id] = account{salt: slices.Clone(salt), fingerprint: fingerprint}
	return id, nil
}

func (f *fakeRemote) GetSalt(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return slices.Clone(acc.salt), nil
}

func (f *fakeRemote) Login(_ context.Context, id, fingerprint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok || subtle.ConstantTimeCompare([]byte(acc.fingerprint), []byte(fingerprint)) != 1 {
		return "", common.ErrorUnauthorized
	}
	f.sessions++
	return fmt.Sprintf("token-%d", f.sessions), nil
}

func (f *fakeRemote) OnSessionExpired(fn func(ctx context.Context, err *common.SessionExpiredError)) {
	f.expired = fn
}

func (f *fakeRemote) Ping(context.Context) error { return nil }

// writeFromOtherDevice stores r as another client would.
func (f *fakeRemote) writeFromOtherDevice(t *testing.T, key []byte, r models.Record) {
	t.Helper()
	env, err := cryptox.EncryptObject(key, r)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.True(t, f.store(wire.Item{ID: r.ID, Cipher: env.Cipher, IV: env.IV, Type: string(r.Type), Version: r.Version}))
}

type harness struct {
	remote  *fakeRemote
	repos   *repositories.Repositories
	session *keys.Session
	codec   *codec.Codec
	cache   *cache.Cache
	records RecordService
	auth    AuthService
	key     []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, newFakeRemote())
}

// newHarnessOn builds a client with its own local database over remote.
func newHarnessOn(t *testing.T, remote *fakeRemote) *harness {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()

	repos, err := repositories.Open(ctx, repositories.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	h := &harness{remote: remote, repos: repos}
	h.session = keys.NewSession(repos.Metadata, log)
	h.codec, err = codec.New(h.session, 64)
	require.NoError(t, err)
	h.cache = cache.New(repos.Metadata, repos.Records, h.remote, log)

	engine := mutation.NewEngine(mutation.Options{MaxAttempts: 3}, log)
	h.records = NewRecordService(h.remote, h.cache, h.codec, repos.Metadata, engine, log)
	h.auth = NewAuthService(h.remote, h.session, h.cache, h.codec, log)
	return h
}

// signedIn registers an account with a cheap key so tests stay fast.
func signedIn(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	ctx := context.Background()

	h.key = cryptox.DeriveKey([]byte("pw"), []byte("salt"), 1)
	acc, err := h.remote.CreateAccount(ctx, []byte("salt"), cryptox.AuthFingerprint(h.key))
	require.NoError(t, err)
	require.NoError(t, h.session.Import(ctx, acc, h.key))
	require.NoError(t, h.session.Negotiate(ctx, h.remote))
	require.NoError(t, h.cache.EnsureAccount(ctx, acc))
	return h
}

// otherDevice signs a second client into h's account over the same remote.
func (h *harness) otherDevice(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	o := newHarnessOn(t, h.remote)
	o.key = h.key
	acc := h.session.Account()
	require.NoError(t, o.session.Import(ctx, acc, o.key))
	require.NoError(t, o.session.Negotiate(ctx, o.remote))
	require.NoError(t, o.cache.EnsureAccount(ctx, acc))
	return o
}
