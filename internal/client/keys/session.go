// Package keys holds the client's key material and session token for the
// signed-in account.
//
// A Session is created once per process and handed by reference to the
// codec, the HTTP client and the services. Nothing else keeps a copy of the
// key.
package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	"github.com/dmitrijs2005/praylist/internal/logging"
)

// Keys under which the session persists itself in the local state store.
const (
	StateWrappedKey = "wrapped_key"
	StateAccount    = "account"
)

// StateStore is the persisted key/value area of the local database.
// Get returns (nil, nil) for a missing key.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Negotiator exchanges the auth fingerprint for a session token.
type Negotiator interface {
	Login(ctx context.Context, account, fingerprint string) (string, error)
}

// Session is safe for concurrent use.
type Session struct {
	mu          sync.RWMutex
	account     string
	key         []byte
	fingerprint string
	token       string
	generation  uint64

	store StateStore
	log   logging.Logger

	onSignOut   []func()
	onKeyChange []func()
}

func NewSession(store StateStore, log logging.Logger) *Session {
	return &Session{store: store, log: log.With("module", "keys")}
}

// Unlock derives the account key from password and salt, keeps it in
// memory and persists it for Restore.
func (s *Session) Unlock(ctx context.Context, account string, password, salt []byte, iterations int) error {
	key := cryptox.DeriveKey(password, salt, iterations)
	defer common.WipeByteArray(key)
	return s.Import(ctx, account, key)
}

// Import loads an already derived raw key.
func (s *Session) Import(ctx context.Context, account string, key []byte) error {
	if len(key) != cryptox.KeySize {
		return fmt.Errorf("import key: want %d bytes, got %d", cryptox.KeySize, len(key))
	}

	own := make([]byte, len(key))
	copy(own, key)

	s.mu.Lock()
	common.WipeByteArray(s.key)
	s.account = account
	s.key = own
	s.fingerprint = cryptox.AuthFingerprint(own)
	s.token = ""
	hooks := append([]func(){}, s.onKeyChange...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if s.store == nil {
		return nil
	}
	if err := s.store.Set(ctx, StateWrappedKey, []byte(base64.StdEncoding.EncodeToString(own))); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}
	if err := s.store.Set(ctx, StateAccount, []byte(account)); err != nil {
		return fmt.Errorf("persist account: %w", err)
	}
	return nil
}

// Restore re-imports a persisted key and negotiates a fresh session.
// It returns common.ErrNotInitialised when nothing is persisted.
func (s *Session) Restore(ctx context.Context, n Negotiator) error {
	if s.store == nil {
		return common.ErrNotInitialised
	}
	wrapped, err := s.store.Get(ctx, StateWrappedKey)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	account, err := s.store.Get(ctx, StateAccount)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if len(wrapped) == 0 || len(account) == 0 {
		return common.ErrNotInitialised
	}

	key, err := base64.StdEncoding.DecodeString(string(wrapped))
	if err != nil {
		return fmt.Errorf("decode persisted key: %w", err)
	}
	defer common.WipeByteArray(key)

	if err := s.Import(ctx, string(account), key); err != nil {
		return err
	}
	return s.Negotiate(ctx, n)
}

// Negotiate trades the fingerprint for a session token. Every successful
// negotiation starts a new session generation.
func (s *Session) Negotiate(ctx context.Context, n Negotiator) error {
	account, fingerprint, err := s.credentials()
	if err != nil {
		return err
	}

	token, err := n.Login(ctx, account, fingerprint)
	if err != nil {
		return fmt.Errorf("negotiate session: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.log.Debug(ctx, "session negotiated", "account", account, "generation", gen)
	return nil
}

func (s *Session) credentials() (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", "", common.ErrNotInitialised
	}
	return s.account, s.fingerprint, nil
}

// Key returns a copy of the raw key.
func (s *Session) Key() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, common.ErrNotInitialised
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}

// Fingerprint returns the bootstrap credential for the loaded key.
func (s *Session) Fingerprint() (string, error) {
	_, fp, err := s.credentials()
	return fp, err
}

func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// AuthHeader is the Authorization value for authenticated requests, or ""
// when no session is open.
func (s *Session) AuthHeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return ""
	}
	return common.BearerPrefix + s.token
}

// Generation identifies the current negotiated session.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Ready reports whether a key is loaded.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// OnSignOut registers fn to run after every SignOut, e.g. to purge caches
// holding decrypted data.
func (s *Session) OnSignOut(fn func()) {
	s.mu.Lock()
	s.onSignOut = append(s.onSignOut, fn)
	s.mu.Unlock()
}

// OnKeyChange registers fn to run after every Import, once the new key is
// in place.
func (s *Session) OnKeyChange(fn func()) {
	s.mu.Lock()
	s.onKeyChange = append(s.onKeyChange, fn)
	s.mu.Unlock()
}

// SignOut forgets the key, fingerprint and token and deletes the persisted
// key material. It is idempotent and works with no key loaded.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	common.WipeByteArray(s.key)
	s.key = nil
	s.fingerprint = ""
	s.token = ""
	account := s.account
	s.account = ""
	hooks := append([]func(){}, s.onSignOut...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, StateWrappedKey); err != nil {
			return fmt.Errorf("clear key: %w", err)
		}
		if err := s.store.Delete(ctx, StateAccount); err != nil {
			return fmt.Errorf("clear account: %w", err)
		}
	}

	if account != "" {
		s.log.Info(ctx, "signed out", "account", account)
	}
	return nil
}
