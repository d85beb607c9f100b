package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/client/cache"
	"github.com/dmitrijs2005/praylist/internal/client/codec"
	"github.com/dmitrijs2005/praylist/internal/client/keys"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	"github.com/dmitrijs2005/praylist/internal/logging"
)

// SaltSize is the length of a freshly generated account salt.
const SaltSize = 32

// SessionExpiredNotice is passed to the notice hook when the server ends
// the session.
const SessionExpiredNotice = "Your session has expired. Please sign in again."

// AuthService defines the account and session operations.
//
//   - Register: create an account on the server and sign in to it.
//   - Login: derive the key for an existing account and open a session.
//   - Restore: reopen the session persisted by an earlier Login.
//   - Logout: forget key material and the local cache.
//   - Ping: check server liveness.
type AuthService interface {
	Register(ctx context.Context, password []byte) (string, error)
	Login(ctx context.Context, account string, password []byte) error
	Restore(ctx context.Context) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	Account() string
	// OnNotice registers the function that shows user-facing notices.
	OnNotice(fn func(msg string))
}

type authService struct {
	remote  AuthRemote
	session *keys.Session
	cache   *cache.Cache
	log     logging.Logger

	mu     sync.Mutex
	notice func(string)
}

// NewAuthService wires the session lifecycle: sign-out and key import purge
// the codec memo, and a session rejected by the server forces a sign-out followed by
// a notice.
func NewAuthService(remote AuthRemote, session *keys.Session, c *cache.Cache, cd *codec.Codec, log logging.Logger) AuthService {
	a := &authService{remote: remote, session: session, cache: c, log: log.With("module", "auth")}

	session.OnSignOut(cd.Purge)
	session.OnKeyChange(cd.Purge)
	remote.OnSessionExpired(a.sessionExpired)
	return a
}

func (a *authService) OnNotice(fn func(msg string)) {
	a.mu.Lock()
	a.notice = fn
	a.mu.Unlock()
}

func (a *authService) sessionExpired(ctx context.Context, err *common.SessionExpiredError) {
	a.log.Warn(ctx, "session rejected by server, signing out", "account", err.Account)
	if err := a.Logout(context.WithoutCancel(ctx)); err != nil {
		a.log.Error(ctx, "forced sign-out failed", "error", err)
	}

	a.mu.Lock()
	notice := a.notice
	a.mu.Unlock()
	if notice != nil {
		notice(SessionExpiredNotice)
	}
}

func (a *authService) Register(ctx context.Context, password []byte) (string, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	key := cryptox.DeriveKey(password, salt, common.KeyDerivationIterations)
	defer common.WipeByteArray(key)

	account, err := a.remote.CreateAccount(ctx, salt, cryptox.AuthFingerprint(key))
	if err != nil {
		return "", fmt.Errorf("register error: %w", err)
	}

	if err := a.open(ctx, func() error { return a.session.Import(ctx, account, key) }); err != nil {
		return "", err
	}
	a.log.Info(ctx, "account created", "account", account)
	return account, nil
}

func (a *authService) Login(ctx context.Context, account string, password []byte) error {
	salt, err := a.remote.GetSalt(ctx, account)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}
	return a.open(ctx, func() error {
		return a.session.Unlock(ctx, account, password, salt, common.KeyDerivationIterations)
	})
}

// open loads the key, negotiates a session and binds the cache to the
// account. On failure nothing stays loaded.
func (a *authService) open(ctx context.Context, load func() error) error {
	if err := load(); err != nil {
		return fmt.Errorf("key error: %w", err)
	}
	if err := a.session.Negotiate(ctx, a.remote); err != nil {
		_ = a.session.SignOut(ctx)
		return fmt.Errorf("login error: %w", err)
	}
	if err := a.cache.EnsureAccount(ctx, a.session.Account()); err != nil {
		return fmt.Errorf("cache error: %w", err)
	}
	return nil
}

func (a *authService) Restore(ctx context.Context) error {
	if err := a.session.Restore(ctx, a.remote); err != nil {
		if errors.Is(err, common.ErrNotInitialised) {
			return err
		}
		return fmt.Errorf("restore error: %w", err)
	}
	if err := a.cache.EnsureAccount(ctx, a.session.Account()); err != nil {
		return fmt.Errorf("cache error: %w", err)
	}
	return nil
}

// Logout is idempotent and works without a loaded key.
func (a *authService) Logout(ctx context.Context) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	return a.cache.Clear(ctx)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.remote.Ping(ctx)
}

func (a *authService) Account() string {
	return a.session.Account()
}
