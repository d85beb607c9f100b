// Package services contains server-side business logic. The server never
// sees plaintext: it stores salts, fingerprint hashes and ciphertext.
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/server/auth"
	"github.com/dmitrijs2005/praylist/internal/server/config"
	"github.com/dmitrijs2005/praylist/internal/server/models"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SaltSize is the length of the stand-in salt served for unknown accounts.
const SaltSize = 32

// AccountService handles account creation, login and session checks.
type AccountService interface {
	// Create registers an account and returns its id.
	Create(ctx context.Context, salt []byte, fingerprint string) (string, error)
	// GetSalt returns the account's salt, or a stable stand-in for unknown
	// accounts so the answer does not reveal whether the account exists.
	GetSalt(ctx context.Context, account string) ([]byte, error)
	// Login verifies the fingerprint and returns a fresh session token.
	Login(ctx context.Context, account, fingerprint string) (string, error)
	// Authenticate checks a session token and returns its account.
	Authenticate(ctx context.Context, token string) (string, error)
}

type accountService struct {
	repos      repomanager.RepositoryManager
	jwtSecret  []byte
	sessionTTL time.Duration
	log        logging.Logger
	now        func() time.Time
}

// NewAccountService constructs an AccountService using repositories and server config.
func NewAccountService(m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) AccountService {
	return &accountService{
		repos:      m,
		jwtSecret:  []byte(cfg.SecretKey),
		sessionTTL: cfg.SessionTTL,
		log:        log.With("module", "accounts"),
		now:        time.Now,
	}
}

func (s *accountService) Create(ctx context.Context, salt []byte, fingerprint string) (string, error) {
	if len(salt) == 0 {
		return "", &common.ValidationError{Field: "salt", Reason: "is required"}
	}
	if fingerprint == "" {
		return "", &common.ValidationError{Field: "authToken", Reason: "is required"}
	}

	account := &models.Account{
		ID:       uuid.NewString(),
		Salt:     salt,
		AuthHash: hashString(fingerprint),
	}
	if err := s.repos.Accounts(s.repos.Conn()).Create(ctx, account); err != nil {
		s.log.Error(ctx, "failed to create account", "error", err)
		return "", common.ErrorInternal
	}

	s.log.Info(ctx, "account created", "account", account.ID)
	return account.ID, nil
}

func (s *accountService) GetSalt(ctx context.Context, account string) ([]byte, error) {
	if _, err := uuid.Parse(account); err != nil {
		return s.standInSalt(account), nil
	}

	a, err := s.repos.Accounts(s.repos.Conn()).Get(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.standInSalt(account), nil
		}
		s.log.Error(ctx, "failed to load account", "account", account, "error", err)
		return nil, common.ErrorInternal
	}
	return a.Salt, nil
}

func (s *accountService) Login(ctx context.Context, account, fingerprint string) (string, error) {
	if _, err := uuid.Parse(account); err != nil {
		return "", common.ErrorUnauthorized
	}

	a, err := s.repos.Accounts(s.repos.Conn()).Get(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		s.log.Error(ctx, "failed to load account", "account", account, "error", err)
		return "", common.ErrorInternal
	}
	if !checkHash(a.AuthHash, hashString(fingerprint)) {
		s.log.Warn(ctx, "login rejected", "account", account)
		return "", common.ErrorUnauthorized
	}

	var token string
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Sessions(tx)
		now := s.now()

		purged, err := repo.DeleteExpired(ctx, account, now)
		if err != nil {
			return err
		}
		if purged > 0 {
			s.log.Debug(ctx, "expired sessions purged", "account", account, "count", purged)
		}

		sessionID := uuid.NewString()
		token, err = auth.GenerateToken(account, sessionID, s.jwtSecret, s.sessionTTL)
		if err != nil {
			return err
		}
		return repo.Create(ctx, &models.Session{
			ID:        sessionID,
			AccountID: account,
			TokenHash: hashString(token),
			ExpiresAt: now.Add(s.sessionTTL),
		})
	})
	if err != nil {
		s.log.Error(ctx, "failed to open session", "account", account, "error", err)
		return "", common.ErrorInternal
	}

	return token, nil
}

func (s *accountService) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return "", err
	}

	session, err := s.repos.Sessions(s.repos.Conn()).Get(ctx, claims.SessionID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidToken
		}
		s.log.Error(ctx, "failed to load session", "error", err)
		return "", common.ErrorInternal
	}
	if session.AccountID != claims.Account || !checkHash(session.TokenHash, hashString(token)) {
		return "", common.ErrInvalidToken
	}
	if session.Expired(s.now()) {
		return "", common.ErrTokenExpired
	}

	return claims.Account, nil
}

// standInSalt derives a salt from the server secret so repeated lookups of
// the same unknown account agree.
func (s *accountService) standInSalt(account string) []byte {
	mac := hmac.New(sha256.New, s.jwtSecret)
	mac.Write([]byte("salt:" + account))
	return mac.Sum(nil)[:SaltSize]
}

func hashString(v string) []byte {
	sum := sha256.Sum256([]byte(v))
	return sum[:]
}

func checkHash(stored, candidate []byte) bool {
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}
