// Package codec encrypts and decrypts record payloads with the key held by
// the current session.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoSize bounds the number of decrypted payloads kept in memory.
const DefaultMemoSize = 1024

// KeySource yields the raw account key. *keys.Session implements it.
type KeySource interface {
	Key() ([]byte, error)
}

// Codec is safe for concurrent use.
type Codec struct {
	keys KeySource
	memo *lru.Cache[string, []byte]
}

func New(keys KeySource, memoSize int) (*Codec, error) {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}
	memo, err := lru.New[string, []byte](memoSize)
	if err != nil {
		return nil, err
	}
	return &Codec{keys: keys, memo: memo}, nil
}

// Encrypt seals plaintext under a fresh IV.
func (c *Codec) Encrypt(plaintext []byte) (cryptox.Envelope, error) {
	key, err := c.keys.Key()
	if err != nil {
		return cryptox.Envelope{}, err
	}
	defer common.WipeByteArray(key)
	return cryptox.Encrypt(key, plaintext)
}

// Decrypt opens env, serving repeated envelopes from the memo.
func (c *Codec) Decrypt(env cryptox.Envelope) ([]byte, error) {
	memoKey := env.IV + "|" + env.Cipher
	if plain, ok := c.memo.Get(memoKey); ok {
		return clone(plain), nil
	}

	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	plain, err := cryptox.Decrypt(key, env)
	if err != nil {
		return nil, err
	}
	c.memo.Add(memoKey, clone(plain))
	return plain, nil
}

func (c *Codec) EncryptObject(v any) (cryptox.Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return cryptox.Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)
	return c.Encrypt(plaintext)
}

func (c *Codec) DecryptObject(env cryptox.Envelope, v any) error {
	plaintext, err := c.Decrypt(env)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		return &common.DecryptionError{Cause: fmt.Errorf("payload: %w", err)}
	}
	return nil
}

// DecryptMetadata decodes an account metadata blob into v. Accounts created
// before metadata was encrypted hold plain JSON; such a blob is decoded as
// is and legacy is true. A blob that looks like an envelope but fails to
// decrypt is an error.
func (c *Codec) DecryptMetadata(raw []byte, v any) (legacy bool, err error) {
	var env cryptox.Envelope
	decErr := json.Unmarshal(raw, &env)
	if decErr == nil {
		decErr = c.DecryptObject(env, v)
		if decErr == nil {
			return false, nil
		}
	}
	if errors.Is(decErr, common.ErrNotInitialised) || cryptox.LooksLikeEnvelope(raw) {
		return false, decErr
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, &common.DecryptionError{Cause: fmt.Errorf("legacy metadata: %w", err)}
	}
	return true, nil
}

// Purge drops every memoised plaintext.
func (c *Codec) Purge() {
	c.memo.Purge()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
