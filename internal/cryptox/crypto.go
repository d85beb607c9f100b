// Package cryptox holds the cryptographic primitives shared by the client
// core: password-based key derivation, the auth fingerprint and AES-256-GCM
// envelopes. It keeps no state; key lifetime is managed by the caller.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length of the derived AES-256 key.
	KeySize = 32
	// IVSize is the GCM nonce length (96 bits).
	IVSize = 12
)

var errShortKey = errors.New("key must be 32 bytes")

// Envelope is the only form record content takes outside the client.
type Envelope struct {
	IV     string `json:"iv"`
	Cipher string `json:"cipher"`
}

// DeriveKey stretches password with the account salt into a 256-bit key
// using PBKDF2-HMAC-SHA256. iterations <= 0 selects the default count.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = common.KeyDerivationIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// AuthFingerprint is the bootstrap credential presented before a session
// exists: base64(SHA-512(raw key)).
func AuthFingerprint(key []byte) string {
	sum := sha512.Sum512(key)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errShortKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with a fresh random IV. There is
// deliberately no variant accepting a caller-supplied IV.
func Encrypt(key, plaintext []byte) (Envelope, error) {
	aead, err := newGCM(key)
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("iv generation: %w", err)
	}

	ct := aead.Seal(nil, iv, plaintext, nil)

	return Envelope{
		IV:     base64.StdEncoding.EncodeToString(iv),
		Cipher: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Decrypt opens env with key. Every failure, including malformed base64 and
// a wrong IV length, is reported as *common.DecryptionError.
func Decrypt(key []byte, env Envelope) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, &common.DecryptionError{Cause: err}
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, &common.DecryptionError{Cause: fmt.Errorf("iv: %w", err)}
	}
	if len(iv) != IVSize {
		return nil, &common.DecryptionError{Cause: fmt.Errorf("iv: want %d bytes, got %d", IVSize, len(iv))}
	}

	ct, err := base64.StdEncoding.DecodeString(env.Cipher)
	if err != nil {
		return nil, &common.DecryptionError{Cause: fmt.Errorf("cipher: %w", err)}
	}

	plaintext, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, &common.DecryptionError{Cause: err}
	}
	return plaintext, nil
}

// EncryptObject marshals v to JSON and encrypts it.
func EncryptObject(key []byte, v any) (Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	defer common.WipeByteArray(plaintext)
	return Encrypt(key, plaintext)
}

// DecryptObject decrypts env and unmarshals the JSON plaintext into v.
func DecryptObject(key []byte, env Envelope, v any) error {
	plaintext, err := Decrypt(key, env)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		return &common.DecryptionError{Cause: fmt.Errorf("payload: %w", err)}
	}
	return nil
}

// LooksLikeEnvelope reports whether raw is a JSON object with non-empty
// string "iv" and "cipher" members.
func LooksLikeEnvelope(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	for _, field := range []string{"iv", "cipher"} {
		v, ok := probe[field]
		if !ok {
			return false
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil || s == "" {
			return false
		}
	}
	return true
}
