package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey struct {
	key   []byte
	err   error
	calls int
}

func (s *staticKey) Key() ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}

func newKey(fill byte) *staticKey {
	k := make([]byte, cryptox.KeySize)
	for i := range k {
		k[i] = fill
	}
	return &staticKey{key: k}
}

func newCodec(t *testing.T, ks KeySource) *Codec {
	t.Helper()
	c, err := New(ks, 8)
	require.NoError(t, err)
	return c
}

func TestCodec_ObjectRoundTrip(t *testing.T) {
	c := newCodec(t, newKey(7))
	in := models.NewGroup("Family", "a", "b")

	env, err := c.EncryptObject(in)
	require.NoError(t, err)

	var out models.Record
	require.NoError(t, c.DecryptObject(env, &out))
	assert.Equal(t, in, out)
}

func TestCodec_FreshIVPerEncrypt(t *testing.T) {
	c := newCodec(t, newKey(7))

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Cipher, b.Cipher)
}

func TestCodec_NoKey(t *testing.T) {
	c := newCodec(t, &staticKey{err: common.ErrNotInitialised})

	_, err := c.Encrypt([]byte("x"))
	require.ErrorIs(t, err, common.ErrNotInitialised)

	_, err = c.Decrypt(cryptox.Envelope{IV: "a", Cipher: "b"})
	require.ErrorIs(t, err, common.ErrNotInitialised)
	assert.NotErrorIs(t, err, common.ErrDecryption)
}

func TestCodec_WrongKeyIsDecryptionError(t *testing.T) {
	env, err := newCodec(t, newKey(1)).Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = newCodec(t, newKey(2)).Decrypt(env)
	require.ErrorIs(t, err, common.ErrDecryption)
	assert.NotErrorIs(t, err, common.ErrNotInitialised)
}

func TestCodec_MemoAndPurge(t *testing.T) {
	ks := newKey(3)
	c := newCodec(t, ks)

	env, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	ks.calls = 0

	p1, err := c.Decrypt(env)
	require.NoError(t, err)
	p1[0] = 'X' // caller scribbles on its copy

	p2, err := c.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p2))
	assert.Equal(t, 1, ks.calls, "second decrypt served from memo")

	c.Purge()
	_, err = c.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, 2, ks.calls)
}

func TestCodec_DecryptMetadata(t *testing.T) {
	c := newCodec(t, newKey(9))
	md := models.Metadata{Settings: map[string]any{"theme": "dark"}}

	t.Run("encrypted", func(t *testing.T) {
		env, err := c.EncryptObject(md)
		require.NoError(t, err)
		raw, _ := json.Marshal(env)

		var out models.Metadata
		legacy, err := c.DecryptMetadata(raw, &out)
		require.NoError(t, err)
		assert.False(t, legacy)
		assert.Equal(t, md.Settings, out.Settings)
	})

	t.Run("legacy plaintext", func(t *testing.T) {
		raw := []byte(`{"settings":{"theme":"light"}}`)

		var out models.Metadata
		legacy, err := c.DecryptMetadata(raw, &out)
		require.NoError(t, err)
		assert.True(t, legacy)
		assert.Equal(t, "light", out.Settings["theme"])
	})

	t.Run("envelope that fails to decrypt", func(t *testing.T) {
		env, err := newCodec(t, newKey(1)).EncryptObject(md)
		require.NoError(t, err)
		raw, _ := json.Marshal(env)

		var out models.Metadata
		_, err = c.DecryptMetadata(raw, &out)
		var de *common.DecryptionError
		require.True(t, errors.As(err, &de))
	})

	t.Run("garbage", func(t *testing.T) {
		var out models.Metadata
		_, err := c.DecryptMetadata([]byte(`not json`), &out)
		require.ErrorIs(t, err, common.ErrDecryption)
	})

	t.Run("no key never falls back", func(t *testing.T) {
		locked := newCodec(t, &staticKey{err: common.ErrNotInitialised})
		raw, _ := json.Marshal(cryptox.Envelope{IV: "AAAAAAAAAAAAAAAA", Cipher: "AAAA"})

		var out models.Metadata
		_, err := locked.DecryptMetadata(raw, &out)
		require.ErrorIs(t, err, common.ErrNotInitialised)
	})
}
