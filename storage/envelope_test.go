package storage_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/techsync/internal/util"
	"github.com/jmcleod/techsync/storage"
	"github.com/jmcleod/techsync/storage/memory"
)

func newKey(t *testing.T, info string) []byte {
	t.Helper()
	key, err := util.HKDF([]byte("envelope test seed"), nil, []byte(info))
	require.NoError(t, err)
	return key
}

func TestEnvelope(t *testing.T) {
	key := newKey(t, "a")
	plain := []byte("top secret")
	aad := []byte("context")

	env, err := storage.SealRecord(key, plain, aad)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Ver)
	assert.Len(t, env.Nonce, 12)

	decrypted, err := storage.OpenRecord(key, env, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := storage.OpenRecord(key, env, []byte("wrong context"))
		assert.Error(t, err)
	})

	t.Run("WrongKey", func(t *testing.T) {
		_, err := storage.OpenRecord(newKey(t, "b"), env, aad)
		assert.Error(t, err)
	})

	t.Run("UnsupportedVersion", func(t *testing.T) {
		bad := *env
		bad.Ver = 99
		_, err := storage.OpenRecord(key, &bad, aad)
		assert.ErrorContains(t, err, "unsupported envelope version")
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		bad := *env
		bad.Scheme = "unknown"
		_, err := storage.OpenRecord(key, &bad, aad)
		assert.ErrorContains(t, err, "unsupported envelope scheme")
	})
}

func TestSealed(t *testing.T) {
	inner := memory.NewRepository()
	secret := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := storage.NewSealed(inner, secret)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", string(secret), "caller's secret must be left intact")

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, sealed.Put("authToken", []byte("tok-123")))

		got, err := sealed.Get("authToken")
		require.NoError(t, err)
		assert.Equal(t, "tok-123", string(got))
	})

	t.Run("CiphertextAtRest", func(t *testing.T) {
		raw, err := inner.Get("authToken")
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "tok-123")

		var env storage.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, "aes256gcm", env.Scheme)
	})

	t.Run("ValueBoundToKey", func(t *testing.T) {
		raw, err := inner.Get("authToken")
		require.NoError(t, err)
		require.NoError(t, inner.Put("other", raw))

		_, err = sealed.Get("other")
		assert.ErrorIs(t, err, storage.ErrSealedCorrupt)
	})

	t.Run("DifferentSecret", func(t *testing.T) {
		other, err := storage.NewSealed(inner, []byte("another secret of sufficient size"))
		require.NoError(t, err)
		_, err = other.Get("authToken")
		assert.ErrorIs(t, err, storage.ErrSealedCorrupt)
	})

	t.Run("PlaintextGarbage", func(t *testing.T) {
		require.NoError(t, inner.Put("garbage", []byte("not json")))
		_, err := sealed.Get("garbage")
		assert.ErrorIs(t, err, storage.ErrSealedCorrupt)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := sealed.Get("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, sealed.Delete("authToken"))
		_, err := sealed.Get("authToken")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, sealed.Delete("authToken"))
	})

	t.Run("ShortSecret", func(t *testing.T) {
		_, err := storage.NewSealed(inner, []byte("short"))
		assert.Error(t, err)
	})
}
