package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := HKDF([]byte("seed material"), nil, []byte("test"))
	require.NoError(t, err)
	return key
}

func TestAES(t *testing.T) {
	key := testKey(t)
	plainText := []byte("bearer-token")
	aad := []byte("techsync:authToken")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		require.NoError(t, err)

		decrypted, err := DecryptAESWithAAD(cipherText, key, aad)
		require.NoError(t, err)
		assert.Equal(t, plainText, decrypted)
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		require.NoError(t, err)
		_, err = DecryptAESWithAAD(cipherText, key, []byte("wrong context"))
		assert.Error(t, err)
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		require.NoError(t, err)
		cipherText[len(cipherText)-1] ^= 0xFF
		_, err = DecryptAESWithAAD(cipherText, key, aad)
		assert.Error(t, err)
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		_, err := DecryptAESWithAAD([]byte("short"), key, aad)
		assert.Error(t, err)
	})

	t.Run("BadKeySize", func(t *testing.T) {
		_, err := EncryptAESWithAAD(plainText, []byte("too short"), aad)
		assert.ErrorContains(t, err, "invalid AES key size")
	})
}

func TestHKDF(t *testing.T) {
	a, err := HKDF([]byte("seed"), nil, []byte("info-a"))
	require.NoError(t, err)
	b, err := HKDF([]byte("seed"), nil, []byte("info-b"))
	require.NoError(t, err)
	again, err := HKDF([]byte("seed"), nil, []byte("info-a"))
	require.NoError(t, err)

	assert.Len(t, a, HKDFKeyLength)
	assert.False(t, bytes.Equal(a, b), "different info must yield different keys")
	assert.Equal(t, a, again)

	_, err = HKDF(nil, nil, []byte("info"))
	assert.Error(t, err)
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	c := CopyBytes(b)
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	assert.Equal(t, []byte{1, 2, 3}, c)
}

func TestNormalize(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	assert.Equal(t, "caf\u00e9", NormalizeText("  cafe\u0301 \n"))
	assert.Equal(t, "tech@example.com", NormalizeEmail(" Tech@Example.COM "))
}

func TestHexDecode(t *testing.T) {
	got, err := HexDecode(" 0aff ")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xff}, got)

	_, err = HexDecode("zz")
	assert.Error(t, err)
}
