package security_test

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatcore/internal/security"
)

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := security.GenerateNumericCode(5)
		require.NoError(t, err)
		assert.True(t, security.IsNumeric(code, 5), "code %q", code)
	}

	_, err := security.GenerateNumericCode(0)
	assert.Error(t, err)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, security.IsNumeric("01234", 5))
	assert.False(t, security.IsNumeric("0123", 5))
	assert.False(t, security.IsNumeric("0123a", 5))
	assert.False(t, security.IsNumeric("", 5))
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok := security.NewToken()
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestCodeHasher(t *testing.T) {
	h := security.NewCodeHasher(bcrypt.MinCost)

	hashed, err := h.Hash("12345")
	require.NoError(t, err)
	assert.NotEqual(t, "12345", hashed)

	ok, err := h.Matches("12345", hashed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Matches("54321", hashed)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Matches("12345", "not-a-hash")
	assert.Error(t, err)
}

func TestEncryptor(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("test-secret"), nil)
	require.NoError(t, err)
	scope := []byte("conversation:1:sender:2")

	t.Run("RoundTrip", func(t *testing.T) {
		sealed, err := enc.Encrypt("hello there", scope)
		require.NoError(t, err)
		assert.NotEqual(t, "hello there", sealed)

		plain, err := enc.Decrypt(sealed, scope)
		require.NoError(t, err)
		assert.Equal(t, "hello there", plain)
	})

	t.Run("NonceIsFresh", func(t *testing.T) {
		a, err := enc.Encrypt("same", scope)
		require.NoError(t, err)
		b, err := enc.Encrypt("same", scope)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("WrongScope", func(t *testing.T) {
		sealed, err := enc.Encrypt("hi", scope)
		require.NoError(t, err)

		_, err = enc.Decrypt(sealed, []byte("conversation:9:sender:2"))
		assert.ErrorIs(t, err, security.ErrDecrypt)
		_, err = enc.Decrypt(sealed, nil)
		assert.ErrorIs(t, err, security.ErrDecrypt)
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, err := security.NewEncryptor([]byte("other-secret"), nil)
		require.NoError(t, err)
		sealed, err := other.Encrypt("hi", scope)
		require.NoError(t, err)

		_, err = enc.Decrypt(sealed, scope)
		assert.ErrorIs(t, err, security.ErrDecrypt)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := enc.Decrypt("%%%", scope)
		assert.ErrorIs(t, err, security.ErrDecrypt)
		_, err = enc.Decrypt("AAAA", scope)
		assert.ErrorIs(t, err, security.ErrDecrypt)
	})

	t.Run("LegacyFernet", func(t *testing.T) {
		var k fernet.Key
		require.NoError(t, k.Generate())
		token, err := fernet.EncryptAndSign([]byte("legacy"), &k)
		require.NoError(t, err)

		withLegacy, err := security.NewEncryptor([]byte("test-secret"), []string{k.Encode()})
		require.NoError(t, err)

		plain, err := withLegacy.Decrypt(string(token), scope)
		require.NoError(t, err)
		assert.Equal(t, "legacy", plain)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := security.NewEncryptor(nil, nil)
		assert.Error(t, err)
	})
}
