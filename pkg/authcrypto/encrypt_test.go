package authcrypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenIsUnique(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, TokenBytes*2)
	assert.NotEqual(t, a, b)
}

func TestFingerprintIsDeterministicAndNonReversible(t *testing.T) {
	t.Parallel()

	token := "super-secret-opaque-token"
	fp1 := Fingerprint(token)
	fp2 := Fingerprint(token)

	assert.Equal(t, fp1, fp2)
	assert.NotContains(t, fp1, token)
	assert.Len(t, fp1, 64)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	var key [KeySize]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	plaintext := []byte(`{"client_id":"abc123","scope":"mcp"}`)

	wire, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.Contains(t, wire, ":")

	parts := strings.SplitN(wire, ":", 2)
	require.Len(t, parts, 2)

	got, err := Decrypt(wire, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptProducesDistinctCiphertextPerCall(t *testing.T) {
	t.Parallel()

	var key [KeySize]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	wire1, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	wire2, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, wire1, wire2, "random IV must vary per encryption")
}

func TestDecryptRejectsMalformedWireFormat(t *testing.T) {
	t.Parallel()

	var key [KeySize]byte

	_, err := Decrypt("not-a-valid-wire-value", key)
	assert.ErrorIs(t, err, ErrCiphertextMalformed)

	_, err = Decrypt("deadbeef:zz", key)
	assert.ErrorIs(t, err, ErrCiphertextMalformed)
}
