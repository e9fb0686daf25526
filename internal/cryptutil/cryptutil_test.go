package cryptutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrips(t *testing.T) {
	passphrase := "a-test-passphrase-that-is-long-enough"
	plaintext := `{"access":"tok","refresh":"rtok"}`

	sealed, err := Seal(passphrase, plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, sealed)
	assert.NotContains(t, sealed, plaintext)

	opened, err := Open(passphrase, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealOpen_EmptyPlaintextRoundTripsToEmpty(t *testing.T) {
	sealed, err := Seal("passphrase", "")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := Open("passphrase", "")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestSeal_IsNonDeterministicAcrossCalls(t *testing.T) {
	passphrase := "same-passphrase"
	a, err := Seal(passphrase, "same plaintext")
	require.NoError(t, err)
	b, err := Seal(passphrase, "same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce should make each sealing unique")
}

func TestOpen_WrongPassphraseFails(t *testing.T) {
	sealed, err := Seal("correct-passphrase", "secret value")
	require.NoError(t, err)

	_, err = Open("wrong-passphrase-entirely", sealed)
	assert.Error(t, err)
}

func TestOpen_TooShortCiphertext(t *testing.T) {
	_, err := Open("passphrase", "YQ==") // decodes to a single byte, < 24-byte nonce
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestOpen_InvalidBase64(t *testing.T) {
	_, err := Open("passphrase", "not valid base64!!!")
	assert.Error(t, err)
}
