package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialBundle_ValueScanRoundTrips(t *testing.T) {
	EncryptionKey = "test-passphrase-for-unit-tests-only"

	bundle := CredentialBundle{
		Access:       "access-token",
		Refresh:      "refresh-token",
		Expiry:       time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC),
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"mail.read", "mail.send"},
	}

	sealed, err := bundle.Value()
	require.NoError(t, err)
	sealedStr, ok := sealed.(string)
	require.True(t, ok)
	assert.NotContains(t, sealedStr, "access-token")
	assert.NotContains(t, sealedStr, "client-secret")

	var restored CredentialBundle
	require.NoError(t, restored.Scan(sealedStr))
	assert.Equal(t, bundle.Access, restored.Access)
	assert.Equal(t, bundle.Refresh, restored.Refresh)
	assert.True(t, bundle.Expiry.Equal(restored.Expiry))
	assert.Equal(t, bundle.ClientID, restored.ClientID)
	assert.Equal(t, bundle.ClientSecret, restored.ClientSecret)
	assert.Equal(t, bundle.Scopes, restored.Scopes)
}

func TestCredentialBundle_ScanAcceptsBytesAndNil(t *testing.T) {
	EncryptionKey = "test-passphrase-for-unit-tests-only"

	bundle := CredentialBundle{Access: "tok"}
	sealed, err := bundle.Value()
	require.NoError(t, err)
	sealedStr := sealed.(string)

	var fromBytes CredentialBundle
	require.NoError(t, fromBytes.Scan([]byte(sealedStr)))
	assert.Equal(t, "tok", fromBytes.Access)

	var fromNil CredentialBundle
	require.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, CredentialBundle{}, fromNil)
}

func TestCredentialBundle_ScanRejectsUnsupportedType(t *testing.T) {
	var c CredentialBundle
	err := c.Scan(42)
	assert.Error(t, err)
}

func TestCredentialBundle_StringNeverLeaksSecrets(t *testing.T) {
	bundle := CredentialBundle{Access: "super-secret-token", ClientSecret: "another-secret"}
	s := bundle.String()
	assert.NotContains(t, s, "super-secret-token")
	assert.NotContains(t, s, "another-secret")
	assert.Equal(t, "CredentialBundle{REDACTED}", s)
}

func TestCredentialBundle_JSONMarshalDoesNotRedact(t *testing.T) {
	// MarshalJSON uses the default struct tags (no custom marshaler), so this
	// documents that the opaque CredentialBundle must never be json.Marshal'd
	// directly outside of the Value()-sealed persistence path.
	bundle := CredentialBundle{Access: "token-value"}
	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "token-value")
}
