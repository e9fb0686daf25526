package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"mailnexy/internal/cryptutil"
)

// EncryptionKey seals and opens every CredentialBundle persisted by this
// process. config.LoadConfig sets it once at startup; models never imports
// config directly to avoid a config<->models import cycle (config already
// imports models for AutoMigrate).
var EncryptionKey string

// CredentialBundle is the typed OAuth2/SMTP credential blob the engine
// treats as opaque and hands to the mail client, per spec.md §9 Design
// Notes. Its String method redacts the secrets, so %v and %s never log
// them; it has no MarshalJSON, so json.Marshal emits every field.
type CredentialBundle struct {
	Access       string    `json:"access"`
	Refresh      string    `json:"refresh"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
}

// String never reveals secret material, satisfying the "credentials not
// logged" invariant even when a CredentialBundle ends up in a %v/%s format
// verb by accident.
func (c CredentialBundle) String() string {
	return "CredentialBundle{REDACTED}"
}

// Value implements driver.Valuer: the bundle is JSON-marshaled then sealed
// with cryptutil before it ever reaches the database driver.
func (c CredentialBundle) Value() (driver.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	sealed, err := cryptutil.Seal(EncryptionKey, string(raw))
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// Scan implements sql.Scanner, the inverse of Value.
func (c *CredentialBundle) Scan(src interface{}) error {
	var sealed string
	switch v := src.(type) {
	case string:
		sealed = v
	case []byte:
		sealed = string(v)
	case nil:
		return nil
	default:
		return errors.New("models: CredentialBundle.Scan: unsupported type")
	}

	raw, err := cryptutil.Open(EncryptionKey, sealed)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), c)
}
