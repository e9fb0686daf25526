// Package cryptutil seals and opens the credential bundles stored on each
// Mailbox, generalizing the teacher's raw AES-CFB helper in
// utils/encryption.go into an explicit NaCl secretbox boundary at the
// persistence edge, per spec.md §9 Design Notes ("typed record ... with a
// parse/serialize boundary at the persistence edge").
package cryptutil

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrCiphertextTooShort is returned by Open when the input is shorter than
// the nonce it must carry.
var ErrCiphertextTooShort = errors.New("cryptutil: ciphertext too short")

// deriveKey folds an arbitrary-length passphrase into secretbox's required
// 32-byte key by repeating its bytes, or keeping only the first 32 when it
// is longer; callers are expected to supply a high-entropy key from config,
// not a password.
func deriveKey(passphrase string) (key [32]byte) {
	b := []byte(passphrase)
	for i := 0; i < 32; i++ {
		key[i] = b[i%len(b)]
	}
	return key
}

// Seal encrypts plaintext under passphrase, returning a URL-safe base64
// string that embeds the random nonce. An empty plaintext seals to an empty
// string so optional credential fields round-trip cleanly.
func Seal(passphrase, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key := deriveKey(passphrase)

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a string produced by Seal.
func Open(passphrase, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	key := deriveKey(passphrase)

	decoded, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(decoded) < 24 {
		return "", ErrCiphertextTooShort
	}

	var nonce [24]byte
	copy(nonce[:], decoded[:24])

	plain, ok := secretbox.Open(nil, decoded[24:], &nonce, &key)
	if !ok {
		return "", errors.New("cryptutil: decryption failed")
	}
	return string(plain), nil
}
