// Package aead opens and seals manifest envelopes with AES-128-GCM.
//
// Envelope parameters:
//   - 16-byte key, 12-byte nonce, both taken from types.KeyMaterial
//   - empty additional authenticated data
//   - 128-bit tag appended to the ciphertext
//   - base64 (standard alphabet) on the wire
//
// Open never reports why it failed. Tag mismatch, truncated input, bad
// base64 and non-UTF-8 plaintext all surface as the same CryptoError.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"

	"github.com/pithecene-io/cinebridge/types"
)

// CryptoError is returned for any failure to open or seal an envelope.
// Err is retained for local diagnostics but never changes the message.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: envelope authentication failed", e.Op)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IsCryptoError reports whether err is or wraps a CryptoError.
func IsCryptoError(err error) bool {
	var cryptoErr *CryptoError
	return errors.As(err, &cryptoErr)
}

// errInvalidUTF8 is kept behind CryptoError so callers cannot tell a
// decoding failure apart from an authentication failure.
var errInvalidUTF8 = errors.New("plaintext is not valid UTF-8")

func newGCM(km types.KeyMaterial) (cipher.AEAD, error) {
	if err := km.Validate(); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(km.Key())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, km.TagSize())
}

// Open authenticates and decrypts ciphertext (tag appended) and returns the
// plaintext as UTF-8 text.
func Open(ciphertext []byte, km types.KeyMaterial) (string, error) {
	gcm, err := newGCM(km)
	if err != nil {
		return "", &CryptoError{Op: "open", Err: err}
	}
	pt, err := gcm.Open(nil, km.Nonce(), ciphertext, nil)
	if err != nil {
		return "", &CryptoError{Op: "open", Err: fmt.Errorf("gcm open: %w", err)}
	}
	if !utf8.Valid(pt) {
		return "", &CryptoError{Op: "open", Err: errInvalidUTF8}
	}
	return string(pt), nil
}

// OpenBase64 decodes a standard base64 payload and opens it.
func OpenBase64(encoded string, km types.KeyMaterial) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &CryptoError{Op: "open", Err: fmt.Errorf("ciphertext base64: %w", err)}
	}
	return Open(ct, km)
}

// Seal encrypts plaintext and appends the authentication tag.
func Seal(plaintext string, km types.KeyMaterial) ([]byte, error) {
	gcm, err := newGCM(km)
	if err != nil {
		return nil, &CryptoError{Op: "seal", Err: err}
	}
	return gcm.Seal(nil, km.Nonce(), []byte(plaintext), nil), nil
}

// SealBase64 seals plaintext and encodes the result for an envelope.
func SealBase64(plaintext string, km types.KeyMaterial) (string, error) {
	ct, err := Seal(plaintext, km)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DeriveKeyMaterial expands secret with HKDF-SHA256 into a key and nonce.
// The first 16 bytes of output form the key, the next 12 the nonce.
func DeriveKeyMaterial(secret, salt []byte, info string) (types.KeyMaterial, error) {
	if len(secret) == 0 {
		return types.KeyMaterial{}, errors.New("hkdf secret must be non-empty")
	}
	rd := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([]byte, types.KeySize+types.NonceSize)
	if _, err := io.ReadFull(rd, out); err != nil {
		return types.KeyMaterial{}, fmt.Errorf("hkdf expand: %w", err)
	}
	return types.NewKeyMaterial(out[:types.KeySize], out[types.KeySize:], types.TagLengthBits)
}
