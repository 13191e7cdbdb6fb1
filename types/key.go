// Package types defines core domain types shared across cinebridge packages.
package types

import (
	"bytes"
	"errors"
	"fmt"
)

// Key material sizes for AES-128-GCM envelopes.
const (
	// KeySize is the AES-128 key size in bytes.
	KeySize = 16
	// NonceSize is the GCM nonce size in bytes.
	NonceSize = 12
	// TagLengthBits is the only supported authentication tag length.
	TagLengthBits = 128
)

// KeyMaterial is the process-configured symmetric key used to open
// manifest envelopes. It is shared and read-only once constructed;
// accessors return copies so callers cannot mutate it.
type KeyMaterial struct {
	key           []byte
	nonce         []byte
	tagLengthBits int
}

// NewKeyMaterial validates and copies key and nonce.
// A zero tagLengthBits selects the default of 128.
func NewKeyMaterial(key, nonce []byte, tagLengthBits int) (KeyMaterial, error) {
	if tagLengthBits == 0 {
		tagLengthBits = TagLengthBits
	}
	km := KeyMaterial{
		key:           bytes.Clone(key),
		nonce:         bytes.Clone(nonce),
		tagLengthBits: tagLengthBits,
	}
	if err := km.Validate(); err != nil {
		return KeyMaterial{}, err
	}
	return km, nil
}

// Validate checks key, nonce and tag sizes.
func (k KeyMaterial) Validate() error {
	if k.IsZero() {
		return ErrNoKeyMaterial
	}
	if len(k.key) != KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", KeySize, len(k.key))
	}
	if len(k.nonce) != NonceSize {
		return fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(k.nonce))
	}
	if k.tagLengthBits != TagLengthBits {
		return fmt.Errorf("tag length must be %d bits, got %d", TagLengthBits, k.tagLengthBits)
	}
	return nil
}

// IsZero reports whether no key material was configured.
func (k KeyMaterial) IsZero() bool {
	return len(k.key) == 0 && len(k.nonce) == 0
}

// Key returns a copy of the key bytes.
func (k KeyMaterial) Key() []byte { return bytes.Clone(k.key) }

// Nonce returns a copy of the nonce bytes.
func (k KeyMaterial) Nonce() []byte { return bytes.Clone(k.nonce) }

// TagLengthBits returns the authentication tag length in bits.
func (k KeyMaterial) TagLengthBits() int { return k.tagLengthBits }

// TagSize returns the authentication tag length in bytes.
func (k KeyMaterial) TagSize() int { return k.tagLengthBits / 8 }

// String redacts the key so KeyMaterial is safe to log.
func (k KeyMaterial) String() string {
	if k.IsZero() {
		return "KeyMaterial(unset)"
	}
	return fmt.Sprintf("KeyMaterial(key=%d bytes, nonce=%d bytes, tag=%d bits)", len(k.key), len(k.nonce), k.tagLengthBits)
}

// ErrNoKeyMaterial is returned when an operation requires key material
// and none was configured.
var ErrNoKeyMaterial = errors.New("no key material configured")
