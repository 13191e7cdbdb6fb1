package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/pithecene-io/cinebridge/aead"
	"github.com/pithecene-io/cinebridge/types"
)

// Key encodings.
const (
	EncodingRaw    = "raw"
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// ErrNoKey is returned when neither key/nonce nor secret is configured.
var ErrNoKey = errors.New("key material not configured (set key.key and key.nonce, or key.secret)")

// IsZero reports whether no key material is configured.
func (k KeyConfig) IsZero() bool {
	return k.Key == "" && k.Nonce == "" && k.Secret == ""
}

// KeyMaterial decodes the configured key material.
func (k KeyConfig) KeyMaterial() (types.KeyMaterial, error) {
	if k.Secret != "" {
		if k.Key != "" || k.Nonce != "" {
			return types.KeyMaterial{}, errors.New("key.secret cannot be combined with key.key or key.nonce")
		}
		return aead.DeriveKeyMaterial([]byte(k.Secret), []byte(k.Salt), k.Info)
	}
	if k.Key == "" || k.Nonce == "" {
		return types.KeyMaterial{}, ErrNoKey
	}

	key, err := decode(k.Key, k.Encoding)
	if err != nil {
		return types.KeyMaterial{}, fmt.Errorf("key.key: %w", err)
	}
	nonce, err := decode(k.Nonce, k.Encoding)
	if err != nil {
		return types.KeyMaterial{}, fmt.Errorf("key.nonce: %w", err)
	}

	tagBits := k.TagLengthBits
	if tagBits == 0 {
		tagBits = types.TagLengthBits
	}
	return types.NewKeyMaterial(key, nonce, tagBits)
}

func decode(value, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingRaw:
		return []byte(value), nil
	case EncodingHex:
		return hex.DecodeString(value)
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(value)
	default:
		return nil, fmt.Errorf("unknown encoding %q (must be raw, hex or base64)", encoding)
	}
}
