// Package protocol acquires encrypted manifests.
//
// A content URL whose path ends with the encrypted suffix is answered by the
// origin with a JSON envelope instead of playlist bytes:
//
//	{"code": 0, "message": "", "data": {"info": "<base64 ciphertext+tag>"}}
//
// Code 0 is the only success value. The Resolver fetches the envelope,
// opens it with the configured key material, checks the manifest marker and
// stores the result in the session's slot.
package protocol

import (
	"net/url"
	"strings"

	"github.com/pithecene-io/cinebridge/aead"
	"github.com/pithecene-io/cinebridge/types"
)

const (
	// DefaultSuffix marks a URL path as an encrypted manifest.
	DefaultSuffix = ".c3u8"
	// ManifestMarker must appear in every decrypted manifest.
	ManifestMarker = "#EXTM3U"
	// PlaceholderURL is the synthetic source handed to the engine.
	PlaceholderURL = "memory://playlist.m3u8"
	// MaxEnvelopeSize bounds the envelope body read from the origin.
	MaxEnvelopeSize = 8 * 1024 * 1024
)

// Envelope codes. Only CodeOK is success; the rest are produced by the
// envelope server and surface to clients as ProtocolError.
const (
	CodeOK         = 0
	CodeNotFound   = 1002
	CodeSealFailed = 1003
)

// Envelope is the transport response wrapping an encrypted manifest.
type Envelope struct {
	Code    int           `json:"code"`
	Message string        `json:"message,omitempty"`
	Data    *EnvelopeData `json:"data,omitempty"`
}

// EnvelopeData carries the base64 ciphertext with its appended tag.
type EnvelopeData struct {
	Info string `json:"info"`
}

// SealEnvelope encrypts manifest into a success envelope.
func SealEnvelope(manifest string, km types.KeyMaterial) (*Envelope, error) {
	if err := ValidateManifest(manifest); err != nil {
		return nil, err
	}
	info, err := aead.SealBase64(manifest, km)
	if err != nil {
		return nil, err
	}
	return &Envelope{Code: CodeOK, Data: &EnvelopeData{Info: info}}, nil
}

// FailureEnvelope returns an envelope reporting code and message.
func FailureEnvelope(code int, message string) *Envelope {
	return &Envelope{Code: code, Message: message}
}

// IsEncrypted reports whether rawURL names an encrypted manifest under the
// default suffix. Malformed URLs are not encrypted.
func IsEncrypted(rawURL string) bool {
	return IsEncryptedWithSuffix(rawURL, DefaultSuffix)
}

// IsEncryptedWithSuffix is IsEncrypted with a caller-chosen suffix.
// An empty suffix never matches.
func IsEncryptedWithSuffix(rawURL, suffix string) bool {
	if suffix == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return false
	}
	return strings.HasSuffix(u.Path, suffix)
}

// ValidateManifest checks that content carries the manifest marker.
func ValidateManifest(content string) error {
	if !strings.Contains(content, ManifestMarker) {
		return &FormatError{Msg: "manifest marker " + ManifestMarker + " not found"}
	}
	return nil
}
