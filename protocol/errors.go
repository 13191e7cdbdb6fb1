package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/cinebridge/aead"
)

// TransportError reports a failed fetch or a non-2xx response.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an envelope with a non-zero code.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: code %d: %s", e.Code, e.Message)
}

// FormatError reports a malformed envelope or manifest.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format: %s: %v", e.Msg, e.Err)
	}
	return "format: " + e.Msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Failure kinds, used as metric and audit labels.
const (
	KindTransport = "transport"
	KindProtocol  = "protocol"
	KindFormat    = "format"
	KindCrypto    = "crypto"
	KindCanceled  = "canceled"
	KindOther     = "other"
)

// Kind classifies a resolve error. Returns "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		transportErr *TransportError
		protocolErr  *ProtocolError
		formatErr    *FormatError
	)
	switch {
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &formatErr):
		return KindFormat
	case aead.IsCryptoError(err):
		return KindCrypto
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
