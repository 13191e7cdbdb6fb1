package ipc

import (
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

// NewManifestFrame builds the frame for a resolved manifest. The URL is
// redacted.
func NewManifestFrame(sessionID, rawURL, content string) *ManifestFrame {
	return &ManifestFrame{
		Type:      ManifestType,
		Version:   types.Version,
		SessionID: sessionID,
		URL:       types.RedactURL(rawURL),
		Data:      content,
	}
}

// NewResolveErrorFrame builds the frame for a failed resolve, classified
// with protocol.Kind.
func NewResolveErrorFrame(sessionID, rawURL string, err error) *ResolveErrorFrame {
	frame := &ResolveErrorFrame{
		Type:      ResolveErrorType,
		Version:   types.Version,
		SessionID: sessionID,
		URL:       types.RedactURL(rawURL),
		Kind:      protocol.Kind(err),
	}
	if err != nil {
		frame.Message = err.Error()
	}
	return frame
}
