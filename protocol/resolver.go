package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pithecene-io/cinebridge/aead"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/proxy"
	"github.com/pithecene-io/cinebridge/slot"
	"github.com/pithecene-io/cinebridge/types"
)

// Config configures a Resolver.
type Config struct {
	// KeyMaterial opens envelopes (required).
	KeyMaterial types.KeyMaterial
	// Slot receives the decrypted manifest (required).
	Slot *slot.Slot
	// Suffix overrides DefaultSuffix for classification.
	Suffix string
	// Timeout bounds one fetch. Zero means no timeout.
	Timeout time.Duration
	// Headers are added to the envelope request.
	Headers map[string]string

	// Proxies selects an egress proxy from ProxyPool for each fetch.
	// Both must be set for proxying to apply.
	Proxies   *proxy.Selector
	ProxyPool string
	// SessionID keys sticky proxy selection.
	SessionID string

	// Client is the base HTTP client. Defaults to a new http.Client.
	Client    *http.Client
	Collector *metrics.Collector
	Logger    *log.Logger
}

// Resolver fetches, opens and stores one session's encrypted manifest.
type Resolver struct {
	config Config
	client *http.Client

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewResolver validates cfg and returns a resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.KeyMaterial.Validate(); err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if cfg.Slot == nil {
		return nil, errors.New("resolver: slot is required")
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSuffix
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{
		config:     cfg,
		client:     client,
		transports: make(map[string]*http.Transport),
	}, nil
}

// IsEncrypted classifies rawURL with the resolver's suffix.
func (r *Resolver) IsEncrypted(rawURL string) bool {
	return IsEncryptedWithSuffix(rawURL, r.config.Suffix)
}

// Resolve fetches the envelope at rawURL, opens it and stores the manifest
// in the slot. It returns the manifest text.
//
// Errors are *TransportError, *ProtocolError, *FormatError or
// *aead.CryptoError. Nothing is retried. A manifest that conflicts with
// content already in the slot returns slot.ErrConflict.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	start := time.Now()
	manifest, err := r.fetch(ctx, rawURL)
	if err == nil {
		err = r.config.Slot.Set(manifest)
	}
	if err != nil {
		kind := Kind(err)
		r.config.Collector.IncResolveFailure(kind)
		r.config.Logger.Warn("manifest resolve failed", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
		return "", err
	}

	r.config.Collector.IncResolveSuccess()
	r.config.Logger.Info("manifest resolved", map[string]any{
		"bytes":       len(manifest),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return manifest, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	reqCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.config.Headers {
		req.Header.Set(k, v)
	}

	client, err := r.clientFor(target)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("resolver: %w", ctx.Err())
		}
		return "", &TransportError{Err: err}
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &TransportError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxEnvelopeSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("resolver: %w", ctx.Err())
		}
		return "", &TransportError{Err: err}
	}
	if len(body) > MaxEnvelopeSize {
		return "", &FormatError{Msg: fmt.Sprintf("envelope exceeds %d bytes", MaxEnvelopeSize)}
	}

	return OpenEnvelope(body, r.config.KeyMaterial)
}

// OpenEnvelope decodes an envelope body and returns the manifest it carries.
func OpenEnvelope(body []byte, km types.KeyMaterial) (string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &FormatError{Msg: "envelope is not valid JSON", Err: err}
	}
	if env.Code != CodeOK {
		return "", &ProtocolError{Code: env.Code, Message: env.Message}
	}
	if env.Data == nil || env.Data.Info == "" {
		return "", &FormatError{Msg: "envelope missing data.info"}
	}

	manifest, err := aead.OpenBase64(env.Data.Info, km)
	if err != nil {
		return "", err
	}
	if err := ValidateManifest(manifest); err != nil {
		return "", err
	}
	return manifest, nil
}

// clientFor returns the client for target, routed through a selected
// proxy when a pool is configured.
func (r *Resolver) clientFor(target *url.URL) (*http.Client, error) {
	if r.config.Proxies == nil || r.config.ProxyPool == "" {
		return r.client, nil
	}

	endpoint, err := r.config.Proxies.Select(proxy.RequestFor(r.config.ProxyPool, r.config.SessionID, target))
	if err != nil {
		return nil, fmt.Errorf("select proxy: %w", err)
	}
	proxyURL := endpoint.URL()

	r.mu.Lock()
	defer r.mu.Unlock()
	transport, ok := r.transports[proxyURL.String()]
	if !ok {
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		r.transports[proxyURL.String()] = transport
	}
	r.config.Logger.Debug("envelope fetch via proxy", map[string]any{
		"pool":  r.config.ProxyPool,
		"proxy": endpoint.Redact(),
	})

	return &http.Client{
		Transport:     transport,
		Timeout:       r.client.Timeout,
		CheckRedirect: r.client.CheckRedirect,
		Jar:           r.client.Jar,
	}, nil
}

// Close releases idle connections held by proxy transports.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transports {
		t.CloseIdleConnections()
	}
	r.client.CloseIdleConnections()
	return nil
}
