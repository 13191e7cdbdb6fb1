// Package server serves sealed manifests as encrypted envelopes.
//
// GET /<name>.c3u8 reads <root>/<name>.m3u8, seals it with the configured
// key material and answers with a JSON envelope. Envelope failures are
// reported in the body with HTTP 200:
//
//	code 1002  manifest not found
//	code 1003  manifest could not be sealed
//
// Paths without the encrypted suffix get a plain 404.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

// ShutdownTimeout bounds graceful shutdown after the serve context ends.
const ShutdownTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// Root holds the plaintext manifests.
	Root fs.FS
	// KeyMaterial seals every envelope.
	KeyMaterial types.KeyMaterial
	// Suffix marks encrypted paths (default ".c3u8").
	Suffix string
	// Logger is optional.
	Logger *log.Logger
}

// Server answers envelope requests from a manifest directory.
type Server struct {
	config Config
	logger *log.Logger
	mux    *http.ServeMux
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Root == nil {
		return nil, errors.New("server: root is required")
	}
	if err := cfg.KeyMaterial.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if cfg.Suffix == "" {
		cfg.Suffix = protocol.DefaultSuffix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	s := &Server{config: cfg, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /", s.handleEnvelope)
	return s, nil
}

// NewDir is New with Root set to the directory dir.
func NewDir(dir string, cfg Config) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("server: root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("server: root %s is not a directory", dir)
	}
	cfg.Root = os.DirFS(dir)
	return New(cfg)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
// ready, if non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info("envelope server listening", map[string]any{"address": listener.Addr().String()})
	if ready != nil {
		ready(listener.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("envelope server stopped", nil)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	name, ok := s.manifestName(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	content, err := fs.ReadFile(s.config.Root, name+".m3u8")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("manifest read failed", map[string]any{"name": name, "error": err.Error()})
		}
		s.writeEnvelope(w, protocol.FailureEnvelope(protocol.CodeNotFound, "manifest not found"))
		return
	}

	env, err := protocol.SealEnvelope(string(content), s.config.KeyMaterial)
	if err != nil {
		s.logger.Error("manifest seal failed", map[string]any{"name": name, "error": err.Error()})
		s.writeEnvelope(w, protocol.FailureEnvelope(protocol.CodeSealFailed, "manifest could not be sealed"))
		return
	}

	s.logger.Debug("envelope served", map[string]any{"name": name, "bytes": len(content)})
	s.writeEnvelope(w, env)
}

// manifestName maps a request path to a manifest name under Root.
// Names that escape Root are rejected.
func (s *Server) manifestName(path string) (string, bool) {
	name, ok := strings.CutSuffix(strings.TrimPrefix(path, "/"), s.config.Suffix)
	if !ok || name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

func (s *Server) writeEnvelope(w http.ResponseWriter, env *protocol.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Warn("envelope write failed", map[string]any{"error": err.Error()})
	}
}
