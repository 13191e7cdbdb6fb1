package session

import (
	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/log"
)

// handleEvent runs on the scheduler for every engine event.
func (s *Session) handleEvent(ev engine.Event) {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	eng, player, logger := s.engine, s.player, s.logger
	s.mu.Unlock()

	switch ev.Type {
	case engine.EventMediaAttached:
		// The engine only issues a manifest load once media is attached.
		if eng != nil {
			eng.LoadSource(s.opts.Placeholder)
		}

	case engine.EventManifestParsed:
		fields := map[string]any{}
		if ev.Manifest != nil {
			fields["kind"] = ev.Manifest.Kind
			fields["segments"] = ev.Manifest.Segments
			fields["variants"] = len(ev.Manifest.Variants)
		}
		logger.Info("manifest parsed", fields)
		if s.opts.Autoplay && player != nil {
			if err := player.Play(); err != nil {
				logger.Warn("autoplay failed", map[string]any{"error": err.Error()})
			}
		}

	case engine.EventError:
		if ev.Error != nil {
			s.handleEngineError(eng, ev.Error)
		}
	}
}

// handleEngineError maps fatal engine errors to recovery actions. Non-fatal
// errors are left to the engine. Once the recovery budget for an error type
// is spent the session fails.
func (s *Session) handleEngineError(eng engine.Engine, data *engine.ErrorData) {
	logger := s.currentLogger()
	fields := map[string]any{
		"type":    string(data.Type),
		"details": data.Details,
		"fatal":   data.Fatal,
	}
	if !data.Fatal {
		logger.Debug("engine error", fields)
		return
	}

	if !s.takeRecovery(data.Type) {
		s.engineFatal(data)
		return
	}

	switch data.Type {
	case engine.ErrorTypeNetwork:
		s.collector.IncNetworkRecovery()
		logger.Warn("fatal network error, restarting load", fields)
		if eng != nil {
			eng.StartLoad()
		}

	case engine.ErrorTypeMedia:
		s.collector.IncMediaRecovery()
		logger.Warn("fatal media error, recovering", fields)
		if eng != nil {
			eng.RecoverMediaError()
		}
	}
}

// takeRecovery reports whether a recovery action is left for t and
// consumes it. Only network and media errors are recoverable, each
// MaxRecoveries times per session.
func (s *Session) takeRecovery(t engine.ErrorType) bool {
	if t != engine.ErrorTypeNetwork && t != engine.ErrorTypeMedia {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recoveries[t] >= MaxRecoveries {
		return false
	}
	if s.recoveries == nil {
		s.recoveries = make(map[engine.ErrorType]int)
	}
	s.recoveries[t]++
	return true
}

// engineFatal reports an unrecoverable engine error and fails the session.
func (s *Session) engineFatal(data *engine.ErrorData) {
	s.collector.IncEngineFatal()
	err := &EngineError{Type: data.Type, Details: data.Details}
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
	_ = s.fail(err)
}

func (s *Session) currentLogger() *log.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}
