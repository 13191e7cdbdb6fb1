package session

import "github.com/pithecene-io/cinebridge/engine"

func (s *Session) currentPlayer() engine.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Play starts playback.
func (s *Session) Play() error {
	p := s.currentPlayer()
	if p == nil {
		return ErrNotReady
	}
	return p.Play()
}

// Pause pauses playback.
func (s *Session) Pause() error {
	p := s.currentPlayer()
	if p == nil {
		return ErrNotReady
	}
	return p.Pause()
}

// Seek moves the playhead to seconds.
func (s *Session) Seek(seconds float64) error {
	p := s.currentPlayer()
	if p == nil {
		return ErrNotReady
	}
	return p.Seek(seconds)
}

// CurrentTime returns the playhead position, zero without a player.
func (s *Session) CurrentTime() float64 {
	if p := s.currentPlayer(); p != nil {
		return p.CurrentTime()
	}
	return 0
}

// Duration returns the media duration, zero without a player.
func (s *Session) Duration() float64 {
	if p := s.currentPlayer(); p != nil {
		return p.Duration()
	}
	return 0
}
