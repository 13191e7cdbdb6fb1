// Package proxy picks the egress proxy for a session's envelope fetch.
//
// Pools come from config and are registered once per process. Each fetch
// asks for one endpoint; rotation and sticky assignments live in memory
// only and are lost when the process exits.
package proxy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/pithecene-io/cinebridge/types"
)

// Option configures a Selector.
type Option func(*Selector)

// WithClock overrides the time source used for sticky TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// Selector hands out endpoints from registered pools.
// It is safe for concurrent use.
type Selector struct {
	warn func(string)
	now  func() time.Time

	mu    sync.Mutex
	pools map[string]*pool
}

type pool struct {
	cfg    *types.ProxyPool
	next   int64
	sticky map[string]assignment
}

// assignment pins a sticky key to an endpoint. A zero expires never expires.
type assignment struct {
	endpoint int
	expires  time.Time
}

func (a assignment) live(now time.Time) bool {
	return a.expires.IsZero() || a.expires.After(now)
}

// NewSelector creates a selector. warn receives pool configuration
// warnings; nil discards them.
func NewSelector(warn func(string), opts ...Option) *Selector {
	if warn == nil {
		warn = func(string) {}
	}
	s := &Selector{
		warn:  warn,
		now:   time.Now,
		pools: make(map[string]*pool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPool validates p and makes it selectable by name. Registering a
// name again replaces the pool and drops its state.
func (s *Selector) RegisterPool(p *types.ProxyPool) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}
	for _, w := range p.Warnings() {
		s.warn(w)
	}

	s.mu.Lock()
	s.pools[p.Name] = &pool{cfg: p, sticky: make(map[string]assignment)}
	s.mu.Unlock()
	return nil
}

// SelectRequest describes one endpoint request.
type SelectRequest struct {
	Pool string
	// StrategyOverride replaces the pool's strategy for this request.
	StrategyOverride *types.ProxyStrategy
	// StickyKey pins the assignment explicitly and wins over the pool's
	// sticky scope.
	StickyKey string
	// SessionID, Domain and Origin feed the session, domain and origin
	// sticky scopes.
	SessionID string
	Domain    string
	Origin    string
	// Commit advances rotation and stores new sticky assignments. Without
	// it Select only previews.
	Commit bool
}

// RequestFor builds the committed request the resolver issues before
// fetching target on behalf of sessionID.
func RequestFor(poolName, sessionID string, target *url.URL) SelectRequest {
	req := SelectRequest{Pool: poolName, SessionID: sessionID, Commit: true}
	if target != nil {
		req.Domain = target.Hostname()
		req.Origin = target.Scheme + "://" + target.Host
	}
	return req
}

// Select returns a copy of the chosen endpoint.
func (s *Selector) Select(req SelectRequest) (*types.ProxyEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[req.Pool]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", req.Pool)
	}

	strategy := p.cfg.Strategy
	if req.StrategyOverride != nil {
		strategy = *req.StrategyOverride
	}

	var (
		idx int
		err error
	)
	switch strategy {
	case types.ProxyStrategyRoundRobin:
		idx = p.roundRobin(req.Commit)
	case types.ProxyStrategyRandom:
		idx, err = p.random()
	case types.ProxyStrategySticky:
		idx, err = p.stick(stickyKey(p.cfg, req), s.now(), req.Commit)
	default:
		err = fmt.Errorf("unknown strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	ep := p.cfg.Endpoints[idx]
	return &ep, nil
}

func (p *pool) roundRobin(commit bool) int {
	idx := int(p.next % int64(len(p.cfg.Endpoints)))
	if commit {
		p.next++
	}
	return idx
}

func (p *pool) random() (int, error) {
	n := len(p.cfg.Endpoints)
	if n == 1 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(v.Int64()), nil
}

// stick returns the live assignment for key or draws a new random one.
// Committing a new assignment also prunes expired ones.
func (p *pool) stick(key string, now time.Time, commit bool) (int, error) {
	if key == "" {
		return 0, errors.New("sticky selection requires a sticky key")
	}
	if a, ok := p.sticky[key]; ok && a.live(now) {
		return a.endpoint, nil
	}

	idx, err := p.random()
	if err != nil {
		return 0, err
	}
	if !commit {
		return idx, nil
	}

	for k, a := range p.sticky {
		if !a.live(now) {
			delete(p.sticky, k)
		}
	}
	a := assignment{endpoint: idx}
	if p.cfg.Sticky != nil && p.cfg.Sticky.TTLMs != nil {
		a.expires = now.Add(time.Duration(*p.cfg.Sticky.TTLMs) * time.Millisecond)
	}
	p.sticky[key] = a
	return idx, nil
}

// stickyKey picks the request's explicit key, else the field named by the
// pool's scope. Pools without sticky config key by session.
func stickyKey(cfg *types.ProxyPool, req SelectRequest) string {
	if req.StickyKey != "" {
		return req.StickyKey
	}
	if cfg.Sticky == nil {
		return req.SessionID
	}
	switch cfg.Sticky.Scope {
	case types.ProxyStickyDomain:
		return req.Domain
	case types.ProxyStickyOrigin:
		return req.Origin
	default:
		return req.SessionID
	}
}

// PoolStats is a pool's rotation position and live sticky count.
type PoolStats struct {
	RoundRobinIndex int64
	StickyEntries   int
}

// Stats reports the state of the named pool.
func (s *Selector) Stats(poolName string) (*PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", poolName)
	}
	now := s.now()
	live := 0
	for _, a := range p.sticky {
		if a.live(now) {
			live++
		}
	}
	return &PoolStats{RoundRobinIndex: p.next, StickyEntries: live}, nil
}
