package headless

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pithecene-io/cinebridge/engine"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/loop"
)

// maxManifestSize bounds a plain manifest fetch.
const maxManifestSize = 8 * 1024 * 1024

// HTTPLoader is the engine's default network manifest loader, used for
// plain (unencrypted) sources.
type HTTPLoader struct {
	client *http.Client
	sched  loop.Scheduler

	mu        sync.Mutex
	inflight  map[uint64]context.CancelFunc
	nextID    uint64
	destroyed bool
}

// NewHTTPLoader creates a loader fetching with client and delivering on sched.
func NewHTTPLoader(client *http.Client, sched loop.Scheduler) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{
		client:   client,
		sched:    sched,
		inflight: make(map[uint64]context.CancelFunc),
	}
}

// Load fetches lctx.URL and reports the result on the scheduler.
func (l *HTTPLoader) Load(lctx engine.LoaderContext, cfg engine.LoaderConfig, callbacks engine.LoaderCallbacks) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		cancel()
		return
	}
	id := l.nextID
	l.nextID++
	l.inflight[id] = cancel
	l.mu.Unlock()

	go l.fetch(ctx, id, lctx, callbacks)
}

func (l *HTTPLoader) fetch(ctx context.Context, id uint64, lctx engine.LoaderContext, callbacks engine.LoaderCallbacks) {
	stats := &engine.LoadStats{}
	stats.Loading.Start = time.Now()

	body, status, err := l.get(ctx, lctx.URL, stats)
	stats.Loading.End = time.Now()
	stats.Parsing.Start = stats.Loading.End
	stats.Parsing.End = stats.Loading.End

	l.sched.Post(func() {
		if !l.retire(id) {
			return
		}
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			if callbacks.OnTimeout != nil {
				callbacks.OnTimeout(stats, lctx)
			} else if callbacks.OnError != nil {
				callbacks.OnError(engine.LoaderError{Text: err.Error()}, lctx)
			}
		case err != nil:
			if callbacks.OnError != nil {
				callbacks.OnError(engine.LoaderError{Code: status, Text: err.Error()}, lctx)
			}
		default:
			if callbacks.OnSuccess != nil {
				callbacks.OnSuccess(engine.LoaderResponse{URL: lctx.URL, Data: body}, stats, lctx)
			}
		}
	})
}

func (l *HTTPLoader) get(ctx context.Context, rawURL string, stats *engine.LoadStats) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer iox.DiscardClose(resp.Body)
	stats.Loading.First = time.Now()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", resp.StatusCode, errors.New(http.StatusText(resp.StatusCode))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return "", resp.StatusCode, err
	}
	stats.Loaded = len(b)
	stats.Total = len(b)
	return string(b), resp.StatusCode, nil
}

// retire removes id from the in-flight set. False means the load was
// aborted and its callback must be dropped.
func (l *HTTPLoader) retire(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancel, ok := l.inflight[id]
	if !ok {
		return false
	}
	delete(l.inflight, id)
	cancel()
	return true
}

// Abort cancels every in-flight fetch. No callbacks fire for them.
func (l *HTTPLoader) Abort() {
	l.mu.Lock()
	inflight := l.inflight
	l.inflight = make(map[uint64]context.CancelFunc)
	l.mu.Unlock()

	for _, cancel := range inflight {
		cancel()
	}
}

// Destroy aborts and ignores later loads.
func (l *HTTPLoader) Destroy() {
	l.mu.Lock()
	l.destroyed = true
	l.mu.Unlock()
	l.Abort()
}

// Verify HTTPLoader implements the engine loader interface.
var _ engine.Loader = (*HTTPLoader)(nil)
