// Package metrics provides per-session counters for the manifest pipeline.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so components can be built
// without metrics wired.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsReady     int64 `json:"sessions_ready"`
	SessionsFailed    int64 `json:"sessions_failed"`
	SessionsDestroyed int64 `json:"sessions_destroyed"`

	// Manifest resolution
	ResolveSuccess       int64            `json:"resolve_success"`
	ResolveFailure       int64            `json:"resolve_failure"`
	ResolveFailureByKind map[string]int64 `json:"resolve_failure_by_kind"`

	// Loader bridge
	LoaderDelivered int64 `json:"loader_delivered"`
	LoaderTimeout   int64 `json:"loader_timeout"`

	// Engine recovery
	NetworkRecoveries int64 `json:"network_recoveries"`
	MediaRecoveries   int64 `json:"media_recoveries"`
	EngineFatal       int64 `json:"engine_fatal"`

	// Downstream sinks
	PublishSuccess    int64 `json:"publish_success"`
	PublishFailure    int64 `json:"publish_failure"`
	AuditWriteSuccess int64 `json:"audit_write_success"`
	AuditWriteFailure int64 `json:"audit_write_failure"`

	// Dimensions (informational, set at construction)
	SessionID      string `json:"session_id"`
	StorageBackend string `json:"storage_backend"`
}

// Collector accumulates counters during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsReady     int64
	sessionsFailed    int64
	sessionsDestroyed int64

	resolveSuccess       int64
	resolveFailure       int64
	resolveFailureByKind map[string]int64

	loaderDelivered int64
	loaderTimeout   int64

	networkRecoveries int64
	mediaRecoveries   int64
	engineFatal       int64

	publishSuccess    int64
	publishFailure    int64
	auditWriteSuccess int64
	auditWriteFailure int64

	sessionID      string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when no audit sink is configured.
func NewCollector(sessionID, storageBackend string) *Collector {
	return &Collector{
		resolveFailureByKind: make(map[string]int64),
		sessionID:            sessionID,
		storageBackend:       storageBackend,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a session Init.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsStarted)
}

// IncSessionReady records a transition to Ready.
func (c *Collector) IncSessionReady() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsReady)
}

// IncSessionFailed records a transition to Failed.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsFailed)
}

// IncSessionDestroyed records a completed Destroy.
func (c *Collector) IncSessionDestroyed() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsDestroyed)
}

// --- Manifest resolution ---

// IncResolveSuccess records a manifest written to the slot.
func (c *Collector) IncResolveSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.resolveSuccess)
}

// IncResolveFailure records a failed resolve, keyed by error kind
// (transport, protocol, format, crypto, canceled).
func (c *Collector) IncResolveFailure(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolveFailure++
	c.resolveFailureByKind[kind]++
	c.mu.Unlock()
}

// --- Loader bridge ---

// IncLoaderDelivered records a manifest handed to the engine.
func (c *Collector) IncLoaderDelivered() {
	if c == nil {
		return
	}
	c.inc(&c.loaderDelivered)
}

// IncLoaderTimeout records a load that timed out waiting for the slot.
func (c *Collector) IncLoaderTimeout() {
	if c == nil {
		return
	}
	c.inc(&c.loaderTimeout)
}

// --- Engine recovery ---

// IncNetworkRecovery records a StartLoad after a fatal network error.
func (c *Collector) IncNetworkRecovery() {
	if c == nil {
		return
	}
	c.inc(&c.networkRecoveries)
}

// IncMediaRecovery records a RecoverMediaError after a fatal media error.
func (c *Collector) IncMediaRecovery() {
	if c == nil {
		return
	}
	c.inc(&c.mediaRecoveries)
}

// IncEngineFatal records an unrecoverable engine error.
func (c *Collector) IncEngineFatal() {
	if c == nil {
		return
	}
	c.inc(&c.engineFatal)
}

// --- Downstream sinks ---

// IncPublishSuccess records a successful adapter publish.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.publishSuccess)
}

// IncPublishFailure records a failed adapter publish.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.inc(&c.publishFailure)
}

// IncAuditWriteSuccess records a successful audit write (per call).
func (c *Collector) IncAuditWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.auditWriteSuccess)
}

// IncAuditWriteFailure records a failed audit write (per call).
func (c *Collector) IncAuditWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.auditWriteFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.resolveFailureByKind))
	for k, v := range c.resolveFailureByKind {
		byKind[k] = v
	}

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsReady:     c.sessionsReady,
		SessionsFailed:    c.sessionsFailed,
		SessionsDestroyed: c.sessionsDestroyed,

		ResolveSuccess:       c.resolveSuccess,
		ResolveFailure:       c.resolveFailure,
		ResolveFailureByKind: byKind,

		LoaderDelivered: c.loaderDelivered,
		LoaderTimeout:   c.loaderTimeout,

		NetworkRecoveries: c.networkRecoveries,
		MediaRecoveries:   c.mediaRecoveries,
		EngineFatal:       c.engineFatal,

		PublishSuccess:    c.publishSuccess,
		PublishFailure:    c.publishFailure,
		AuditWriteSuccess: c.auditWriteSuccess,
		AuditWriteFailure: c.auditWriteFailure,

		SessionID:      c.sessionID,
		StorageBackend: c.storageBackend,
	}
}
