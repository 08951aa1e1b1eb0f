// Package connector defines the pluggable fetch/extract capability that
// the Sync Engine uses to pull fields from third-party data sources, plus
// a process-lifetime response cache and a retrying HTTP caller.
package connector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/memory-loop/daemon/internal/logging"
)

// Response is an opaque payload returned by a connector's fetch call.
// Connectors decide its concrete shape; extract_fields interprets it.
type Response interface{}

// FieldMapping describes how to pull one frontmatter field out of a
// connector Response; its shape is connector-specific (e.g. a JSON path).
type FieldMapping = map[string]string

// Connector is the per-source capability set a pipeline config names by
// string. Unknown names are a pipeline-level error, not a fatal one.
type Connector interface {
	// Name is the identifier pipeline configs use to select this connector.
	Name() string

	// FetchByID retrieves the upstream record for id.
	FetchByID(ctx context.Context, id string) (Response, error)

	// ExtractFields projects fields named in mappings out of response.
	ExtractFields(response Response, mappings FieldMapping) (map[string]interface{}, error)
}

// ErrUnknownConnector is returned by Registry.Get for an unregistered name.
var ErrUnknownConnector = errors.New("connector: unknown connector name")

// Registry looks up connectors by name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds c, keyed by c.Name(). A later call with the same name
// replaces the earlier registration.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

// Get looks up a connector by name.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return c, nil
}

// cacheKey keys the in-memory response cache by connector name and
// upstream id. It deliberately never incorporates secret material.
type cacheKey struct {
	connector string
	id        string
}

// Cache is an in-memory, process-lifetime cache of fetch_by_id results,
// serving repeated lookups within a single run.
type Cache struct {
	mu    sync.Mutex
	store map[cacheKey]Response
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{store: make(map[cacheKey]Response)}
}

// Clear empties the cache. Called at the start of a full sync run; an
// incremental run leaves the cache populated across pipelines.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[cacheKey]Response)
}

// Get returns a cached response for (connectorName, id), if present.
func (c *Cache) Get(connectorName, id string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[cacheKey{connectorName, id}]
	return v, ok
}

// Put stores a response for (connectorName, id).
func (c *Cache) Put(connectorName, id string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[cacheKey{connectorName, id}] = resp
}

// RetryableError marks an error as transient (HTTP 429 or network-level),
// eligible for exponential backoff retry. Errors that do not implement
// this are treated as non-retriable and surface immediately.
type RetryableError interface {
	error
	Retryable() bool
}

// BackoffConfig controls FetchWithRetry's retry policy.
type BackoffConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoffConfig matches spec.md's "bounded attempt count" guidance.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// FetchWithRetry calls fetch, retrying on transient failures with
// exponential backoff and full jitter, up to cfg.MaxAttempts. Errors that
// do not report Retryable()==true surface on the first failure.
// connectorName names the caller in logs and returned errors; no secret
// values are ever passed to Fetch or logged here.
func FetchWithRetry(ctx context.Context, connectorName string, cfg BackoffConfig, fetch func(ctx context.Context) (Response, error)) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		resp, err := fetch(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var retryable RetryableError
		if !errors.As(err, &retryable) || !retryable.Retryable() {
			return nil, err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		logging.ConnectorWarn("%s: transient error on attempt %d/%d, retrying in %s: %v",
			connectorName, attempt+1, cfg.MaxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: exhausted %d attempts: %w", connectorName, cfg.MaxAttempts, lastErr)
}

// backoffDelay computes exponential backoff with full jitter, capped at
// cfg.MaxDelay.
func backoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	max := cfg.BaseDelay * time.Duration(1<<uint(attempt))
	if max > cfg.MaxDelay || max <= 0 {
		max = cfg.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
