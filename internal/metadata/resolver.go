// Package metadata resolves media metadata through the extractor, caching
// both successes and failures per namespace.
package metadata

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/juniorsir/stream-dl/internal/extract"
	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/model"
)

// Namespace separates first-party and reseller cache entries.
type Namespace string

const (
	NamespaceWeb      Namespace = "data"
	NamespaceReseller Namespace = "reseller"
)

const (
	DefaultSuccessTTL = time.Hour
	DefaultFailureTTL = 5 * time.Minute
	DefaultMaxEntries = 10000
)

// Extractor produces metadata for a URL. *extract.Extractor satisfies it.
type Extractor interface {
	Metadata(ctx context.Context, target string) (*model.MediaInfo, error)
}

type entryKind uint8

const (
	entrySuccess entryKind = iota + 1
	entryFailure
)

// entry is a tagged cache value. Exactly one of info and failure is set.
type entry struct {
	kind      entryKind
	info      *model.MediaInfo
	failure   *extract.Failure
	storedAt  time.Time
	expiresAt time.Time
}

func (e entry) result() (*model.MediaInfo, error) {
	if e.kind == entryFailure {
		return nil, e.failure
	}
	return e.info, nil
}

// Config configures a Resolver.
type Config struct {
	Extractor  Extractor
	SuccessTTL time.Duration
	FailureTTL time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Resolver is a read-through cache in front of the extractor. Concurrent
// misses for one key share a single extractor run.
type Resolver struct {
	extractor  Extractor
	successTTL time.Duration
	failureTTL time.Duration
	now        func() time.Time

	cache  otter.CacheWithVariableTTL[string, entry]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	logger zerolog.Logger
}

func New(cfg Config) (*Resolver, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("metadata: extractor is required")
	}
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = DefaultSuccessTTL
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cache, err := otter.MustBuilder[string, entry](cfg.MaxEntries).
		Cost(func(_ string, _ entry) uint32 { return 1 }).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("metadata: build cache: %w", err)
	}

	return &Resolver{
		extractor:  cfg.Extractor,
		successTTL: cfg.SuccessTTL,
		failureTTL: cfg.FailureTTL,
		now:        cfg.Now,
		cache:      cache,
		logger:     log.WithComponent("metadata"),
	}, nil
}

// Key returns the cache key for a URL in a namespace.
func Key(ns Namespace, target string) string {
	sum := xxh3.HashString128(target).Bytes()
	return string(ns) + ":" + hex.EncodeToString(sum[:])
}

// Resolve returns metadata for target, from cache when a live entry exists.
// The returned MediaInfo is shared with the cache and must not be mutated.
// Cached and fresh upstream failures are returned as *extract.Failure.
func (r *Resolver) Resolve(ctx context.Context, ns Namespace, target string) (*model.MediaInfo, error) {
	key := Key(ns, target)
	if e, ok := r.lookup(key); ok {
		r.hits.Add(1)
		r.observe(ns, e, true)
		return e.result()
	}
	r.misses.Add(1)

	// The flight outlives any single caller so a disconnecting client does
	// not fail the others waiting on the same key.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		if e, ok := r.lookup(key); ok {
			return e, nil
		}
		e, err := r.fetch(flightCtx, target)
		if err != nil {
			return nil, err
		}
		r.store(key, e)
		return e, nil
	})
	if err != nil {
		metrics.IncResolve(string(ns), "error", "")
		return nil, err
	}
	e := v.(entry)
	r.observe(ns, e, false)
	return e.result()
}

func (r *Resolver) fetch(ctx context.Context, target string) (entry, error) {
	now := r.now()
	info, err := r.extractor.Metadata(ctx, target)
	if err != nil {
		var failure *extract.Failure
		if !errors.As(err, &failure) {
			return entry{}, err
		}
		r.logger.Debug().Str("url", target).Str("reason", string(failure.Reason)).Msg("caching extractor failure")
		return entry{kind: entryFailure, failure: failure, storedAt: now, expiresAt: now.Add(r.failureTTL)}, nil
	}
	return entry{kind: entrySuccess, info: info, storedAt: now, expiresAt: now.Add(r.successTTL)}, nil
}

// lookup treats an entry past expiresAt as a miss even if the backing cache
// has not evicted it yet.
func (r *Resolver) lookup(key string) (entry, bool) {
	e, ok := r.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	if !r.now().Before(e.expiresAt) {
		r.cache.Delete(key)
		return entry{}, false
	}
	return e, true
}

func (r *Resolver) store(key string, e entry) {
	r.cache.Set(key, e, e.expiresAt.Sub(e.storedAt))
	metrics.CacheEntries.Set(float64(r.cache.Size()))
}

func (r *Resolver) observe(ns Namespace, e entry, cached bool) {
	switch {
	case e.kind == entryFailure:
		metrics.IncResolve(string(ns), "failure", string(e.failure.Reason))
	case cached:
		metrics.IncResolve(string(ns), "hit", "")
	default:
		metrics.IncResolve(string(ns), "miss", "")
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size   int   `json:"cache_size"`
	Hits   int64 `json:"cache_hits"`
	Misses int64 `json:"cache_misses"`
}

func (r *Resolver) Stats() Stats {
	return Stats{Size: r.cache.Size(), Hits: r.hits.Load(), Misses: r.misses.Load()}
}

// Size is the approximate number of cached entries.
func (r *Resolver) Size() int { return r.cache.Size() }

// Clear drops every cached entry. Counters are kept.
func (r *Resolver) Clear() {
	r.cache.Clear()
	metrics.CacheEntries.Set(0)
}

// Close releases the cache's background resources.
func (r *Resolver) Close() {
	r.cache.Close()
}
