// Package cache collapses concurrent identical word-report builds and,
// when a Store is configured, keeps built reports across requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/models"
)

const keyPrefix = "zhcorpus:report:"

// Cache results recorded in metrics.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
	ResultError  = "error"
)

// BuildFunc builds a report on a cache miss.
type BuildFunc func(ctx context.Context) (*models.WordReport, error)

// ReportCache fronts report building. Keys include the range generation, so
// materializing new ranges invalidates every cached report without a flush.
type ReportCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics
	// buildTimeout bounds a shared build, which no single caller can cancel.
	buildTimeout time.Duration
}

// Option configures a ReportCache.
type Option func(*ReportCache)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *ReportCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records hit/miss counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ReportCache) { c.metrics = m }
}

// WithBuildTimeout bounds each shared build. Zero leaves builds unbounded.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *ReportCache) { c.buildTimeout = d }
}

// New returns a ReportCache. A nil store disables persistence; builds are
// still collapsed.
func New(store Store, ttl time.Duration, opts ...Option) *ReportCache {
	c := &ReportCache{store: store, ttl: ttl, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key for a report.
func Key(generation string, mode models.ReportMode, term string) string {
	sum := sha256.Sum256([]byte(term))
	return fmt.Sprintf("%s%s:%s:%x", keyPrefix, generation, mode, sum)
}

// GetOrBuild returns the cached report or builds it. Concurrent callers with the
// same key share one build. The shared build is detached from every caller's
// context: a caller whose ctx ends stops waiting and gets ctx.Err(), while the
// build carries on for the others. Store failures are logged and never fail the
// call. Reports with failed sections are not stored.
func (c *ReportCache) GetOrBuild(ctx context.Context, generation string, mode models.ReportMode, term string, build BuildFunc) (*models.WordReport, error) {
	key := Key(generation, mode, term)
	if rep, ok := c.get(ctx, key); ok {
		c.metrics.ReportCache(ResultHit)
		return rep, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		bctx, cancel := buildCtx, context.CancelFunc(func() {})
		if c.buildTimeout > 0 {
			bctx, cancel = context.WithTimeout(buildCtx, c.buildTimeout)
		}
		defer cancel()
		if rep, ok := c.get(bctx, key); ok {
			return rep, nil
		}
		rep, err := build(bctx)
		if err != nil {
			return nil, err
		}
		if !rep.Failed() {
			c.set(bctx, key, rep)
		}
		return rep, nil
	})

	select {
	case <-ctx.Done():
		c.metrics.ReportCache(ResultError)
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.metrics.ReportCache(ResultError)
			return nil, res.Err
		}
		if res.Shared {
			c.metrics.ReportCache(ResultShared)
		} else {
			c.metrics.ReportCache(ResultMiss)
		}
		return res.Val.(*models.WordReport), nil
	}
}

func (c *ReportCache) get(ctx context.Context, key string) (*models.WordReport, bool) {
	if c.store == nil {
		return nil, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("report cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rep models.WordReport
	if err := json.Unmarshal(data, &rep); err != nil {
		c.logger.Warn("report cache decode failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &rep, true
}

func (c *ReportCache) set(ctx context.Context, key string, rep *models.WordReport) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		c.logger.Warn("report cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
	}
}
