package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/cache"
	"github.com/hyperjump/zhcorpus/internal/config"
	"github.com/hyperjump/zhcorpus/internal/corpus"
	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/glossindex"
	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/report"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/internal/server"
	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/internal/trigger"
)

// Components holds every opened store and the services built on them.
type Components struct {
	Corpus     *corpus.Store
	Dictionary *dictionary.Store
	Glosses    *glossindex.Index
	Ranges     *ranges.Materializer
	Sampler    *sampling.Engine
	Reports    *report.Synthesizer
	Cache      *cache.ReportCache
	Metrics    *metrics.Metrics
	redis      *cache.RedisStore
}

// Close releases every store. It is safe on partially initialized components.
func (c *Components) Close() {
	if c.Glosses != nil {
		_ = c.Glosses.Close()
	}
	if c.Dictionary != nil {
		_ = c.Dictionary.Close()
	}
	if c.Corpus != nil {
		_ = c.Corpus.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// Deps returns the server's view of the components.
func (c *Components) Deps() server.Deps {
	return server.Deps{
		Corpus:     c.Corpus,
		Dictionary: c.Dictionary,
		Sampler:    c.Sampler,
		Ranges:     c.Ranges,
		Reports:    c.Reports,
		Glosses:    c.Glosses,
		Cache:      c.Cache,
		Metrics:    c.Metrics,
	}
}

// initializeComponents opens the corpus, dictionary and gloss index and loads
// the persisted range snapshot. withCache connects Redis when configured.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withCache bool) (*Components, error) {
	c := &Components{}
	if cfg.Metrics.EnabledOrDefault() {
		c.Metrics = metrics.New()
	}

	store, err := corpus.Open(cfg.Storage.CorpusDBPath, corpus.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	c.Corpus = store

	dict, err := dictionary.Open(cfg.Storage.DictionaryDBPath, dictionary.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	c.Dictionary = dict

	glosses, err := glossindex.Open(cfg.Storage.GlossIndexPath, glossindex.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open gloss index: %w", err)
	}
	c.Glosses = glosses

	mat, err := ranges.New(store.DB(), ranges.WithLogger(logger), ranges.WithMetrics(c.Metrics))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize source ranges: %w", err)
	}
	if _, err := mat.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load source ranges: %w", err)
	}
	c.Ranges = mat

	index := termindex.NewFTSIndex(store.DB(), termindex.WithLogger(logger), termindex.WithMetrics(c.Metrics))
	c.Sampler = sampling.NewEngine(index, store, mat,
		sampling.WithLogger(logger),
		sampling.WithMetrics(c.Metrics),
		sampling.WithExcerptRadius(cfg.Sampling.ExcerptRadius),
	)
	c.Reports = report.NewSynthesizer(dict, c.Sampler, store, mat, report.Config{
		BriefSampleSize:    cfg.Report.BriefSampleSize,
		StandardSampleSize: cfg.Report.StandardSampleSize,
		FullSampleSize:     cfg.Report.FullSampleSize,
		ContextSegments:    cfg.Report.ContextSegments,
		CapTotal:           cfg.Report.CapTotal,
		CapPerSource:       cfg.Report.CapPerSource,
	}, report.WithLogger(logger), report.WithMetrics(c.Metrics))

	var backing cache.Store
	if withCache && cfg.Cache.RedisAddr != "" {
		rs, err := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			// Reports still work without Redis; only persistence is lost.
			logger.Warn("report cache disabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			c.redis = rs
			backing = rs
		}
	}
	c.Cache = cache.New(backing, cfg.Cache.TTL(),
		cache.WithLogger(logger),
		cache.WithMetrics(c.Metrics),
		cache.WithBuildTimeout(cfg.Report.Timeout()),
	)
	return c, nil
}

// newDispatcher wires ingest events to the rebuild each one needs.
func newDispatcher(c *Components, logger *zap.Logger) *trigger.Dispatcher {
	d := trigger.NewDispatcher(trigger.WithLogger(logger), trigger.WithMetrics(c.Metrics))
	d.Handle(trigger.KindCorpus, func(ctx context.Context) error {
		_, err := c.Ranges.Materialize(ctx)
		return err
	})
	d.Handle(trigger.KindDictionary, func(ctx context.Context) error {
		_, err := c.Glosses.Rebuild(ctx, c.Dictionary)
		return err
	})
	return d
}
