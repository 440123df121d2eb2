// Package trigger runs derived-structure rebuilds when ingestion finishes:
// ranges are re-materialized after a corpus import and the gloss index is
// rebuilt after a dictionary import. Events arrive from marker files or Kafka.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/metrics"
)

// Kind names what an ingestion pipeline finished loading.
type Kind string

const (
	KindCorpus     Kind = "corpus"
	KindDictionary Kind = "dictionary"
)

// ErrUnknownKind is returned for events no handler is registered for.
var ErrUnknownKind = errors.New("unknown ingest event kind")

// IngestEvent is the message an ingestion pipeline publishes when it finishes.
type IngestEvent struct {
	Kind   Kind   `json:"kind"`
	Source string `json:"source,omitempty"`
}

// Handler rebuilds one derived structure.
type Handler func(ctx context.Context) error

type options struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	debounce time.Duration
}

// Option configures a Dispatcher, FileTrigger or KafkaTrigger.
type Option func(*options)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records handled events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDebounce sets how long a FileTrigger waits for marker writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), debounce: defaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dispatcher routes ingest events to handlers, one at a time.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[Kind]Handler
	opts     options
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]Handler), opts: buildOptions(opts)}
}

// Handle registers h for kind, replacing any previous handler.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Dispatch runs the handler for ev.Kind. Handlers never run concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, ev IngestEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.handlers[ev.Kind]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
		d.opts.metrics.TriggerEvent(string(ev.Kind), err)
		return err
	}
	start := time.Now()
	err := h(ctx)
	d.opts.metrics.TriggerEvent(string(ev.Kind), err)
	if err != nil {
		d.opts.logger.Error("ingest trigger failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("source", ev.Source),
			zap.Error(err),
		)
		return fmt.Errorf("handling %s event: %w", ev.Kind, err)
	}
	d.opts.logger.Info("ingest trigger handled",
		zap.String("kind", string(ev.Kind)),
		zap.String("source", ev.Source),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
