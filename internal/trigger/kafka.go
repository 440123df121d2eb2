package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/config"
)

// messageReader is the subset of *kafka.Reader the trigger uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTrigger consumes IngestEvent messages from a topic and dispatches them.
type KafkaTrigger struct {
	reader     messageReader
	dispatcher *Dispatcher
	opts       options
}

// restartBackoff is how long RunKafka waits before reopening the reader after
// a handler failure.
const restartBackoff = 5 * time.Second

func newKafkaReader(cfg config.KafkaConfig) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
}

func newKafkaTrigger(r messageReader, d *Dispatcher, opts ...Option) *KafkaTrigger {
	return &KafkaTrigger{reader: r, dispatcher: d, opts: buildOptions(opts)}
}

// Run consumes until ctx is cancelled, then closes the reader and returns nil.
// Malformed messages and unknown kinds are committed and skipped. When a handler
// fails, Run closes the reader and returns the error without committing: offsets
// are cumulative, so committing anything later would drop the failed event. A
// new reader in the same group resumes from that event.
func (k *KafkaTrigger) Run(ctx context.Context) error {
	k.opts.logger.Info("kafka trigger started")
	defer k.reader.Close()
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.opts.logger.Info("kafka trigger stopping", zap.Error(ctx.Err()))
				return nil
			}
			k.opts.logger.Error("failed to fetch message", zap.Error(err))
			continue
		}
		if err := k.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest event at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.opts.logger.Error("failed to commit message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// RunKafka runs a KafkaTrigger on cfg until ctx is cancelled, reopening the
// reader after a handler failure so the failed event is delivered again.
func RunKafka(ctx context.Context, cfg config.KafkaConfig, d *Dispatcher, opts ...Option) {
	runWithRestart(ctx, func() messageReader { return newKafkaReader(cfg) }, d, restartBackoff, opts...)
}

func runWithRestart(ctx context.Context, open func() messageReader, d *Dispatcher, backoff time.Duration, opts ...Option) {
	logger := buildOptions(opts).logger
	for {
		err := newKafkaTrigger(open(), d, opts...).Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error("kafka trigger failed, reopening", zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (k *KafkaTrigger) handle(ctx context.Context, value []byte) error {
	ev, err := decodeEvent(value)
	if err != nil {
		k.opts.logger.Warn("skipping malformed ingest event", zap.Error(err))
		return nil
	}
	if err := k.dispatcher.Dispatch(ctx, ev); err != nil {
		if errors.Is(err, ErrUnknownKind) {
			k.opts.logger.Warn("skipping ingest event", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

func decodeEvent(value []byte) (IngestEvent, error) {
	var ev IngestEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("decoding ingest event: %w", err)
	}
	if ev.Kind == "" {
		return ev, fmt.Errorf("decoding ingest event: missing kind")
	}
	return ev, nil
}
