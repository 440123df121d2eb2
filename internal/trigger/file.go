package trigger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 500 * time.Millisecond
	markerSuffix    = ".done"
)

// MarkerName returns the file an ingestion pipeline touches when it finishes a
// load of the given kind.
func MarkerName(kind Kind) string {
	return string(kind) + markerSuffix
}

// FileTrigger watches a directory for marker files (corpus.done,
// dictionary.done) and dispatches the matching event once writes settle.
type FileTrigger struct {
	dir        string
	dispatcher *Dispatcher
	opts       options

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timers   map[Kind]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewFileTrigger returns a FileTrigger for dir. Call Start to begin watching.
func NewFileTrigger(dir string, d *Dispatcher, opts ...Option) *FileTrigger {
	return &FileTrigger{
		dir:        filepath.Clean(dir),
		dispatcher: d,
		opts:       buildOptions(opts),
		timers:     make(map[Kind]*time.Timer),
		done:       make(chan struct{}),
	}
}

// Start creates dir if needed and watches it until ctx is cancelled or Stop is called.
func (f *FileTrigger) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(f.dir); err != nil {
		_ = w.Close()
		return err
	}
	f.watcher = w
	f.started = true
	f.opts.logger.Debug("file trigger watching", zap.String("dir", f.dir))
	go f.run(ctx, w)
	return nil
}

func (f *FileTrigger) run(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			f.Stop()
			return
		case <-f.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			f.handleEvent(ctx, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				f.opts.logger.Debug("file trigger error", zap.Error(err))
			}
		}
	}
}

func (f *FileTrigger) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if filepath.Dir(filepath.Clean(ev.Name)) != f.dir {
		return
	}
	kind, ok := kindForMarker(filepath.Base(ev.Name))
	if !ok {
		return
	}
	f.opts.logger.Debug("file trigger event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	f.debounce(ctx, kind)
}

func kindForMarker(name string) (Kind, bool) {
	if !strings.HasSuffix(name, markerSuffix) {
		return "", false
	}
	switch k := Kind(strings.TrimSuffix(name, markerSuffix)); k {
	case KindCorpus, KindDictionary:
		return k, true
	}
	return "", false
}

func (f *FileTrigger) debounce(ctx context.Context, kind Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.timers[kind]; ok {
		t.Stop()
	}
	f.timers[kind] = time.AfterFunc(f.opts.debounce, func() {
		f.mu.Lock()
		delete(f.timers, kind)
		f.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		// Dispatch logs and counts its own failures.
		_ = f.dispatcher.Dispatch(ctx, IngestEvent{Kind: kind, Source: "file"})
	})
}

// Stop stops watching and cancels pending dispatches.
func (f *FileTrigger) Stop() {
	f.mu.Lock()
	if !f.started || f.watcher == nil {
		f.mu.Unlock()
		return
	}
	for k, t := range f.timers {
		t.Stop()
		delete(f.timers, k)
	}
	_ = f.watcher.Close()
	f.watcher = nil
	f.started = false
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.done) })
}
