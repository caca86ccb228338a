// Package watch delivers read-only store snapshots to a long-running
// consumer such as the dashboard process.
//
// The watcher polls on a fixed interval and additionally wakes early when
// the store document changes on disk. It never takes the write lock;
// because writers replace the document atomically, every snapshot it
// observes is internally consistent, if possibly slightly stale.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adalundhe/recall/core/store"
)

// DefaultInterval is the fallback polling cadence.
const DefaultInterval = 30 * time.Second

// Watcher periodically reads the store and publishes snapshots.
type Watcher struct {
	st       *store.Store
	interval time.Duration
	fs       *fsnotify.Watcher
	out      chan *store.Envelope
}

// New builds a watcher over st. A non-positive interval selects
// DefaultInterval. The store's parent directory is watched rather than the
// file itself because atomic renames replace the inode.
func New(st *store.Store, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(st.Path())); err != nil {
		fs.Close()
		return nil, err
	}

	return &Watcher{
		st:       st,
		interval: interval,
		fs:       fs,
		out:      make(chan *store.Envelope, 1),
	}, nil
}

// Snapshots is the stream of observed envelopes. A slow consumer only ever
// misses intermediate snapshots, never sees a torn one.
func (w *Watcher) Snapshots() <-chan *store.Envelope {
	return w.out
}

// Run polls until ctx is done. It emits an initial snapshot immediately,
// then on every tick and on every change to the store document.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	defer close(w.out)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.emit(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			w.emit(ctx)

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Name != w.st.Path() {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.emit(ctx)
			}

		case _, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			// Watch errors degrade to interval-only polling.
		}
	}
}

// emit reads a snapshot and hands it to the consumer, replacing an
// undelivered previous snapshot rather than blocking.
func (w *Watcher) emit(ctx context.Context) {
	env, err := w.st.Read(ctx)
	if err != nil {
		return
	}

	select {
	case w.out <- env:
	default:
		select {
		case <-w.out:
		default:
		}
		select {
		case w.out <- env:
		default:
		}
	}
}
