package client

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce groups bursts of writes into one notification
const DefaultWatchDebounce = 100 * time.Millisecond

// StorageWatcher calls back when another process writes the storage file
type StorageWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	logger   *zap.Logger

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// WatchStorage watches the file at path and calls onChange, debounced, after
// it is written. The watch stops when ctx is done or Close is called.
func WatchStorage(ctx context.Context, path string, debounce time.Duration, onChange func(), logger *zap.Logger) (*StorageWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	// SQLite may replace files in the directory, so watch the directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sw := &StorageWatcher{
		watcher:  w,
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go sw.run(ctx)
	return sw, nil
}

func (sw *StorageWatcher) run(ctx context.Context) {
	defer close(sw.done)

	for {
		select {
		case <-ctx.Done():
			sw.stopTimer()
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !sw.relevant(event) {
				continue
			}
			sw.schedule()

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("storage watcher error", zap.Error(err))
		}
	}
}

func (sw *StorageWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == sw.path || name == sw.path+"-wal"
}

func (sw *StorageWatcher) schedule() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.timer != nil {
		sw.timer.Reset(sw.debounce)
		return
	}
	sw.timer = time.AfterFunc(sw.debounce, func() {
		sw.mu.Lock()
		sw.timer = nil
		sw.mu.Unlock()
		sw.onChange()
	})
}

func (sw *StorageWatcher) stopTimer() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer != nil {
		sw.timer.Stop()
		sw.timer = nil
	}
}

// Close stops watching and waits for the event loop to exit
func (sw *StorageWatcher) Close() error {
	sw.cancel()
	<-sw.done
	return sw.watcher.Close()
}
