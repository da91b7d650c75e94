package config

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events most editors generate for a
// single save.
const reloadDebounce = 250 * time.Millisecond

// Watcher holds the live Config snapshot and reloads it from disk on
// change, without disturbing queries already in flight against the
// previous snapshot: each caller holds its own *Config pointer for the
// life of the request, so a reload never mutates state underneath it.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	current atomic.Pointer[Config]
	logger  *log.Logger

	timerMu sync.Mutex
	timer   *time.Timer

	done chan struct{}
}

// Watch loads path and begins watching it for changes. Close stops
// watching; the caller keeps using Current() for the life of the
// server.
func Watch(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, logger: logger, done: make(chan struct{})}
	w.current.Store(cfg)

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded Config snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Close stops the filesystem watch.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("config: watch error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Printf("config: reload of %s failed, keeping previous snapshot: %v", w.path, err)
		return
	}
	w.current.Store(cfg)
	w.logger.Printf("config: reloaded %s", w.path)
}
