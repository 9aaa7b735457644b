package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/errors"
	"github.com/heraldhq/herald/pkg/logger"
)

// Watcher reloads a Config document whenever its file changes on disk and
// reports each reload through a callback. A reload that fails to parse or
// validate keeps the previous good config; the callback still fires with
// the error so callers can surface it.
type Watcher struct {
	mu  sync.RWMutex
	cfg *Config

	path     string
	fn       func(*Config, error)
	log      *zap.Logger
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher loads the document at path, starts watching it, and returns
// the watcher. The callback fires once for the initial load and again on
// every change; it runs on the watcher's goroutine, so it must not block.
// An unreadable or invalid initial document is reported through the
// callback rather than failing construction, so a watch can start before
// the file is correct.
func NewWatcher(path string, fn func(*Config, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to resolve config path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create file watcher")
	}

	// Watch the directory rather than the file: editors that save
	// atomically replace the file, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to watch config directory")
	}

	w := &Watcher{
		path:   abs,
		fn:     fn,
		log:    logger.Get().With(zap.String("component", "config_watcher"), zap.String("path", abs)),
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}

	w.reload()
	go w.loop()

	w.log.Info("watching config file for changes")
	return w, nil
}

// Config returns the most recent successfully loaded document, or nil if
// no load has succeeded yet.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous config", zap.Error(err))
		if w.fn != nil {
			w.fn(nil, err)
		}
		return
	}

	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()

	w.log.Info("config reloaded", zap.Int("channels", len(cfg.Channels)))
	if w.fn != nil {
		w.fn(cfg, nil)
	}
}

func (w *Watcher) loop() {
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			// Atomic saves surface as Create, in-place saves as Write.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debug("config file changed", zap.String("event", event.Op.String()))
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}
