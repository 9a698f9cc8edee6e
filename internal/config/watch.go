package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mm-engine/internal/logging"
)

// Holder exposes the currently active config and lets a watcher swap it
// atomically. Credentials are taken from the environment at process start
// and never touched by a reload.
type Holder struct {
	mu  sync.RWMutex
	cfg AppConfig
}

func NewHolder(cfg AppConfig) *Holder {
	return &Holder{cfg: cfg}
}

func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Holder) swap(cfg AppConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// credentials never reload from disk; carry the running process's
	// environment-sourced values forward.
	cfg.Exchange = h.cfg.Exchange
	h.cfg = cfg
}

// Watcher reloads the on-disk portion of AppConfig on file writes, with a
// cooldown to absorb editors that write in multiple short bursts. An
// invalid reloaded file is rejected and logged; the prior valid config
// keeps running.
type Watcher struct {
	path     string
	holder   *Holder
	log      *logging.Logger
	cooldown time.Duration

	fsw *fsnotify.Watcher
	mu  sync.Mutex
	last time.Time
}

func NewWatcher(path string, holder *Holder, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, holder: holder, log: log, cooldown: 2 * time.Second, fsw: fsw}, nil
}

func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.LogError(err, map[string]any{"component": "config_watcher"})
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.last) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.last = time.Now()
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		if w.log != nil {
			w.log.LogError(err, map[string]any{"component": "config_watcher", "path": w.path})
		}
		return
	}
	w.holder.swap(cfg)
	if w.log != nil {
		w.log.Info("config reloaded", zap.String("path", w.path))
	}
}
