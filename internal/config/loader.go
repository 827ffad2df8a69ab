package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a TOML config file whenever it changes on disk and
// notifies registered callbacks with the freshly validated Config.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewWatcher loads path once and prepares a Watcher to track further
// changes; call Watch to start the background goroutine.
func NewWatcher(path string) (*Watcher, error) {
	if path == "" {
		path = Path()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate initial config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:    path,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		errChan: make(chan error, 1),
	}, nil
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb func(*Config)) {
	w.onChange = append(w.onChange, cb)
}

// Errors returns a channel receiving reload failures.
func (w *Watcher) Errors() <-chan error {
	return w.errChan
}

// Watch starts watching the config file's directory for writes.
func (w *Watcher) Watch() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = fw

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	const delay = 150 * time.Millisecond

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.pushErr(err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.pushErr(fmt.Errorf("reload config: %w", err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.pushErr(fmt.Errorf("validate reloaded config: %w", err))
		return
	}
	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()

	for _, cb := range w.onChange {
		cb(cfg)
	}
}

func (w *Watcher) pushErr(err error) {
	select {
	case w.errChan <- err:
	default:
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
