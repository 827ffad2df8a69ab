// Package reload watches on-disk configuration and calibration files and
// signals a debounced change event once a write has settled, so a caller
// reloading a file mid-write never reads a half-written one.
package reload

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change describes a file that has finished being written.
type Change struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher debounces fsnotify events into settled Change values for a set of
// paths (config.toml, a calibration JSON file, and the like). A file path is
// watched through its parent directory, and changes to any file in that
// directory are reported, not only to the listed file.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration

	state   map[string]time.Time
	stateMu sync.RWMutex

	changes chan Change
	errors  chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over paths, each of which may be a single file or a
// directory (in which case every immediate child file is tracked). debounce
// is how long a file must go unmodified before it is reported as settled.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		paths:     paths,
		debounce:  debounce,
		state:     make(map[string]time.Time),
		changes:   make(chan Change, 16),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}, nil
}

// Changes returns the channel of settled file changes.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of fsnotify and hashing errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching every configured path.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.fsWatcher.Add(absPath); err != nil {
				return err
			}
			entries, err := os.ReadDir(absPath)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					w.trackFile(filepath.Join(absPath, entry.Name()))
				}
			}
		} else {
			// Watch the containing directory: editors and atomic-rename
			// writers (os.Rename over a temp file) never touch the target
			// path's own inode watch, only its directory's.
			if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
				return err
			}
			w.trackFile(absPath)
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop shuts the watcher down and waits for its goroutines to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.changes)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) trackFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.stateMu.Lock()
	w.state[path] = info.ModTime()
	w.stateMu.Unlock()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			w.stateMu.Lock()
			w.state[event.Name] = time.Now()
			w.stateMu.Unlock()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkSettledFiles(now)
		}
	}
}

func (w *Watcher) checkSettledFiles(now time.Time) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	threshold := now.Add(-w.debounce)
	for path, lastMod := range w.state {
		if !lastMod.Before(threshold) {
			continue
		}
		hash, size, err := HashFile(path)
		if err != nil {
			select {
			case w.errors <- err:
			default:
			}
			continue
		}
		change := Change{Path: path, Hash: hash, Size: size, Timestamp: now}
		select {
		case w.changes <- change:
			delete(w.state, path)
		default:
		}
	}
}

// HashFile streams path through SHA-256 without loading it fully into
// memory.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}
	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the configured watch paths.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}

// TrackedFiles returns the current number of files awaiting settlement.
func (w *Watcher) TrackedFiles() int {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return len(w.state)
}
