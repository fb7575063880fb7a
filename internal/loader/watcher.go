package loader

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xtxerr/trending/internal/logging"
)

var log = logging.Component("loader")

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// =============================================================================
// Config Watcher
// =============================================================================

// Watcher reloads a config file whenever it changes and hands the result
// to a callback. The callback receives either a loaded and validated
// configuration or the error that prevented it.
type Watcher struct {
	path     string
	debounce time.Duration
	callback func(*Config, error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. The file's directory is watched
// so that editors that replace the file by renaming are followed.
func NewWatcher(path string, debounce time.Duration, callback func(*Config, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		callback: callback,
		watcher:  fw,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start begins watching the config file.
func (w *Watcher) Start() {
	go w.watch()
}

// Stop stops watching and waits for the event loop to exit. A reload that
// is already running completes first.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
	<-w.stopped

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) watch() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				log.Debug("config file changed", "path", w.path, "op", event.Op.String())
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watch error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		log.Warn("config reload failed", "path", w.path, "error", err)
		w.callback(nil, err)
		return
	}

	log.Info("config reloaded", "path", w.path, "sites", len(cfg.Sites))
	w.callback(cfg, nil)
}
