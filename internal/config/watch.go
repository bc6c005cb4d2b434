package config

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk and notifies
// registered callbacks with the new value. Invalid edits are logged and
// skipped; the last good config stays in effect.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	cfg Config
	fns []func(Config)

	closed chan struct{}
}

// Watch starts watching path. cfg is the initially loaded config.
func Watch(path string, cfg Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file — editors replace files on save,
	// which drops a watch registered on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		cfg:     cfg,
		closed:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// OnChange registers a callback fired after each successful reload.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	w.fns = append(w.fns, fn)
	w.mu.Unlock()
}

func (w *Watcher) Close() {
	select {
	case <-w.closed:
		return
	default:
		close(w.closed)
	}
	w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.closed:
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != filepath.Base(w.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			// Debounce — editors fire several events per save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG: watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("CONFIG: reload skipped, %s invalid: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.cfg = cfg
	fns := make([]func(Config), len(w.fns))
	copy(fns, w.fns)
	w.mu.Unlock()

	log.Printf("CONFIG: reloaded %s", w.path)
	for _, fn := range fns {
		fn(cfg)
	}
}
