package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/logger"
)

// DefaultDebounce collapses the burst of events an editor produces on save.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives every successfully decoded configuration.
type ReloadFunc func(*Config) error

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	file     string
	onChange ReloadFunc
	debounce time.Duration
	log      *logger.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher watches file. The parent directory is watched rather than the
// file itself so atomic rename-on-save is picked up.
func NewWatcher(file string, onChange ReloadFunc, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Global()
	}
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "resolve config path", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "create file watcher", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "watch config directory", err)
	}

	return &Watcher{
		file:     absPath,
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      log.With().Str("component", "config_watcher").Str("file", absPath).Logger(),
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins delivering changes in a background goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if p, err := filepath.Abs(event.Name); err != nil || p != w.file {
				continue
			}
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.ErrorWith("file watch error", err, nil)

		case <-w.done:
			timer.Stop()
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.file)
	if err != nil {
		w.log.ErrorWith("config reload skipped", err, nil)
		return
	}
	if err := w.onChange(cfg); err != nil {
		w.log.ErrorWith("config reload rejected", err, nil)
		return
	}
	w.log.Info("config reloaded")
}

// Stop ends the watch and waits for the background goroutine to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
