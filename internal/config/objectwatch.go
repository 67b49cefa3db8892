package config

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/filestore"
	"github.com/koustreak/userfed/internal/logger"
)

// DefaultPollInterval is how often ObjectWatcher checks the object's ETag.
const DefaultPollInterval = 15 * time.Second

// maxObjectSize caps how much of a configuration object is read.
const maxObjectSize = 1 << 20

// ObjectWatcher reloads a configuration document kept in an object store.
// A change is detected by comparing the object's ETag between polls.
type ObjectWatcher struct {
	store    filestore.Store
	loc      filestore.Location
	onChange ReloadFunc
	interval time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	lastETag string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewObjectWatcher polls loc through store every interval. A non-positive
// interval means DefaultPollInterval.
func NewObjectWatcher(store filestore.Store, loc filestore.Location, interval time.Duration, onChange ReloadFunc, log *logger.Logger) *ObjectWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logger.Global()
	}
	return &ObjectWatcher{
		store:    store,
		loc:      loc,
		onChange: onChange,
		interval: interval,
		log:      log.With().Str("component", "config_object_watcher").Str("object", loc.String()).Logger(),
	}
}

// Fetch downloads and decodes the object once, remembering its ETag so the
// next poll only reloads on a newer version.
func (w *ObjectWatcher) Fetch(ctx context.Context) (*Config, error) {
	obj, err := w.store.GetObject(ctx, w.loc)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectSize+1))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionUnavailable, "read config object", err)
	}
	if len(data) > maxObjectSize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "config object %s exceeds %d bytes", w.loc, maxObjectSize)
	}

	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.lastETag = obj.Info().ETag
	w.mu.Unlock()
	return cfg, nil
}

// Start polls in a background goroutine until Stop is called.
func (w *ObjectWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

func (w *ObjectWatcher) poll(ctx context.Context) {
	info, err := w.store.StatObject(ctx, w.loc)
	if err != nil {
		if ctx.Err() == nil {
			w.log.ErrorWith("config object stat failed", err, nil)
		}
		return
	}

	w.mu.Lock()
	unchanged := info.ETag == w.lastETag
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := w.Fetch(ctx)
	if err != nil {
		w.log.ErrorWith("config object reload skipped", err, nil)
		return
	}
	if err := w.onChange(cfg); err != nil {
		w.log.ErrorWith("config object reload rejected", err, map[string]any{"etag": info.ETag})
		return
	}
	w.log.InfoWith("config reloaded", map[string]any{"etag": info.ETag})
}

// Stop ends polling and waits for the background goroutine.
func (w *ObjectWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
