package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// ErrDefinitionNotFound is returned when a timeline id is not in the catalog.
var ErrDefinitionNotFound = errors.New("timeline definition not found")

const reloadDebounce = 250 * time.Millisecond

// Catalog holds the loaded timeline definitions by id. Reloads replace the
// whole set at once; instances already running keep the definition they
// were started with.
type Catalog struct {
	mu     sync.RWMutex
	defs   map[string]*timeline.Definition
	binder ActionBinder
	log    zerolog.Logger
}

// NewCatalog creates an empty catalog that binds actions with binder.
func NewCatalog(binder ActionBinder, logger zerolog.Logger) *Catalog {
	return &Catalog{
		defs:   make(map[string]*timeline.Definition),
		binder: binder,
		log:    logger,
	}
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*timeline.Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// IDs returns the loaded timeline ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.defs))
}

// Len returns the number of loaded definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Put adds or replaces a single definition.
func (c *Catalog) Put(def *timeline.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.ID()] = def
}

// LoadDir loads every timeline file in dir and swaps the result in. Files
// that fail to load are skipped and reported as catalog.error events; the
// returned error is only for an unreadable directory.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read timeline dir: %w", err)
	}

	next := make(map[string]*timeline.Definition)
	sources := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !IsTimelineFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := LoadDefinitionFile(path, c.binder)
		if err != nil {
			c.reportError(path, err)
			continue
		}
		if prev, dup := sources[def.ID()]; dup {
			c.reportError(path, fmt.Errorf("duplicate timeline id %s (already loaded from %s)", def.ID(), prev))
			continue
		}
		sources[def.ID()] = path
		next[def.ID()] = def
	}

	c.mu.Lock()
	c.defs = next
	c.mu.Unlock()

	c.log.Info().Str("dir", dir).Int("timelines", len(next)).Msg("timeline catalog loaded")
	events.Emit("info", "catalog.loaded", "", map[string]interface{}{
		"dir":       dir,
		"timelines": slices.Sorted(maps.Keys(next)),
	})
	return len(next), nil
}

func (c *Catalog) reportError(path string, err error) {
	c.log.Warn().Err(err).Str("file", path).Msg("timeline file skipped")
	events.Emit("error", "catalog.error", err.Error(), map[string]interface{}{
		"file": path,
	})
}

// Watch reloads dir whenever a timeline file in it changes. It blocks until
// ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := c.LoadDir(dir); err != nil {
				c.reportError(dir, err)
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !IsTimelineFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("timeline change detected")
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Str("dir", dir).Msg("timeline watch error")
		}
	}
}
