package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/engine"
)

// Watcher turns filesystem activity under the registry root into install
// events. A new component directory or a change inside an existing
// component's modifications/ directory both signal that new configuration
// may be available.
type Watcher struct {
	registry *FSRegistry
	logger   zerolog.Logger

	// debounce coalesces bursts of writes for the same component into one
	// event. Unpacking a component touches many files in quick succession.
	debounce time.Duration
}

// NewWatcher creates a watcher over the registry's root directory.
func NewWatcher(registry *FSRegistry, logger zerolog.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		logger:   logger.With().Str("component", "watcher").Logger(),
		debounce: 500 * time.Millisecond,
	}
}

// Watch emits install events until ctx is cancelled. The returned channel
// is closed when watching stops.
func (w *Watcher) Watch(ctx context.Context) (<-chan engine.InstallEvent, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if err := fsw.Add(w.registry.Root()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch registry root: %w", err)
	}
	// Watch existing component directories too; fsnotify is not recursive.
	components, err := w.registry.ActiveComponents(ctx)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, component := range components {
		w.addComponentWatch(fsw, component)
	}

	events := make(chan engine.InstallEvent)
	go w.run(ctx, fsw, events)
	return events, nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, events chan<- engine.InstallEvent) {
	defer close(events)
	defer func() { _ = fsw.Close() }()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			component := w.componentOf(ev.Name)
			if component == "" {
				continue
			}
			if ev.Op.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.registry.Root() {
				// New component directory: start watching inside it.
				w.addComponentWatch(fsw, component)
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename) {
				pending[component] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("filesystem watch error")

		case now := <-ticker.C:
			for component, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, component)
				event := engine.InstallEvent{
					Component: component,
					Scope:     engine.ScopeComponent,
					Time:      now,
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) addComponentWatch(fsw *fsnotify.Watcher, component string) {
	dir := filepath.Join(w.registry.Root(), component, modificationsDir)
	if err := fsw.Add(dir); err != nil {
		// The modifications directory may not exist yet; the root watch
		// still catches its later creation.
		w.logger.Debug().Err(err).Str("dir", dir).Msg("modifications directory not watchable yet")
	}
	if err := fsw.Add(filepath.Join(w.registry.Root(), component)); err != nil {
		w.logger.Debug().Err(err).Str("dir", component).Msg("component directory not watchable")
	}
}

// componentOf maps a path inside the registry root to its component id.
func (w *Watcher) componentOf(path string) string {
	rel, err := filepath.Rel(w.registry.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 || parts[0] == "." || strings.HasPrefix(parts[0], ".") {
		return ""
	}
	return parts[0]
}
