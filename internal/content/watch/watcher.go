// Package watch reports changes to post files so the preview server can
// reload pages and `build --watch` can regenerate the site.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event types emitted to subscribers.
const (
	EventPostUpdated     = "postUpdated"
	EventMetadataUpdated = "metadataUpdated"
	EventDeleted         = "deleted"
)

// Event describes one change to a post file.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Path      string    `json:"path"`
}

// Watcher fans fsnotify events for a set of directories out to subscribers.
// Only .md and .json files produce events.
type Watcher struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	subscribers map[uint64]*subscriber
	subCounter  atomic.Uint64
	subsMu      sync.RWMutex
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

// New starts watching dirs. Directories that do not exist are an error.
func New(parentCtx context.Context, logger *slog.Logger, dirs ...string) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("at least one directory must be watched")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		if err := fw.Add(abs); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", abs, err)
		}
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w := &Watcher{
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "watcher"),
		watcher:     fw,
		subscribers: make(map[uint64]*subscriber),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and closes every subscriber channel.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// Subscribe registers for change events. The returned channel closes when ctx
// or the watcher is done. Slow subscribers miss events rather than block.
func (w *Watcher) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	id := w.subCounter.Add(1)

	w.subsMu.Lock()
	w.subscribers[id] = &subscriber{ctx: ctx, ch: ch}
	w.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.ctx.Done():
		}
		w.removeSubscriber(id)
	}()

	return ch
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt, ok := classify(event); ok {
				w.logger.Debug("content changed", slog.String("type", evt.Type), slog.String("path", evt.Path))
				w.broadcast(evt)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.Any("err", err))
		case <-w.ctx.Done():
			return
		}
	}
}

func classify(event fsnotify.Event) (Event, bool) {
	name := filepath.Base(event.Name)
	if name == "" || strings.HasPrefix(name, ".") {
		return Event{}, false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".md" && ext != ".json" {
		return Event{}, false
	}

	evt := Event{
		Timestamp: time.Now(),
		ID:        strings.TrimSuffix(name, filepath.Ext(name)),
		Path:      event.Name,
	}
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, err := os.Stat(event.Name); err == nil {
			// editors that save via rename leave the file in place
			evt.Type = updatedType(ext)
		} else {
			evt.Type = EventDeleted
		}
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		evt.Type = updatedType(ext)
	default:
		return Event{}, false
	}
	return evt, true
}

func updatedType(ext string) string {
	if ext == ".json" {
		return EventMetadataUpdated
	}
	return EventPostUpdated
}

func (w *Watcher) broadcast(evt Event) {
	w.subsMu.RLock()
	var stale []uint64
	for id, sub := range w.subscribers {
		select {
		case <-sub.ctx.Done():
			stale = append(stale, id)
		case <-w.ctx.Done():
			stale = append(stale, id)
		case sub.ch <- evt:
		default:
			// drop event when subscriber lags
		}
	}
	w.subsMu.RUnlock()

	for _, id := range stale {
		w.removeSubscriber(id)
	}
}

func (w *Watcher) removeSubscriber(id uint64) {
	w.subsMu.Lock()
	if sub, ok := w.subscribers[id]; ok {
		close(sub.ch)
		delete(w.subscribers, id)
	}
	w.subsMu.Unlock()
}
