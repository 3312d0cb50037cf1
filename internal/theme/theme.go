// Package theme carries the reader's light/dark preference through a request.
//
// The preference is seeded once from a persistence medium (the theme cookie on
// the preview server, nothing during a static build), read anywhere below via
// FromContext, and changed only through State.Set.
package theme

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Theme is a colour scheme name.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"

	// Default applies when no valid preference has been stored.
	Default = Dark
)

// ErrInvalidTheme is returned by State.Set for values other than light or dark.
var ErrInvalidTheme = errors.New("invalid theme")

// Parse returns the theme named by s. Matching is exact.
func Parse(s string) (Theme, bool) {
	switch Theme(s) {
	case Light:
		return Light, true
	case Dark:
		return Dark, true
	default:
		return "", false
	}
}

func (t Theme) String() string { return string(t) }

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == Light {
		return Dark
	}
	return Light
}

// Store persists a theme choice. Load reports ok=false when nothing usable is
// stored.
type Store interface {
	Load() (string, bool)
	Save(Theme) error
}

// State is the current theme plus the store it is persisted to.
type State struct {
	store Store
	mu    sync.RWMutex
	value Theme
}

// Load seeds a State from store. An absent or invalid stored value yields
// Default, which is written back immediately. A nil store yields Default and
// persists nothing.
func Load(store Store) *State {
	s := &State{store: store, value: Default}
	if store == nil {
		return s
	}
	if raw, ok := store.Load(); ok {
		if t, valid := Parse(raw); valid {
			s.value = t
			return s
		}
	}
	_ = store.Save(Default)
	return s
}

// Get returns the current theme.
func (s *State) Get() Theme {
	if s == nil {
		return Default
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set validates next, updates the state and persists it. Persistence is best
// effort: a store failure is returned but the in-memory value still changes.
func (s *State) Set(next string) error {
	t, ok := Parse(next)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, next)
	}
	s.mu.Lock()
	s.value = t
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Save(t); err != nil {
		return fmt.Errorf("persist theme: %w", err)
	}
	return nil
}

type ctxKey struct{}

// WithState returns a child context carrying state.
func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, state)
}

// FromContext returns the state attached to ctx, or a default dark state with
// no store.
func FromContext(ctx context.Context) *State {
	if state, ok := ctx.Value(ctxKey{}).(*State); ok && state != nil {
		return state
	}
	return Load(nil)
}
