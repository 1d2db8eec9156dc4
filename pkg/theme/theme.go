package theme

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Theme is the persisted color scheme token.
type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"
)

// StorageKey is the preference key the theme is stored under.
const StorageKey = "theme"

func Parse(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case Dark, Light:
		return t, nil
	default:
		return "", errors.Errorf("unknown theme %q (expected dark or light)", s)
	}
}

func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

func (t Theme) IsDark() bool {
	return t == Dark
}

// Manager owns the process-wide theme. It is read once from the store at
// startup and written back on every change.
type Manager struct {
	mu      sync.Mutex
	store   Store
	current Theme
}

// Load reads the stored theme. Anything other than "dark" resolves to light.
// The resolved token is written back so the store always holds a valid value.
func Load(ctx context.Context, store Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("theme store is nil")
	}
	v, ok, err := store.Get(ctx, StorageKey)
	if err != nil {
		return nil, errors.Wrap(err, "read theme preference")
	}
	current := Light
	if ok && Theme(v) == Dark {
		current = Dark
	}
	m := &Manager{store: store, current: current}
	if err := store.Set(ctx, StorageKey, string(current)); err != nil {
		return nil, errors.Wrap(err, "write theme preference")
	}
	log.Debug().Str("component", "theme").Str("theme", string(current)).Bool("stored", ok).Msg("theme loaded")
	return m, nil
}

func (m *Manager) Current() Theme {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Toggle flips the theme and persists it.
func (m *Manager) Toggle(ctx context.Context) (Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.current.Toggle()
	if err := m.store.Set(ctx, StorageKey, string(next)); err != nil {
		return m.current, errors.Wrap(err, "persist theme")
	}
	m.current = next
	return next, nil
}

func (m *Manager) Set(ctx context.Context, t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(ctx, StorageKey, string(t)); err != nil {
		return errors.Wrap(err, "persist theme")
	}
	m.current = t
	return nil
}
