package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Flag is a named runtime toggle.
type Flag struct {
	Name        string
	Enabled     bool
	Description string
}

// Known flag names.
const (
	// ShuffleChoices randomizes answer order in GET /quiz responses.
	ShuffleChoices = "shuffle_choices"
	// StatsEndpoint serves GET /stats.
	StatsEndpoint = "stats_endpoint"
	// EventLog logs every domain event.
	EventLog = "event_log"
)

// Manager holds the flag set. It is safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]*Flag)}
}

// Defaults returns a manager with every known flag registered and enabled.
func Defaults() *Manager {
	m := NewManager()
	m.Register(ShuffleChoices, true, "shuffle quiz answer choices")
	m.Register(StatsEndpoint, true, "serve the running score endpoint")
	m.Register(EventLog, true, "log domain events")
	return m
}

// Register adds or replaces a flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &Flag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled reports whether name is registered and on. A nil manager
// treats every flag as on.
func (m *Manager) IsEnabled(name string) bool {
	if m == nil {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Set toggles a registered flag and reports whether it exists.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if exists {
		flag.Enabled = enabled
	}
	return exists
}

// Apply sets each flag in overrides. Unknown names are an error and leave
// no flag changed.
func (m *Manager) Apply(overrides map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range overrides {
		if _, exists := m.flags[name]; !exists {
			return fmt.Errorf("unknown feature flag %q", name)
		}
	}
	for name, enabled := range overrides {
		m.flags[name].Enabled = enabled
	}
	return nil
}

// All returns copies of every flag sorted by name.
func (m *Manager) All() []Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseList parses "name=bool,name=bool". A bare name means true.
func ParseList(s string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		name, value, hasValue := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		enabled := true
		if hasValue {
			b, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("feature %q: %w", name, err)
			}
			enabled = b
		}
		out[name] = enabled
	}
	return out, nil
}
