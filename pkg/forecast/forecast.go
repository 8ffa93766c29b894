package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/types"
)

// ErrNoHistory is returned when there is no telemetry to forecast from.
var ErrNoHistory = errors.New("no telemetry history")

// Provider predicts usage for the next period from past telemetry.
type Provider interface {
	Forecast(ctx context.Context, history []types.Telemetry) (types.Forecast, error)
}

// Configured sets up the forecast providers and returns a Map.
func Configured() *Map {
	window := lflag.Duration("forecast-history-window", 7*24*time.Hour, "How much telemetry history is given to the forecast provider")

	m := NewMap()
	m.SetProvider(ModelProviderName, NewModel())
	remote := configuredRemote()

	lflag.Do(func() {
		m.window = *window
		if remote.url != "" {
			m.SetProvider(RemoteProviderName, remote)
		}
	})
	return m
}

// Map holds the available forecast providers by name.
type Map struct {
	mu        sync.Mutex
	window    time.Duration
	providers map[string]Provider
}

// NewMap creates an empty Map with a one week history window.
func NewMap() *Map {
	return &Map{
		window:    7 * 24 * time.Hour,
		providers: make(map[string]Provider),
	}
}

// HistoryWindow is how far back the history passed to a provider reaches.
func (m *Map) HistoryWindow() time.Duration {
	return m.window
}

// Provider returns the provider selected in the settings.
func (m *Map) Provider(settings types.Settings) (Provider, error) {
	name := settings.ForecastProvider
	if name == "" {
		name = types.DefaultForecastProvider
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown forecast provider: %s", name)
	}
	return p, nil
}

// Names lists the configured providers in alphabetical order.
func (m *Map) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetProvider registers a provider under a name, replacing any existing one.
func (m *Map) SetProvider(name string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = p
}
