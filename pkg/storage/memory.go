package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/solariscontrol/solaris/pkg/types"
)

// MemoryProvider keeps everything in process memory. It is used for local
// development and tests; nothing survives a restart.
type MemoryProvider struct {
	mu        sync.Mutex
	values    map[string]json.RawMessage
	watchers  map[string]map[chan Snapshot]struct{}
	telemetry []types.Telemetry
	decisions []types.DecisionRecord
	closed    bool
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		values:   make(map[string]json.RawMessage),
		watchers: make(map[string]map[chan Snapshot]struct{}),
	}
}

func (m *MemoryProvider) Get(ctx context.Context, path string, dst any) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	m.mu.Lock()
	v, ok := m.values[path]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

func (m *MemoryProvider) Set(ctx context.Context, path string, value any) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory provider closed")
	}
	m.values[path] = b
	for ch := range m.watchers[path] {
		// watchers only care about the latest value so drop a stale one
		select {
		case <-ch:
		default:
		}
		ch <- Snapshot{Path: path, Value: b}
	}
	return nil
}

func (m *MemoryProvider) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("memory provider closed")
	}
	if m.watchers[path] == nil {
		m.watchers[path] = make(map[chan Snapshot]struct{})
	}
	m.watchers[path][ch] = struct{}{}
	ch <- Snapshot{Path: path, Value: m.values[path]}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[path][ch]; ok {
			delete(m.watchers[path], ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (m *MemoryProvider) InsertTelemetry(ctx context.Context, sample types.Telemetry) error {
	if sample.Timestamp.IsZero() {
		return fmt.Errorf("telemetry missing timestamp")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// replace a sample with the same timestamp like the document stores do
	i := sort.Search(len(m.telemetry), func(i int) bool {
		return !m.telemetry[i].Timestamp.Before(sample.Timestamp)
	})
	if i < len(m.telemetry) && m.telemetry[i].Timestamp.Equal(sample.Timestamp) {
		m.telemetry[i] = sample
		return nil
	}
	m.telemetry = append(m.telemetry, types.Telemetry{})
	copy(m.telemetry[i+1:], m.telemetry[i:])
	m.telemetry[i] = sample
	return nil
}

func (m *MemoryProvider) GetTelemetryHistory(ctx context.Context, start, end time.Time) ([]types.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Telemetry
	for _, s := range m.telemetry {
		if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryProvider) GetLatestTelemetry(ctx context.Context) (*types.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.telemetry) == 0 {
		return nil, nil
	}
	latest := m.telemetry[len(m.telemetry)-1]
	return &latest, nil
}

func (m *MemoryProvider) InsertDecision(ctx context.Context, record types.DecisionRecord) error {
	if record.Timestamp.IsZero() {
		return fmt.Errorf("decision missing timestamp")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, record)
	sort.SliceStable(m.decisions, func(i, j int) bool {
		return m.decisions[i].Timestamp.Before(m.decisions[j].Timestamp)
	})
	return nil
}

func (m *MemoryProvider) GetDecisionHistory(ctx context.Context, start, end time.Time) ([]types.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.DecisionRecord
	for _, d := range m.decisions {
		if !d.Timestamp.Before(start) && d.Timestamp.Before(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Close closes every open watch channel.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for path, chans := range m.watchers {
		for ch := range chans {
			close(ch)
		}
		delete(m.watchers, path)
	}
	return nil
}
