package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

// MockDatabase is a testify mock of storage.Database. Get decodes the value
// passed as the first return argument into dst.
type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) Get(ctx context.Context, path string, dst any) error {
	args := m.Called(ctx, path, dst)
	if fn, ok := args.Get(0).(func(any)); ok {
		fn(dst)
	}
	return args.Error(1)
}

func (m *MockDatabase) Set(ctx context.Context, path string, value any) error {
	args := m.Called(ctx, path, value)
	return args.Error(0)
}

func (m *MockDatabase) Watch(ctx context.Context, path string) (<-chan storage.Snapshot, error) {
	args := m.Called(ctx, path)
	if ch, ok := args.Get(0).(chan storage.Snapshot); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) InsertTelemetry(ctx context.Context, sample types.Telemetry) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockDatabase) GetTelemetryHistory(ctx context.Context, start, end time.Time) ([]types.Telemetry, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.Telemetry), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestTelemetry(ctx context.Context) (*types.Telemetry, error) {
	args := m.Called(ctx)
	val := args.Get(0)
	if val == nil {
		return nil, args.Error(1)
	}
	return val.(*types.Telemetry), args.Error(1)
}

func (m *MockDatabase) InsertDecision(ctx context.Context, record types.DecisionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDatabase) GetDecisionHistory(ctx context.Context, start, end time.Time) ([]types.DecisionRecord, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.DecisionRecord), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
