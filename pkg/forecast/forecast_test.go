package forecast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solariscontrol/solaris/pkg/types"
)

func testModel(now time.Time) *Model {
	m := NewModel()
	m.Location = time.UTC
	m.now = func() time.Time { return now }
	return m
}

// dayOfReadings returns one reading per hour for the given number of days
// with the load returned by watts.
func dayOfReadings(start time.Time, days int, watts func(hour int) float64) []types.Telemetry {
	var out []types.Telemetry
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h++ {
			out = append(out, types.Telemetry{
				Timestamp:        start.Add(time.Duration(d*24+h) * time.Hour),
				PowerConsumption: watts(h),
				BatteryLevel:     60,
			})
		}
	}
	return out
}

func TestModel(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(72 * time.Hour)

	t.Run("NoHistory", func(t *testing.T) {
		_, err := testModel(now).Forecast(ctx, nil)
		assert.ErrorIs(t, err, ErrNoHistory)
	})

	t.Run("ConstantLoad", func(t *testing.T) {
		history := dayOfReadings(start, 2, func(int) float64 { return 500 })
		f, err := testModel(now).Forecast(ctx, history)
		require.NoError(t, err)
		assert.InDelta(t, 12.0, f.PredictedUsage, 0.001)
		assert.Zero(t, f.ConfidenceInterval)
		assert.Equal(t, "Usage is steady throughout the day.", f.UsagePatternSummary)
		assert.Equal(t, ModelProviderName, f.Provider)
		assert.True(t, f.GeneratedAt.Equal(now))
		assert.NoError(t, f.Validate())
	})

	t.Run("EveningPeak", func(t *testing.T) {
		history := dayOfReadings(start, 3, func(h int) float64 {
			switch {
			case h >= 17:
				return 2000
			case h >= 12:
				return 100
			default:
				return 400
			}
		})
		f, err := testModel(now).Forecast(ctx, history)
		require.NoError(t, err)
		assert.Equal(t, "High usage in evenings, low during midday.", f.UsagePatternSummary)
		// 7*2000 + 5*100 + 12*400 Wh
		assert.InDelta(t, 19.3, f.PredictedUsage, 0.001)
		assert.Contains(t, f.Analysis, "72 readings")
	})

	t.Run("OutlierIgnored", func(t *testing.T) {
		history := dayOfReadings(start, 3, func(int) float64 { return 100 })
		history[5].PowerConsumption = 5000
		f, err := testModel(now).Forecast(ctx, history)
		require.NoError(t, err)
		assert.InDelta(t, 2.4, f.PredictedUsage, 0.001)
	})

	t.Run("MissingHoursUseAverage", func(t *testing.T) {
		history := []types.Telemetry{
			{Timestamp: start.Add(8 * time.Hour), PowerConsumption: 300},
			{Timestamp: start.Add(20 * time.Hour), PowerConsumption: 500},
		}
		f, err := testModel(now).Forecast(ctx, history)
		require.NoError(t, err)
		// 300 + 500 + 22 * 400
		assert.InDelta(t, 9.6, f.PredictedUsage, 0.001)
		assert.Equal(t, "High usage in evenings, low in mornings.", f.UsagePatternSummary)
	})

	t.Run("Spread", func(t *testing.T) {
		history := dayOfReadings(start, 2, func(int) float64 { return 400 })
		for i := 24; i < 48; i++ {
			history[i].PowerConsumption = 600
		}
		f, err := testModel(now).Forecast(ctx, history)
		require.NoError(t, err)
		assert.InDelta(t, 12.0, f.PredictedUsage, 0.001)
		assert.Greater(t, f.ConfidenceInterval, 0.0)
	})
}

func TestMap(t *testing.T) {
	m := NewMap()
	assert.Equal(t, 7*24*time.Hour, m.HistoryWindow())

	_, err := m.Provider(types.Settings{})
	assert.Error(t, err)

	model := NewModel()
	m.SetProvider(ModelProviderName, model)
	p, err := m.Provider(types.Settings{})
	require.NoError(t, err)
	assert.Same(t, model, p)

	_, err = m.Provider(types.Settings{ForecastProvider: "crystal-ball"})
	assert.ErrorContains(t, err, "unknown forecast provider")

	m.SetProvider(RemoteProviderName, NewRemote("http://localhost", "m", http.DefaultClient))
	assert.Equal(t, []string{ModelProviderName, RemoteProviderName}, m.Names())
}

func TestRemote(t *testing.T) {
	ctx := context.Background()
	history := []types.Telemetry{
		{Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), PowerConsumption: 250, BatteryLevel: 70},
	}

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req remoteRequest
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
				return
			}
			assert.Equal(t, "energy_consumption_v1", req.ModelName)
			var got []types.Telemetry
			assert.NoError(t, json.Unmarshal([]byte(req.HistoricalData), &got))
			assert.Len(t, got, 1)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"predictedConsumption":4.2,"confidenceInterval":0.3,"analysis":"evening peak","userUsagePatterns":"Switch 3 runs every evening"}`))
		}))
		defer server.Close()

		r := NewRemote(server.URL, "energy_consumption_v1", server.Client())
		require.NoError(t, r.Validate())
		f, err := r.Forecast(ctx, history)
		require.NoError(t, err)
		assert.Equal(t, 4.2, f.PredictedUsage)
		assert.Equal(t, "Switch 3 runs every evening", f.UsagePatternSummary)
		assert.Equal(t, RemoteProviderName, f.Provider)
		assert.False(t, f.GeneratedAt.IsZero())
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model offline", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewRemote(server.URL, "m", server.Client()).Forecast(ctx, history)
		assert.ErrorContains(t, err, "503")
		assert.ErrorContains(t, err, "model offline")
	})

	t.Run("InvalidForecast", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"predictedConsumption":-1}`))
		}))
		defer server.Close()

		_, err := NewRemote(server.URL, "m", server.Client()).Forecast(ctx, history)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("NoHistory", func(t *testing.T) {
		_, err := NewRemote("http://127.0.0.1:1", "m", http.DefaultClient).Forecast(ctx, nil)
		assert.ErrorIs(t, err, ErrNoHistory)
	})

	t.Run("Validate", func(t *testing.T) {
		assert.Error(t, NewRemote("ftp://example.com", "m", nil).Validate())
		assert.NoError(t, NewRemote("https://example.com/predict", "m", nil).Validate())
	})
}
