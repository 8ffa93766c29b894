package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solariscontrol/solaris/pkg/forecast"
	"github.com/solariscontrol/solaris/pkg/types"
)

func TestHandleForecast(t *testing.T) {
	t.Run("Uses History Window", func(t *testing.T) {
		srv, db, _ := newTestServer(t)
		mockF := &mockForecaster{}
		srv.forecasts.SetProvider(forecast.ModelProviderName, mockF)

		inside := testSample(50)
		require.NoError(t, db.InsertTelemetry(t.Context(), inside))
		outside := testSample(40)
		outside.Timestamp = testNow.Add(-8 * 24 * time.Hour)
		require.NoError(t, db.InsertTelemetry(t.Context(), outside))

		mockF.On("Forecast", mock.Anything, mock.MatchedBy(func(history []types.Telemetry) bool {
			return len(history) == 1 && history[0].BatteryLevel == 50
		})).Return(types.Forecast{
			PredictedUsage:      7.25,
			ConfidenceInterval:  0.5,
			UsagePatternSummary: "Usage is steady throughout the day.",
		}, nil).Once()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "private, max-age=300", w.Header().Get("Cache-Control"))

		var f types.Forecast
		require.NoError(t, json.NewDecoder(w.Body).Decode(&f))
		assert.Equal(t, 7.25, f.PredictedUsage)
		assert.Equal(t, "Usage is steady throughout the day.", f.UsagePatternSummary)
		mockF.AssertExpectations(t)
	})

	t.Run("Model Provider", func(t *testing.T) {
		srv, db, _ := newTestServer(t)
		for i := 0; i < 48; i++ {
			sample := testSample(70)
			sample.Timestamp = testNow.Add(-time.Duration(i+1) * time.Hour)
			require.NoError(t, db.InsertTelemetry(t.Context(), sample))
		}

		w := httptest.NewRecorder()
		srv.handleForecast(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var f types.Forecast
		require.NoError(t, json.NewDecoder(w.Body).Decode(&f))
		assert.Equal(t, forecast.ModelProviderName, f.Provider)
		assert.Greater(t, f.PredictedUsage, 0.0)
	})

	t.Run("No History", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		w := httptest.NewRecorder()
		srv.handleForecast(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Provider Error", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		mockF := &mockForecaster{}
		mockF.On("Forecast", mock.Anything, mock.Anything).Return(types.Forecast{}, errors.New("status 503")).Once()
		srv.forecasts.SetProvider(forecast.ModelProviderName, mockF)

		w := httptest.NewRecorder()
		srv.handleForecast(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
