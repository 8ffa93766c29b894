package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/solariscontrol/solaris/pkg/forecast"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

// forecast runs the provider chosen in the settings over the configured
// history window.
func (s *Server) forecast(ctx context.Context, settings types.Settings) (types.Forecast, error) {
	provider, err := s.forecasts.Provider(settings)
	if err != nil {
		return types.Forecast{}, err
	}
	end := s.now()
	history, err := s.storage.GetTelemetryHistory(ctx, end.Add(-s.forecasts.HistoryWindow()), end)
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to get telemetry history: %w", err)
	}
	f, err := provider.Forecast(ctx, history)
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to forecast usage: %w", err)
	}
	return f, nil
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	f, err := s.forecast(ctx, settings)
	if err != nil {
		if errors.Is(err, forecast.ErrNoHistory) {
			writeJSONError(w, "no telemetry history to forecast from", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to forecast", slog.String("provider", settings.ForecastProvider), slog.Any("error", err))
		writeJSONError(w, "failed to forecast usage", http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	writeJSON(w, f)
}
