package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

// maxPreferencesLength bounds the free-form preference text.
const maxPreferencesLength = 2000

// SettingsRes is the response type for GetSettings
type SettingsRes struct {
	types.Settings
	ForecastProviders []string `json:"forecastProviders"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, SettingsRes{
		Settings:          settings,
		ForecastProviders: s.forecasts.Names(),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}

	var newSettings types.Settings
	if err := json.NewDecoder(r.Body).Decode(&newSettings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode settings", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(newSettings.Preferences) > maxPreferencesLength {
		writeJSONError(w, fmt.Sprintf("preferences cannot be longer than %d characters", maxPreferencesLength), http.StatusBadRequest)
		return
	}
	for i := range newSettings.Switches {
		newSettings.Switches[i].Name = strings.TrimSpace(newSettings.Switches[i].Name)
	}
	if err := types.ValidateSwitches(newSettings.Switches); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if newSettings.ForecastProvider == "" {
		newSettings.ForecastProvider = types.DefaultForecastProvider
	}
	if _, err := s.forecasts.Provider(newSettings); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid forecast provider: %v", err), http.StatusBadRequest)
		return
	}

	if err := storage.SetSettings(ctx, s.storage, newSettings); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save settings", slog.Any("error", err))
		writeJSONError(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "settings updated", slog.String("email", s.getUser(r).Email))
	writeJSON(w, newSettings)
}
