package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/solariscontrol/solaris/pkg/controller"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

var errNoTelemetry = errors.New("no telemetry available")

// optimize recommends switch states for the latest telemetry and records the
// decision. When apply is set the states are written to the store unless the
// settings are in dry run.
func (s *Server) optimize(ctx context.Context, settings types.Settings, preferences string, apply bool, source string) (types.DecisionRecord, error) {
	s.optimizeMu.Lock()
	defer s.optimizeMu.Unlock()

	latest, err := s.storage.GetLatestTelemetry(ctx)
	if err != nil {
		return types.DecisionRecord{}, fmt.Errorf("failed to get latest telemetry: %w", err)
	}
	if latest == nil {
		return types.DecisionRecord{}, errNoTelemetry
	}

	ctrl, err := controller.NewController(settings.Switches)
	if err != nil {
		return types.DecisionRecord{}, fmt.Errorf("invalid switch catalogue: %w", err)
	}

	// a missing forecast only means there is no usage pattern to consider
	var fc *types.Forecast
	if f, err := s.forecast(ctx, settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "forecast unavailable for optimize", slog.Any("error", err))
	} else {
		fc = &f
	}

	decision, err := ctrl.Recommend(ctx, *latest, fc, preferences)
	if err != nil {
		return types.DecisionRecord{}, fmt.Errorf("failed to recommend: %w", err)
	}
	s.metrics.Decision(decision.Tier.String(), decision.Fallback)

	rec := types.DecisionRecord{
		Timestamp:   s.now().UTC(),
		Telemetry:   *latest,
		Forecast:    fc,
		Preferences: preferences,
		Tier:        decision.Tier.String(),
		Cap:         decision.Cap,
		States:      decision.States,
		Reasoning:   decision.Reasoning,
		Fallback:    decision.Fallback,
	}
	if apply {
		if settings.DryRun {
			rec.DryRun = true
		} else if err := s.writeSwitchStates(ctx, settings, decision.States, source); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to apply switch states", slog.Any("error", err))
			rec.Failed = true
			rec.Error = err.Error()
		} else {
			rec.Applied = true
		}
	}

	if err := s.storage.InsertDecision(ctx, rec); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store decision", slog.Any("error", err))
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"switch recommendation",
		slog.String("tier", rec.Tier),
		slog.Int("cap", rec.Cap),
		slog.Int("on", decision.OnCount()),
		slog.Bool("fallback", rec.Fallback),
		slog.Bool("applied", rec.Applied),
		slog.String("source", source),
	)
	return rec, nil
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}

	var req struct {
		Preferences *string `json:"preferences"`
		Apply       bool    `json:"apply"`
	}
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}
	preferences := settings.Preferences
	if req.Preferences != nil {
		preferences = *req.Preferences
	}

	rec, err := s.optimize(ctx, settings, preferences, req.Apply || settings.AutoApply, metrics.SourceOptimize)
	switch {
	case err == nil:
	case errors.Is(err, errNoTelemetry):
		writeJSONError(w, "no telemetry has been received yet", http.StatusConflict)
		return
	case errors.Is(err, types.ErrInvalidInput):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	default:
		log.Ctx(ctx).ErrorContext(ctx, "failed to optimize", slog.Any("error", err))
		writeJSONError(w, "failed to optimize", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}
