package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/solariscontrol/solaris/pkg/device"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

type updateResponse struct {
	Status    string                `json:"status"`
	Telemetry *types.Telemetry      `json:"telemetry,omitempty"`
	Decision  *types.DecisionRecord `json:"decision,omitempty"`
}

// handleUpdate is called by a scheduler. It pulls telemetry from the device
// system and, with auto apply on, recommends and applies switch states.
// Everything short of a storage failure returns 200 so the scheduler does not
// retry.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}

	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	var resp updateResponse

	sample, err := s.device.Telemetry(ctx)
	switch {
	case errors.Is(err, device.ErrNoTelemetry):
		log.Ctx(ctx).DebugContext(ctx, "update: no device telemetry")
	case err != nil:
		log.Ctx(ctx).WarnContext(ctx, "update: failed to read device telemetry", slog.Any("error", err))
	default:
		if sample.Timestamp.IsZero() {
			sample.Timestamp = s.now().UTC()
		}
		if err := sample.Validate(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "update: invalid device telemetry", slog.Any("error", err))
			break
		}
		if err := s.storage.InsertTelemetry(ctx, sample); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store telemetry", slog.Any("error", err))
			writeJSONError(w, "failed to store telemetry", http.StatusInternalServerError)
			return
		}
		s.metrics.Telemetry("device", sample.BatteryLevel)
		resp.Telemetry = &sample
	}

	if settings.Pause {
		log.Ctx(ctx).InfoContext(ctx, "update: paused")
		resp.Status = "paused"
		writeJSON(w, resp)
		return
	}
	if !settings.AutoApply {
		resp.Status = "success"
		writeJSON(w, resp)
		return
	}

	rec, err := s.optimize(ctx, settings, settings.Preferences, true, metrics.SourceUpdate)
	switch {
	case err == nil:
		resp.Status = "success"
		resp.Decision = &rec
	case errors.Is(err, errNoTelemetry):
		log.Ctx(ctx).InfoContext(ctx, "update: no telemetry to optimize")
		resp.Status = "no telemetry"
	case errors.Is(err, types.ErrInvalidInput):
		log.Ctx(ctx).WarnContext(ctx, "update: cannot optimize", slog.Any("error", err))
		resp.Status = "invalid telemetry"
	default:
		log.Ctx(ctx).ErrorContext(ctx, "update: failed to optimize", slog.Any("error", err))
		writeJSONError(w, "failed to optimize", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}
