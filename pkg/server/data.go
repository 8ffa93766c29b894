package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// maxDataBody limits the size of a device telemetry post.
const maxDataBody = 64 << 10

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

	ok, err := s.checkAPIKey(r)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to check api key", slog.Any("error", err))
		writeJSONError(w, "failed to check api key", http.StatusInternalServerError)
		return
	}
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "invalid device api key")
		writeJSONError(w, "device api key is invalid or missing", http.StatusUnauthorized)
		return
	}

	var sample types.Telemetry
	r.Body = http.MaxBytesReader(w, r.Body, maxDataBody)
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode telemetry", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := sample.Validate(); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid telemetry", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// the device clock is not trusted
	sample.Timestamp = s.now().UTC()

	if err := s.storage.InsertTelemetry(ctx, sample); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store telemetry", slog.Any("error", err))
		writeJSONError(w, "failed to store telemetry", http.StatusInternalServerError)
		return
	}
	s.metrics.Telemetry("api", sample.BatteryLevel)

	log.Ctx(ctx).DebugContext(ctx, "stored telemetry", slog.Int("batteryLevel", sample.BatteryLevel))
	writeJSON(w, map[string]string{"message": "data received"})
}

func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sample, err := s.storage.GetLatestTelemetry(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest telemetry", slog.Any("error", err))
		writeJSONError(w, "failed to get telemetry", http.StatusInternalServerError)
		return
	}
	if sample == nil {
		writeJSONError(w, "no telemetry", http.StatusNotFound)
		return
	}
	writeJSON(w, sample)
}
