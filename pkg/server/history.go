package server

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// maxHistoryRange bounds a single history request.
const maxHistoryRange = 7 * 24 * time.Hour

var telemetryCSVHeader = []string{
	"timestamp",
	"voltage",
	"current",
	"batteryLevel",
	"power",
	"temperature",
	"humidity",
	"totalConsumption",
	"energyRemain",
}

func (s *Server) handleHistoryTelemetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := s.parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	samples, err := s.storage.GetTelemetryHistory(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get telemetry history", slog.Any("error", err))
		writeJSONError(w, "failed to get telemetry history", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []types.Telemetry{}
	}

	s.setHistoryCache(w, end)
	if r.URL.Query().Get("format") == "csv" {
		writeTelemetryCSV(w, samples, fmt.Sprintf("telemetry-%s.csv", start.UTC().Format("20060102T150405Z")))
		return
	}
	writeJSON(w, samples)
}

func (s *Server) handleHistoryDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := s.parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.storage.GetDecisionHistory(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get decision history", slog.Any("error", err))
		writeJSONError(w, "failed to get decision history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.DecisionRecord{}
	}

	s.setHistoryCache(w, end)
	writeJSON(w, records)
}

// setHistoryCache lets ranges that ended before today be cached for a day.
func (s *Server) setHistoryCache(w http.ResponseWriter, end time.Time) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

func writeTelemetryCSV(w http.ResponseWriter, samples []types.Telemetry, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	formatFloat := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(telemetryCSVHeader); err != nil {
		panic(http.ErrAbortHandler)
	}
	for _, sample := range samples {
		row := []string{
			sample.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(sample.Voltage),
			formatFloat(sample.Current),
			strconv.Itoa(sample.BatteryLevel),
			formatFloat(sample.PowerConsumption),
			formatFloat(sample.Temperature),
			formatFloat(sample.Humidity),
			formatFloat(sample.TotalConsumption),
			formatFloat(sample.EnergyRemain),
		}
		if err := cw.Write(row); err != nil {
			panic(http.ErrAbortHandler)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// parseTimeRange reads the start and end query parameters. Without both it
// defaults to the last 24 hours.
func (s *Server) parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		end := s.now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed %s", maxHistoryRange)
	}

	return start, end, nil
}
