package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

func TestHandleUpdate(t *testing.T) {
	update := func(srv *Server) updateResponse {
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/update", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp updateResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp
	}

	t.Run("Stores Device Telemetry Without Auto Apply", func(t *testing.T) {
		srv, db, dev := newTestServer(t)
		require.NoError(t, storage.SetSettings(t.Context(), db, namedSettings()))
		sample := testSample(45)
		sample.Timestamp = testNow
		dev.sample = &sample

		resp := update(srv)
		assert.Equal(t, "success", resp.Status)
		require.NotNil(t, resp.Telemetry)
		assert.Nil(t, resp.Decision)

		latest, err := db.GetLatestTelemetry(t.Context())
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, 45, latest.BatteryLevel)
	})

	t.Run("Auto Apply", func(t *testing.T) {
		srv, db, dev := newTestServer(t)
		settings := namedSettings()
		settings.AutoApply = true
		require.NoError(t, storage.SetSettings(t.Context(), db, settings))
		sample := testSample(15)
		sample.Timestamp = testNow
		dev.sample = &sample

		resp := update(srv)
		assert.Equal(t, "success", resp.Status)
		require.NotNil(t, resp.Decision)
		assert.Equal(t, "VERY_LOW", resp.Decision.Tier)
		assert.True(t, resp.Decision.Applied)
		// the heater is preferred
		assert.Equal(t, [types.NumSwitches]bool{false, false, true, false, false}, storedStates(t, db))
	})

	t.Run("Paused", func(t *testing.T) {
		srv, db, _ := newTestServer(t)
		settings := namedSettings()
		settings.AutoApply = true
		settings.Pause = true
		require.NoError(t, storage.SetSettings(t.Context(), db, settings))
		require.NoError(t, db.InsertTelemetry(t.Context(), testSample(90)))

		resp := update(srv)
		assert.Equal(t, "paused", resp.Status)
		assert.Nil(t, resp.Decision)
		assert.Equal(t, [types.NumSwitches]bool{}, storedStates(t, db))
	})

	t.Run("No Telemetry", func(t *testing.T) {
		srv, db, _ := newTestServer(t)
		settings := namedSettings()
		settings.AutoApply = true
		require.NoError(t, storage.SetSettings(t.Context(), db, settings))

		resp := update(srv)
		assert.Equal(t, "no telemetry", resp.Status)
	})

	t.Run("Invalid Device Reading Skipped", func(t *testing.T) {
		srv, db, dev := newTestServer(t)
		sample := testSample(101)
		dev.sample = &sample

		resp := update(srv)
		assert.Equal(t, "success", resp.Status)
		assert.Nil(t, resp.Telemetry)
		latest, err := db.GetLatestTelemetry(t.Context())
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("Device Error Skipped", func(t *testing.T) {
		srv, _, dev := newTestServer(t)
		dev.err = errors.New("offline")

		resp := update(srv)
		assert.Equal(t, "success", resp.Status)
		assert.Nil(t, resp.Telemetry)
	})

	t.Run("Counts Switch Updates", func(t *testing.T) {
		srv, db, _ := newTestServer(t)
		settings := namedSettings()
		settings.AutoApply = true
		require.NoError(t, storage.SetSettings(t.Context(), db, settings))
		require.NoError(t, db.InsertTelemetry(t.Context(), testSample(90)))

		update(srv)

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `solaris_switch_updates_total{source="`+metrics.SourceUpdate+`"} 5`)
		assert.Contains(t, w.Body.String(), `solaris_decisions_total{fallback="false",tier="NORMAL"} 1`)
	})
}
