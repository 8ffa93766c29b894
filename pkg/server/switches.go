package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

// maxWatchRetry bounds the delay between attempts to watch a switch again.
const maxWatchRetry = 30 * time.Second

func (s *Server) handleGetSwitches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}
	states, err := storage.GetSwitchStates(ctx, s.storage, settings)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get switch states", slog.Any("error", err))
		writeJSONError(w, "failed to get switch states", http.StatusInternalServerError)
		return
	}
	writeJSON(w, states[:])
}

func (s *Server) handleSetSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireAdmin(w, r) {
		return
	}

	var req struct {
		ID    types.SwitchID `json:"id"`
		State *bool          `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.ID.Valid() {
		writeJSONError(w, fmt.Sprintf("unknown switch id %d", req.ID), http.StatusBadRequest)
		return
	}
	if req.State == nil {
		writeJSONError(w, "state is required", http.StatusBadRequest)
		return
	}

	settings, err := storage.GetSettings(ctx, s.storage)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}
	state := types.SwitchState{
		ID:    req.ID,
		Name:  settings.SwitchName(req.ID),
		State: *req.State,
	}
	if err := storage.SetSwitchState(ctx, s.storage, state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set switch state", slog.Any("error", err))
		writeJSONError(w, "failed to set switch state", http.StatusInternalServerError)
		return
	}
	s.metrics.SwitchUpdate(metrics.SourceUser, 1)

	log.Ctx(ctx).InfoContext(
		ctx,
		"switch toggled",
		slog.Int("id", int(state.ID)),
		slog.Bool("state", state.State),
		slog.String("email", s.getUser(r).Email),
	)
	writeJSON(w, state)
}

// writeSwitchStates stores every switch state of a decision. The switch
// watcher forwards the writes to the device.
func (s *Server) writeSwitchStates(ctx context.Context, settings types.Settings, states [types.NumSwitches]bool, source string) error {
	var errs []error
	var written int
	for _, id := range types.SwitchIDs {
		state := types.SwitchState{
			ID:    id,
			Name:  settings.SwitchName(id),
			State: states[id.Index()],
		}
		if err := storage.SetSwitchState(ctx, s.storage, state); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	s.metrics.SwitchUpdate(source, written)
	return errors.Join(errs...)
}

// watchSwitches forwards every stored switch state change to the device
// system. A watch that ends while ctx is live is opened again with a growing
// delay. The returned channel is closed once all watches have ended.
func (s *Server) watchSwitches(ctx context.Context) (<-chan struct{}, error) {
	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, id := range types.SwitchIDs {
		ch, err := s.storage.Watch(ctx, storage.SwitchStatePath(id))
		if err != nil {
			return nil, fmt.Errorf("failed to watch switch %d: %w", id, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.forwardSwitch(ctx, id, ch)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done, nil
}

// forwardSwitch pushes the snapshots of one switch to the device until ctx is
// done, watching the switch again whenever its channel closes early.
func (s *Server) forwardSwitch(ctx context.Context, id types.SwitchID, ch <-chan storage.Snapshot) {
	minBackoff := s.watchRetry
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	backoff := minBackoff
	for {
		received := false
		for snap := range ch {
			received = true
			s.pushSwitch(ctx, id, snap)
		}
		if ctx.Err() != nil {
			return
		}
		if received {
			backoff = minBackoff
		}
		log.Ctx(ctx).WarnContext(ctx, "switch watch ended, watching again", slog.Int("id", int(id)), slog.Duration("backoff", backoff))

		for {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < maxWatchRetry {
				backoff *= 2
			}
			var err error
			ch, err = s.storage.Watch(ctx, storage.SwitchStatePath(id))
			if err == nil {
				break
			}
			log.Ctx(ctx).ErrorContext(ctx, "failed to watch switch", slog.Int("id", int(id)), slog.Any("error", err))
		}
	}
}

func (s *Server) pushSwitch(ctx context.Context, id types.SwitchID, snap storage.Snapshot) {
	if !snap.Exists() {
		return
	}
	var state types.SwitchState
	if err := snap.Decode(&state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode switch state", slog.Int("id", int(id)), slog.Any("error", err))
		return
	}
	state.ID = id
	if err := s.device.SetSwitches(ctx, []types.SwitchState{state}); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to push switch state to device", slog.Int("id", int(id)), slog.Any("error", err))
		return
	}
	log.Ctx(ctx).DebugContext(ctx, "pushed switch state to device", slog.Int("id", int(id)), slog.Bool("state", state.State))
}
