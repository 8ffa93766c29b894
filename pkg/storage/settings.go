package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

type settingsRecord struct {
	Version  int            `json:"version"`
	Settings types.Settings `json:"settings"`
}

// GetSettings reads the settings and migrates them to the current version.
// Missing settings are migrated from the zero value, so a new installation
// gets the defaults.
func GetSettings(ctx context.Context, s Store) (types.Settings, error) {
	var rec settingsRecord
	if err := s.Get(ctx, SettingsPath, &rec); err != nil && !errors.Is(err, ErrNotFound) {
		return types.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	settings, migrated, err := types.MigrateSettings(rec.Settings, rec.Version)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to migrate settings: %w", err)
	}
	if migrated {
		log.Ctx(ctx).DebugContext(
			ctx,
			"migrated settings",
			slog.Int("from", rec.Version),
			slog.Int("to", types.CurrentSettingsVersion),
		)
	}
	return settings, nil
}

// SetSettings stores the settings at the current version.
func SetSettings(ctx context.Context, s Store, settings types.Settings) error {
	rec := settingsRecord{
		Version:  types.CurrentSettingsVersion,
		Settings: settings,
	}
	if err := s.Set(ctx, SettingsPath, rec); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSwitchStates returns the stored state of every switch. Switches that
// were never set are off and named from the settings.
func GetSwitchStates(ctx context.Context, s Store, settings types.Settings) ([types.NumSwitches]types.SwitchState, error) {
	var states [types.NumSwitches]types.SwitchState
	for _, id := range types.SwitchIDs {
		state := types.SwitchState{ID: id}
		err := s.Get(ctx, SwitchStatePath(id), &state)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return states, fmt.Errorf("failed to get switch %d: %w", id, err)
		}
		state.ID = id
		state.Name = settings.SwitchName(id)
		states[id.Index()] = state
	}
	return states, nil
}

// SetSwitchState stores the state of a single switch.
func SetSwitchState(ctx context.Context, s Store, state types.SwitchState) error {
	if !state.ID.Valid() {
		return types.InvalidInput("id", "unknown switch id %d", state.ID)
	}
	if err := s.Set(ctx, SwitchStatePath(state.ID), state); err != nil {
		return fmt.Errorf("failed to save switch %d: %w", state.ID, err)
	}
	return nil
}
