package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/controller"
	"github.com/solariscontrol/solaris/pkg/device"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	seedInterval := lflag.Duration("seed-interval", 15*time.Minute, "Time between seeded telemetry samples")
	lflag.Configure()
	interval := *seedInterval

	ctx := context.Background()
	defer s.Close()
	fatal := func(msg string, err error) {
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
		// os.Exit skips the deferred close
		s.Close()
		os.Exit(1)
	}
	if interval <= 0 {
		fatal("invalid seed-interval", fmt.Errorf("must be positive: %s", interval))
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	settings, err := storage.GetSettings(ctx, s)
	if err != nil {
		fatal("failed to get settings", err)
	}
	if err := storage.SetSettings(ctx, s, settings); err != nil {
		fatal("failed to seed settings", err)
	}

	c, err := controller.NewController(settings.Switches)
	if err != nil {
		fatal("failed to create controller", err)
	}

	now := time.Now().UTC()
	start := now.Add(-24 * time.Hour).Truncate(interval)
	sim := device.NewSimulator(device.DefaultSimulatorStart, uint64(now.UnixNano()))

	var last controller.Decision
	for t := start; t.Before(now); t = t.Add(interval) {
		sample := sim.Step(t)
		if err := s.InsertTelemetry(ctx, sample); err != nil {
			fatal("failed to seed telemetry", err)
		}

		// re-decide hourly so the battery reacts to the load
		if t.Minute() != 0 && t != start {
			continue
		}
		last, err = c.Recommend(ctx, sample, nil, settings.Preferences)
		if err != nil {
			fatal("failed to recommend", err)
		}
		if err := sim.SetSwitches(ctx, switchStates(settings, last.States)); err != nil {
			fatal("failed to set simulator switches", err)
		}
		rec := types.DecisionRecord{
			Timestamp:   t,
			Telemetry:   sample,
			Preferences: settings.Preferences,
			Tier:        last.Tier.String(),
			Cap:         last.Cap,
			States:      last.States,
			Reasoning:   last.Reasoning,
			Fallback:    last.Fallback,
			Applied:     true,
		}
		if err := s.InsertDecision(ctx, rec); err != nil {
			fatal("failed to seed decision", err)
		}
		fmt.Printf("Seeded decision at %s: %s (battery %d%%, %d switches on)\n",
			t.Format(time.Kitchen), rec.Tier, sample.BatteryLevel, last.OnCount())
	}

	for _, st := range switchStates(settings, last.States) {
		if err := storage.SetSwitchState(ctx, s, st); err != nil {
			fatal("failed to seed switch state", err)
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}

func switchStates(settings types.Settings, on [types.NumSwitches]bool) []types.SwitchState {
	states := make([]types.SwitchState, 0, types.NumSwitches)
	for i, v := range on {
		id := types.SwitchID(i + 1)
		states = append(states, types.SwitchState{ID: id, Name: settings.SwitchName(id), State: v})
	}
	return states
}
