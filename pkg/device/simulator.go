package device

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// DefaultSimulatorStart is the reading a simulator starts from.
var DefaultSimulatorStart = types.Telemetry{
	Voltage:          230.5,
	Current:          5.2,
	BatteryLevel:     85,
	PowerConsumption: 1198.6,
	Temperature:      25.5,
	Humidity:         60,
	TotalConsumption: 1234.5,
	EnergyRemain:     45.2,
}

// Simulator is an in-process installation whose readings drift randomly.
// The battery drains faster the more switches are on and slowly charges when
// everything is off.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	state    types.Telemetry
	battery  float64
	switches [types.NumSwitches]bool
}

// configuredSimulator sets up the simulator.
// It registers flags for configuration.
func configuredSimulator() *Simulator {
	start := DefaultSimulatorStart
	lflag.JSON(&start, "simulator-start", start, "JSON telemetry reading the simulator starts from")

	s := &Simulator{now: time.Now}

	lflag.Do(func() {
		s.reset(start, uint64(time.Now().UnixNano()))
	})

	return s
}

// NewSimulator returns a Simulator starting at the given reading. The same
// seed always produces the same sequence.
func NewSimulator(start types.Telemetry, seed uint64) *Simulator {
	s := &Simulator{now: time.Now}
	s.reset(start, seed)
	return s
}

func (s *Simulator) reset(start types.Telemetry, seed uint64) {
	s.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	s.state = start
	s.battery = float64(start.BatteryLevel)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Step advances the simulation by one tick and stamps the reading with ts.
func (s *Simulator) Step(ts time.Time) types.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	on := 0
	for _, v := range s.switches {
		if v {
			on++
		}
	}

	st := s.state
	st.Timestamp = ts.UTC()
	st.Voltage = round(math.Max(0, st.Voltage+(s.rng.Float64()-0.5)*2), 1)
	st.Current = round(math.Max(0, st.Current+(s.rng.Float64()-0.5)*0.5), 1)
	st.PowerConsumption = round(st.Voltage*st.Current, 1)
	st.Temperature = round(st.Temperature+(s.rng.Float64()-0.5)*0.5, 1)
	st.Humidity = clamp(math.Round(st.Humidity+(s.rng.Float64()-0.5)), 0, 100)
	st.TotalConsumption = round(st.TotalConsumption+s.rng.Float64()*0.1*float64(on+1), 2)

	if on == 0 {
		s.battery += s.rng.Float64() * 0.2
	} else {
		s.battery -= s.rng.Float64() * 0.1 * float64(on)
	}
	s.battery = clamp(s.battery, types.MinBatteryLevel, types.MaxBatteryLevel)
	st.BatteryLevel = int(math.Round(s.battery))
	st.EnergyRemain = round(math.Max(0, st.EnergyRemain-s.rng.Float64()*0.05*float64(on)), 2)

	s.state = st
	return st
}

// Telemetry advances the simulation and returns the new reading.
func (s *Simulator) Telemetry(ctx context.Context) (types.Telemetry, error) {
	return s.Step(s.now()), nil
}

// SetSwitches records the states so later readings reflect the load.
func (s *Simulator) SetSwitches(ctx context.Context, states []types.SwitchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if !st.ID.Valid() {
			return types.InvalidInput("id", "unknown switch id %d", st.ID)
		}
	}
	for _, st := range states {
		s.switches[st.ID.Index()] = st.State
	}
	log.Ctx(ctx).DebugContext(ctx, "simulator switches updated", slog.Any("switches", s.switches))
	return nil
}

// Switches returns the state last set for every switch.
func (s *Simulator) Switches() [types.NumSwitches]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches
}

func (s *Simulator) Close() error {
	return nil
}
