package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// ErrNoTelemetry is returned when the system has not reported a reading yet.
var ErrNoTelemetry = errors.New("no telemetry available")

// System is the installation's hardware: the sensors reporting telemetry and
// the relays behind the five switches.
type System interface {
	// Telemetry returns the newest reading from the installation.
	Telemetry(ctx context.Context) (types.Telemetry, error)

	// SetSwitches pushes the given switch states to the relays.
	SetSwitches(ctx context.Context, states []types.SwitchState) error

	// Lifecycle
	Close() error
}

// Configured sets up the device system based on flags.
func Configured() System {
	provider := lflag.String("device-provider", "none", "Device system to use (available: mqtt, simulator, none)")

	var p struct{ System }

	m := configuredMQTT()
	s := configuredSimulator()

	lflag.Do(func() {
		switch *provider {
		case "mqtt":
			p.System = m
			if err := m.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("mqtt init failed: %v", err))
			}
		case "simulator":
			p.System = s
		case "none":
			p.System = None{}
		default:
			panic(fmt.Sprintf("unknown device provider: %s", *provider))
		}
	})

	return &p
}

// None is used when devices post telemetry over HTTP and nothing listens for
// switch changes.
type None struct{}

func (None) Telemetry(ctx context.Context) (types.Telemetry, error) {
	return types.Telemetry{}, ErrNoTelemetry
}

func (None) SetSwitches(ctx context.Context, states []types.SwitchState) error {
	log.Ctx(ctx).DebugContext(ctx, "no device system, not pushing switch states", slog.Int("switches", len(states)))
	return nil
}

func (None) Close() error {
	return nil
}
