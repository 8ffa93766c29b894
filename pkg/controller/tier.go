package controller

import (
	"fmt"

	"github.com/solariscontrol/solaris/pkg/types"
)

// Tier is a battery-health band. Lower values are more severe.
type Tier int

const (
	TierCritical Tier = iota + 1
	TierVeryLow
	TierLow
	// TierGeneral is the "below 40%" conservative guideline. Classify never
	// returns it; it is reported through Classification.Conservative instead.
	TierGeneral
	TierHealthy
	TierNormal
)

// Battery thresholds in percent.
const (
	CriticalBelow     = 10
	VeryLowBelow      = 20
	LowMin            = 30
	LowMax            = 50
	HealthyMin        = 60
	HealthyMax        = 70
	ConservativeBelow = 40
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "CRITICAL"
	case TierVeryLow:
		return "VERY_LOW"
	case TierLow:
		return "LOW"
	case TierGeneral:
		return "GENERAL"
	case TierHealthy:
		return "HEALTHY"
	case TierNormal:
		return "NORMAL"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= TierCritical && t <= TierNormal
}

// Cap is the maximum number of switches the tier allows on.
func (t Tier) Cap() int {
	switch t {
	case TierCritical:
		return 0
	case TierVeryLow:
		return 1
	case TierLow:
		return 2
	default:
		return types.NumSwitches
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown tier: %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) (Tier, error) {
	for t := TierCritical; t <= TierNormal; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, types.InvalidInput("tier", "unknown tier %q", s)
}

// Classification is the result of classifying a battery level.
type Classification struct {
	Level int  `json:"batteryLevel"`
	Tier  Tier `json:"tier"`
	Cap   int  `json:"cap"`
	// Conservative is set inside NORMAL when the level is below
	// ConservativeBelow. It biases the policy towards fewer switches but never
	// lowers Cap.
	Conservative bool `json:"conservative,omitempty"`
}

// tierBand is an inclusive range of battery levels.
type tierBand struct {
	min, max int
	tier     Tier
}

// tierBands are checked in priority order and the first match wins. Levels
// not covered by any band (20-29, 51-59, 71-100) are NORMAL.
var tierBands = []tierBand{
	{min: 0, max: CriticalBelow - 1, tier: TierCritical},
	{min: CriticalBelow, max: VeryLowBelow - 1, tier: TierVeryLow},
	{min: LowMin, max: LowMax, tier: TierLow},
	{min: HealthyMin, max: HealthyMax, tier: TierHealthy},
}

// Classify maps a battery percentage to its tier and switch cap. The level
// must already be within [0,100]; it is never clamped.
func Classify(batteryLevel int) (Classification, error) {
	if batteryLevel < types.MinBatteryLevel || batteryLevel > types.MaxBatteryLevel {
		return Classification{}, types.InvalidInput(
			"batteryLevel",
			"must be between %d and %d (got %d)",
			types.MinBatteryLevel, types.MaxBatteryLevel, batteryLevel,
		)
	}

	tier := TierNormal
	for _, b := range tierBands {
		if batteryLevel >= b.min && batteryLevel <= b.max {
			tier = b.tier
			break
		}
	}

	return Classification{
		Level:        batteryLevel,
		Tier:         tier,
		Cap:          tier.Cap(),
		Conservative: tier == TierNormal && batteryLevel < ConservativeBelow,
	}, nil
}
