package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// conservativeFallbackCap bounds the default ordering when the GENERAL
// guideline applies and no text signal picked any switch.
const conservativeFallbackCap = 2

// Decision is the recommended state of every switch plus a justification.
type Decision struct {
	Tier      Tier                    `json:"tier"`
	Cap       int                     `json:"cap"`
	States    [types.NumSwitches]bool `json:"switchStates"`
	Reasoning string                  `json:"reasoning"`
	// Fallback is set when neither the preferences nor the usage patterns
	// referred to any switch and the default order was used.
	Fallback bool `json:"fallback"`
}

// On returns the recommended state of a single switch.
func (d Decision) On(id types.SwitchID) bool {
	if !id.Valid() {
		return false
	}
	return d.States[id.Index()]
}

// OnCount returns how many switches are recommended on.
func (d Decision) OnCount() int {
	n := 0
	for _, on := range d.States {
		if on {
			n++
		}
	}
	return n
}

// SwitchStates returns the decision keyed by switch id. Every id is present.
func (d Decision) SwitchStates() map[types.SwitchID]bool {
	m := make(map[types.SwitchID]bool, types.NumSwitches)
	for _, id := range types.SwitchIDs {
		m[id] = d.States[id.Index()]
	}
	return m
}

// Controller turns a battery classification and free-form text into switch
// recommendations. It holds only the switch catalogue, which is never
// modified, so it is safe for concurrent use.
type Controller struct {
	switches [types.NumSwitches]types.Switch
	terms    [types.NumSwitches][][]string
}

// NewController creates a Controller for the given switch catalogue. A nil
// catalogue uses types.DefaultSwitches.
func NewController(switches []types.Switch) (*Controller, error) {
	if switches == nil {
		switches = types.DefaultSwitches()
	}
	if err := types.ValidateSwitches(switches); err != nil {
		return nil, err
	}
	c := &Controller{}
	for _, sw := range switches {
		c.switches[sw.ID.Index()] = sw
		c.terms[sw.ID.Index()] = switchTerms(sw)
	}
	return c, nil
}

// Decide selects which switches to turn on for the classification. At most
// cls.Cap switches are turned on and CRITICAL always turns everything off.
// Empty preference and pattern text is not an error: the switches are taken
// in ascending id order and the Decision is marked as a fallback.
func (c *Controller) Decide(ctx context.Context, cls Classification, preferenceText, usagePatternText string) (Decision, error) {
	if !cls.Tier.Valid() {
		return Decision{}, types.InvalidInput("tier", "unknown tier %d", int(cls.Tier))
	}
	if cls.Cap < 0 || cls.Cap > cls.Tier.Cap() {
		return Decision{}, types.InvalidInput("cap", "must be between 0 and %d for %s (got %d)", cls.Tier.Cap(), cls.Tier, cls.Cap)
	}

	d := Decision{
		Tier: cls.Tier,
		Cap:  cls.Cap,
	}
	if cls.Tier == TierCritical || cls.Cap == 0 {
		d.Reasoning = c.reasoning(cls, nil, nil, false)
		log.Ctx(ctx).DebugContext(ctx, "critical battery, all switches off", slog.String("tier", cls.Tier.String()))
		return d, nil
	}

	scores := scoreSwitches(c.terms, preferenceText, usagePatternText)

	var anySignal, anyPositive bool
	for _, s := range scores {
		if len(s.evidence) > 0 {
			anySignal = true
		}
		if s.score > 0 {
			anyPositive = true
		}
	}
	conservative := cls.Conservative || cls.Tier == TierGeneral

	ranked := scores[:]
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	limit := cls.Cap
	if !anySignal {
		d.Fallback = true
		if conservative {
			limit = min(limit, conservativeFallbackCap)
		}
	}

	var selected, excluded []switchScore
	for _, s := range ranked {
		switch {
		case s.score < 0:
			excluded = append(excluded, s)
		case conservative && anyPositive && s.score == 0:
			// GENERAL guideline: only switches the user asked for
		case len(selected) < limit:
			selected = append(selected, s)
		}
	}
	for _, s := range selected {
		d.States[s.id.Index()] = true
	}
	d.Reasoning = c.reasoning(cls, selected, excluded, d.Fallback)

	log.Ctx(ctx).DebugContext(
		ctx,
		"switch policy decided",
		slog.String("tier", cls.Tier.String()),
		slog.Int("cap", cls.Cap),
		slog.Int("on", d.OnCount()),
		slog.Bool("fallback", d.Fallback),
		slog.Bool("conservative", conservative),
	)
	return d, nil
}

// Recommend validates a telemetry sample, classifies its battery level and
// decides the switch states using the stored preferences and the forecast's
// usage pattern. A nil forecast is treated as an empty usage pattern.
func (c *Controller) Recommend(ctx context.Context, sample types.Telemetry, forecast *types.Forecast, preferences string) (Decision, error) {
	if err := sample.Validate(); err != nil {
		return Decision{}, err
	}
	var pattern string
	if forecast != nil {
		if err := forecast.Validate(); err != nil {
			return Decision{}, err
		}
		pattern = forecast.UsagePatternSummary
	}

	cls, err := Classify(sample.BatteryLevel)
	if err != nil {
		return Decision{}, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"battery classified",
		slog.Int("batteryLevel", sample.BatteryLevel),
		slog.Float64("voltage", sample.Voltage),
		slog.Float64("current", sample.Current),
		slog.Float64("power", sample.PowerConsumption),
		slog.String("tier", cls.Tier.String()),
	)

	d, err := c.Decide(ctx, cls, preferences, pattern)
	if err != nil {
		return Decision{}, err
	}
	d.Reasoning = fmt.Sprintf("Battery at %d%%. %s", sample.BatteryLevel, d.Reasoning)
	if forecast != nil {
		d.Reasoning += fmt.Sprintf(" Predicted usage for the next period is %.2f units.", forecast.PredictedUsage)
	}
	return d, nil
}
