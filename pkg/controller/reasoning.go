package controller

import (
	"fmt"
	"strings"
)

func ruleText(cls Classification) string {
	switch cls.Tier {
	case TierCritical:
		return fmt.Sprintf("CRITICAL rule: battery is below %d%%, so every switch is off to protect the battery. This overrides all preferences.", CriticalBelow)
	case TierVeryLow:
		return fmt.Sprintf("VERY_LOW rule: battery is between %d%% and %d%%, so only %d essential switch may be on.", CriticalBelow, VeryLowBelow, cls.Cap)
	case TierLow:
		return fmt.Sprintf("LOW rule: battery is between %d%% and %d%%, so at most %d switches may be on.", LowMin, LowMax, cls.Cap)
	case TierHealthy:
		return fmt.Sprintf("HEALTHY rule: battery is between %d%% and %d%%, so all switches may be on, optimized for the stated preferences.", HealthyMin, HealthyMax)
	case TierGeneral:
		return fmt.Sprintf("GENERAL guideline: battery is below %d%%, so non-essential switches stay off.", ConservativeBelow)
	default:
		text := "NORMAL rule: switches follow the stated preferences and usage patterns."
		if cls.Conservative {
			text += fmt.Sprintf(" GENERAL guideline applies below %d%%, so non-essential switches stay off.", ConservativeBelow)
		}
		return text
	}
}

func (c *Controller) name(s switchScore) string {
	return c.switches[s.id.Index()].Name
}

func (c *Controller) reasoning(cls Classification, selected, excluded []switchScore, fallback bool) string {
	parts := []string{ruleText(cls)}
	if cls.Tier == TierCritical || cls.Cap == 0 {
		return parts[0]
	}

	if fallback {
		parts = append(parts, "No preference or usage pattern mentioned a switch, so the default order (lowest switch first) was used.")
	}

	if len(selected) == 0 {
		parts = append(parts, "No switch was turned on.")
	} else {
		var names, signals []string
		for _, s := range selected {
			names = append(names, c.name(s))
			for _, e := range s.evidence {
				if e.delta > 0 {
					signals = append(signals, fmt.Sprintf("%s matched %s %q", c.name(s), e.source, e.text))
				}
			}
		}
		parts = append(parts, fmt.Sprintf("Turned on %s.", strings.Join(names, ", ")))
		if len(signals) > 0 {
			parts = append(parts, strings.Join(signals, "; ")+".")
		}
	}

	for _, s := range excluded {
		e := s.evidence[0]
		for _, ev := range s.evidence {
			if ev.delta < 0 {
				e = ev
				break
			}
		}
		parts = append(parts, fmt.Sprintf("%s kept off as requested (%s %q).", c.name(s), e.source, e.text))
	}
	return strings.Join(parts, " ")
}
