package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 2

// DefaultPreferences is the preference text a new installation starts with.
const DefaultPreferences = "Prioritize extending battery life and reducing cost. Only turn on essential appliances if battery is below 40%."

// DefaultForecastProvider names the forecast provider used when none is set.
const DefaultForecastProvider = "model"

// Settings represents the configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Record recommendations but never push them to the switches.
	DryRun bool `json:"dryRun"`
	// Pause scheduled updates
	Pause bool `json:"pause"`
	// Apply the recommendation from every scheduled update automatically.
	AutoApply bool `json:"autoApply"`

	// Free-form preference text considered by the switch policy.
	Preferences string `json:"preferences"`

	// Names and keywords of the five switches.
	Switches []Switch `json:"switches"`

	// Forecast provider to use (see forecast.Map)
	ForecastProvider string `json:"forecastProvider"`
}

// SwitchName returns the configured name of a switch, falling back to the
// default name.
func (s Settings) SwitchName(id SwitchID) string {
	for _, sw := range s.Switches {
		if sw.ID == id && sw.Name != "" {
			return sw.Name
		}
	}
	return fmt.Sprintf("Switch %d", id)
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			if len(s.Switches) == 0 {
				s.Switches = DefaultSwitches()
				migrated = true
			}
			if s.Preferences == "" {
				s.Preferences = DefaultPreferences
				migrated = true
			}
		case 2:
			// version 2: selectable forecast provider
			if s.ForecastProvider == "" {
				s.ForecastProvider = DefaultForecastProvider
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
