package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, DefaultSwitches(), s.Switches)
		assert.Equal(t, DefaultPreferences, s.Preferences)
		assert.Equal(t, DefaultForecastProvider, s.ForecastProvider)
	})

	t.Run("v1: keeps user switches and preferences", func(t *testing.T) {
		old := Settings{
			Preferences: "fridge first",
			Switches: []Switch{
				{ID: 1, Name: "Fridge"},
			},
		}
		s, changed, err := MigrateSettings(old, 0)
		require.NoError(t, err)
		assert.True(t, changed, "forecast provider should still be defaulted")
		assert.Equal(t, "fridge first", s.Preferences)
		assert.Equal(t, old.Switches, s.Switches)
	})

	t.Run("v1 to v2: forecast provider", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{ForecastProvider: ""}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "model", s.ForecastProvider)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := Settings{
			Preferences:      "anything",
			Switches:         DefaultSwitches(),
			ForecastProvider: "remote",
		}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}

func TestSwitchName(t *testing.T) {
	s := Settings{Switches: []Switch{{ID: 2, Name: "Fridge"}}}
	assert.Equal(t, "Fridge", s.SwitchName(2))
	assert.Equal(t, "Switch 4", s.SwitchName(4))
}
