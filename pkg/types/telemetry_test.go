package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryValidate(t *testing.T) {
	valid := Telemetry{
		Voltage:          230.5,
		Current:          5.2,
		BatteryLevel:     85,
		PowerConsumption: 1198.6,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		mod   func(*Telemetry)
		field string
	}{
		{"negative voltage", func(t *Telemetry) { t.Voltage = -1 }, "voltage"},
		{"NaN current", func(t *Telemetry) { t.Current = math.NaN() }, "current"},
		{"infinite power", func(t *Telemetry) { t.PowerConsumption = math.Inf(1) }, "power"},
		{"battery below 0", func(t *Telemetry) { t.BatteryLevel = -1 }, "batteryLevel"},
		{"battery above 100", func(t *Telemetry) { t.BatteryLevel = 101 }, "batteryLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample := valid
			tt.mod(&sample)
			err := sample.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}

	t.Run("battery bounds are inclusive", func(t *testing.T) {
		sample := valid
		sample.BatteryLevel = 0
		assert.NoError(t, sample.Validate())
		sample.BatteryLevel = 100
		assert.NoError(t, sample.Validate())
	})
}

func TestForecastValidate(t *testing.T) {
	assert.NoError(t, Forecast{PredictedUsage: 0}.Validate())
	assert.NoError(t, Forecast{PredictedUsage: 12.5, ConfidenceInterval: 1.2}.Validate())
	assert.ErrorIs(t, Forecast{PredictedUsage: -1}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, Forecast{PredictedUsage: math.NaN()}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, Forecast{PredictedUsage: 1, ConfidenceInterval: -2}.Validate(), ErrInvalidInput)
}

func TestValidateSwitches(t *testing.T) {
	require.NoError(t, ValidateSwitches(DefaultSwitches()))

	short := DefaultSwitches()[:4]
	assert.ErrorIs(t, ValidateSwitches(short), ErrInvalidInput)

	dup := DefaultSwitches()
	dup[4].ID = 1
	assert.ErrorIs(t, ValidateSwitches(dup), ErrInvalidInput)

	unnamed := DefaultSwitches()
	unnamed[2].Name = "  "
	assert.ErrorIs(t, ValidateSwitches(unnamed), ErrInvalidInput)

	badID := DefaultSwitches()
	badID[0].ID = 9
	assert.ErrorIs(t, ValidateSwitches(badID), ErrInvalidInput)
}
