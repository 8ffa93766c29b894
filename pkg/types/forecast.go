package types

import (
	"math"
	"time"
)

// Forecast is the output of a usage prediction for the next period.
type Forecast struct {
	// PredictedUsage is the expected consumption for the forecast window in kWh.
	PredictedUsage float64 `json:"predictedConsumption"`
	// ConfidenceInterval is the +/- spread around PredictedUsage.
	ConfidenceInterval float64 `json:"confidenceInterval"`
	// Analysis is a short explanation of what drove the prediction.
	Analysis string `json:"analysis"`
	// UsagePatternSummary describes typical habits, e.g. "High usage in
	// evenings, low during midday". It may be empty.
	UsagePatternSummary string    `json:"userUsagePatterns"`
	Provider            string    `json:"provider,omitempty"`
	GeneratedAt         time.Time `json:"generatedAt"`
}

// Validate checks the forecast can be consumed by the controller.
func (f Forecast) Validate() error {
	if math.IsNaN(f.PredictedUsage) || math.IsInf(f.PredictedUsage, 0) {
		return InvalidInput("predictedConsumption", "must be a finite number")
	}
	if f.PredictedUsage < 0 {
		return InvalidInput("predictedConsumption", "must not be negative (got %v)", f.PredictedUsage)
	}
	if math.IsNaN(f.ConfidenceInterval) || f.ConfidenceInterval < 0 {
		return InvalidInput("confidenceInterval", "must be a non-negative number")
	}
	return nil
}
