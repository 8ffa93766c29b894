package types

import "time"

// DecisionRecord is a stored switch recommendation together with the inputs
// that produced it.
type DecisionRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Telemetry   Telemetry `json:"telemetry"`
	Forecast    *Forecast `json:"forecast,omitempty"`
	Preferences string    `json:"preferences"`

	Tier      string            `json:"tier"`
	Cap       int               `json:"cap"`
	States    [NumSwitches]bool `json:"switchStates"`
	Reasoning string            `json:"reasoning"`
	// Fallback is set when no preference or pattern text influenced the
	// choice and the default ordering was used.
	Fallback bool `json:"fallback,omitempty"`

	Applied bool   `json:"applied,omitempty"`
	DryRun  bool   `json:"dryRun,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}
