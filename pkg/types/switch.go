package types

import (
	"fmt"
	"strings"
)

// NumSwitches is the number of relay-controlled switches on the installation.
const NumSwitches = 5

// SwitchID identifies one of the relays, 1 through NumSwitches.
type SwitchID int

// SwitchIDs is the fixed, ordered set of switch identifiers.
var SwitchIDs = [NumSwitches]SwitchID{1, 2, 3, 4, 5}

// Valid reports whether the id names one of the switches.
func (id SwitchID) Valid() bool {
	return id >= 1 && id <= NumSwitches
}

// Index is the zero-based position of the switch in state arrays.
func (id SwitchID) Index() int {
	return int(id) - 1
}

// Switch is the user-facing configuration of one relay.
type Switch struct {
	ID   SwitchID `json:"id"`
	Name string   `json:"name"`
	// Keywords are extra words (appliance or category) that refer to this
	// switch in free-form preference text, e.g. "fridge" or "lighting".
	Keywords []string `json:"keywords,omitempty"`
}

// SwitchState is the on/off state of one relay as stored under
// app/switchStates/{id}.
type SwitchState struct {
	ID    SwitchID `json:"id"`
	Name  string   `json:"name"`
	State bool     `json:"state"`
}

// DefaultSwitches returns the catalogue used before a user names their switches.
func DefaultSwitches() []Switch {
	switches := make([]Switch, 0, NumSwitches)
	for _, id := range SwitchIDs {
		switches = append(switches, Switch{
			ID:   id,
			Name: fmt.Sprintf("Switch %d", id),
		})
	}
	return switches
}

// ValidateSwitches checks that a catalogue has exactly one entry per switch and
// that every entry has a name.
func ValidateSwitches(switches []Switch) error {
	if len(switches) != NumSwitches {
		return InvalidInput("switches", "must contain exactly %d entries (got %d)", NumSwitches, len(switches))
	}
	var seen [NumSwitches]bool
	for _, s := range switches {
		if !s.ID.Valid() {
			return InvalidInput("switches", "unknown switch id %d", s.ID)
		}
		if seen[s.ID.Index()] {
			return InvalidInput("switches", "duplicate switch id %d", s.ID)
		}
		seen[s.ID.Index()] = true
		if strings.TrimSpace(s.Name) == "" {
			return InvalidInput("switches", "switch %d has an empty name", s.ID)
		}
	}
	return nil
}
