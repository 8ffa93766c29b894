package storage

import (
	"fmt"
	"strings"

	"github.com/solariscontrol/solaris/pkg/types"
)

const (
	SettingsPath     = "app/settings"
	SwitchStatesPath = "app/switchStates"
	APIKeyPath       = "app/apiKey"
)

// SwitchStatePath is where the state of a single switch is stored.
func SwitchStatePath(id types.SwitchID) string {
	return fmt.Sprintf("%s/%d", SwitchStatesPath, id)
}

// ValidatePath checks that every segment of path is non-empty and made of
// letters, digits, '-' or '_'.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return fmt.Errorf("%w: unexpected %q in %q", ErrInvalidPath, r, path)
			}
		}
	}
	return nil
}
