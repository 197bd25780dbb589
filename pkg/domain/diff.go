package domain

import (
	"reflect"
)

// SessionDiff represents the changes between two session snapshots.
// It is designed to be serialized to JSON for tooling such as the simulator.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"sessionId"`

	// CurrentScreen is set when the session moved.
	CurrentScreen *string `json:"currentScreen,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]any `json:"variables,omitempty"`

	// Visited contains the screens appended to the navigation history.
	Visited []string `json:"visited,omitempty"`
}

// Diff calculates the difference between old and new.
// If old is nil, it returns a diff representing the entire new session.
// It returns nil when nothing changed.
func Diff(old, new *Session) *SessionDiff {
	if new == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: new.ID}
	if old == nil || old.CurrentScreen != new.CurrentScreen {
		diff.CurrentScreen = &new.CurrentScreen
	}
	diff.Variables = diffVariables(old, new)
	diff.Visited = diffHistory(old, new)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(old, new *Session) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Variables {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Variables {
			if oldVal, exists := old.Variables[k]; !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
		for k := range old.Variables {
			if _, exists := new.Variables[k]; !exists {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory relies on the navigation history being append-only.
func diffHistory(old, new *Session) []string {
	if old == nil {
		if len(new.NavHistory) == 0 {
			return nil
		}
		return append([]string(nil), new.NavHistory...)
	}
	if len(new.NavHistory) > len(old.NavHistory) {
		return append([]string(nil), new.NavHistory[len(old.NavHistory):]...)
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentScreen == nil &&
		len(d.Variables) == 0 &&
		len(d.Visited) == 0
}
