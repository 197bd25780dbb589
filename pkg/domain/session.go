package domain

import "time"

// Reserved session variables seeded on session start.
const (
	VarMSISDN      = "msisdn"
	VarSessionID   = "sessionId"
	VarShortCode   = "shortCode"
	VarNetworkName = "networkName"
	VarCountryName = "countryName"
)

// Session is the persisted record of one USSD conversation.
// The executor only ever holds a transient copy; the session store owns the record.
type Session struct {
	ID                  string         `json:"id"`
	Flow                string         `json:"flow,omitempty"`
	StartTime           time.Time      `json:"startTime"`
	LastInteractionTime time.Time      `json:"lastInteractionTime"`
	CurrentScreen       string         `json:"currentScreen"`
	NavHistory          []string       `json:"navHistory"`
	Variables           map[string]any `json:"variables"`

	// PendingOptions are menu options returned by a dynamic handler on the last render.
	// They are cleared whenever CurrentScreen changes.
	PendingOptions map[string]MenuOption `json:"pendingOptions,omitempty"`
}

// NewSession creates a fresh record positioned on the welcome screen.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:                  id,
		StartTime:           now,
		LastInteractionTime: now,
		CurrentScreen:       WelcomeScreen,
		NavHistory:          []string{WelcomeScreen},
		Variables:           make(map[string]any),
	}
}

// Duration returns how long the session has been alive at t.
func (s *Session) Duration(t time.Time) time.Duration {
	return t.Sub(s.StartTime)
}

// Clone returns a copy that can be mutated without affecting s.
// Variable values are copied shallowly.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.NavHistory = append([]string(nil), s.NavHistory...)
	next.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	if s.PendingOptions != nil {
		next.PendingOptions = make(map[string]MenuOption, len(s.PendingOptions))
		for k, v := range s.PendingOptions {
			next.PendingOptions[k] = v
		}
	}
	return &next
}
