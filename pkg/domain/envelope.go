package domain

// Exit codes carried by the envelope.
const (
	ExitOK    = 200
	ExitFault = 500
)

// Generic texts shown on the handset. Internal details never reach it.
const (
	MenuServiceUnavailable = "Service unavailable"
	MenuServiceError       = "Service error. Please try again later."
	MenuScreenNotFound     = "Screen not found"
)

// Request is one inbound gateway event.
type Request struct {
	MSISDN      string `json:"msisdn"`
	SessionID   string `json:"sessionId"`
	ShortCode   string `json:"shortCode"`
	Input       string `json:"input"`
	NetworkName string `json:"networkName"`
	CountryName string `json:"countryName"`
	USSDNodeID  string `json:"ussdNodeId,omitempty"`
}

// Envelope is the response contract returned to the gateway for every event.
type Envelope struct {
	ShouldClose      bool   `json:"shouldClose"`
	USSDMenu         string `json:"ussdMenu"`
	ResponseExitCode int    `json:"responseExitCode"`
	ResponseMessage  string `json:"responseMessage"`
}

// Continue builds an envelope that keeps the session open.
func Continue(menu string) Envelope {
	return Envelope{USSDMenu: menu, ResponseExitCode: ExitOK}
}

// Close builds a successful envelope that ends the session.
func Close(menu string) Envelope {
	return Envelope{ShouldClose: true, USSDMenu: menu, ResponseExitCode: ExitOK}
}

// Fault builds a terminal error envelope.
func Fault(menu, message string) Envelope {
	return Envelope{
		ShouldClose:      true,
		USSDMenu:         menu,
		ResponseExitCode: ExitFault,
		ResponseMessage:  message,
	}
}

// IsFault reports whether the envelope carries the fault exit code.
func (e Envelope) IsFault() bool {
	return e.ResponseExitCode == ExitFault
}

// Ack acknowledges an end-of-session event.
type Ack struct {
	ResponseExitCode int    `json:"responseExitCode"`
	ResponseMessage  string `json:"responseMessage"`
}

// HandlerPhase tells a dynamic handler why it is invoked.
type HandlerPhase string

const (
	// PhaseInput is used when the user answered a dynamic screen.
	PhaseInput HandlerPhase = "input"
	// PhaseRender is used when a dynamic screen is being displayed.
	PhaseRender HandlerPhase = "render"
)

// HandlerContext is passed to dynamic handlers.
type HandlerContext struct {
	Phase  HandlerPhase
	Input  string
	Screen *Screen
	Flow   *Flow
}

// ScreenResult is what a dynamic handler returns.
// A result with USSDMenu or ShouldClose set is treated as a full envelope; otherwise
// Text is displayed as a continuing menu.
type ScreenResult struct {
	Text        string                `json:"text,omitempty" mapstructure:"text"`
	USSDMenu    string                `json:"ussdMenu,omitempty" mapstructure:"ussdMenu"`
	Options     map[string]MenuOption `json:"options,omitempty" mapstructure:"-"`
	Next        string                `json:"next,omitempty" mapstructure:"next"`
	ShouldClose *bool                 `json:"shouldClose,omitempty" mapstructure:"shouldClose"`
	Variables   map[string]any        `json:"variables,omitempty" mapstructure:"variables"`
}

// IsEnvelope reports whether the result should be returned as-is.
func (r *ScreenResult) IsEnvelope() bool {
	return r.USSDMenu != "" || r.ShouldClose != nil
}

// Closes reports the handler's close preference.
func (r *ScreenResult) Closes() bool {
	return r.ShouldClose != nil && *r.ShouldClose
}
