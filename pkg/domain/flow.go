package domain

// WelcomeScreen is the entry screen of every flow and the universal fallback target.
const WelcomeScreen = "welcome"

// ScreenType values recognized by the executor.
const (
	ScreenMenu         = "menu"
	ScreenInput        = "input"
	ScreenDynamic      = "dynamic"
	ScreenRouter       = "router"
	ScreenNotification = "notification"
)

// Flow is a loaded, validated flow definition.
// It is never mutated after loading; a reload swaps in a new value.
type Flow struct {
	// Name is the registry key (the document's base file name).
	Name      string
	AppName   string
	Version   string
	ShortCode string
	Screens   map[string]*Screen
}

// Screen returns the screen with the given id.
func (f *Flow) Screen(id string) (*Screen, bool) {
	if f == nil {
		return nil, false
	}
	s, ok := f.Screens[id]
	return s, ok
}

// HasScreen reports whether id names a screen of the flow.
func (f *Flow) HasScreen(id string) bool {
	_, ok := f.Screen(id)
	return ok
}

// Screen is one state of the session state machine.
type Screen struct {
	ID   string
	Type string

	// Text is a template with {{var}} placeholders. Optional for router and dynamic screens.
	Text string

	// Store, when set, persists the user's input (or a literal map) before the transition.
	Store *StoreDirective

	ShouldClose bool

	// Body carries the type-specific configuration.
	Body ScreenBody
}

// ScreenBody is the tagged union of screen variants.
type ScreenBody interface {
	screenBody()
}

// Menu selects the next screen by exact option key.
type Menu struct {
	Options map[string]MenuOption
	Default *Target
}

// MenuOption is one selectable entry of a menu.
type MenuOption struct {
	Next  Target          `json:"next"`
	Store *StoreDirective `json:"store,omitempty"`
}

// Input accepts free text, optionally checked by a named validator.
type Input struct {
	Validator string
	Next      Target
}

// Dynamic delegates rendering and input handling to a named handler.
type Dynamic struct {
	Handler string
	Next    *Target
}

// Router picks the first route whose condition holds.
type Router struct {
	Routes  []Route
	Default *Target
}

// Route is a guarded transition of a router screen.
type Route struct {
	Condition Expression
	Next      Target
}

// Notification displays text and always closes the session.
type Notification struct{}

// Passthrough is the body of screens with an unrecognized type.
type Passthrough struct {
	Next *Target
}

func (Menu) screenBody()         {}
func (Input) screenBody()        {}
func (Dynamic) screenBody()      {}
func (Router) screenBody()       {}
func (Notification) screenBody() {}
func (Passthrough) screenBody()  {}

// StoreDirective describes what a screen persists into session variables.
// Exactly one of Variable or Values is set.
type StoreDirective struct {
	// Variable stores the raw input under this name.
	Variable string `json:"variable,omitempty"`
	// Values are stored verbatim; the input is discarded.
	Values map[string]any `json:"values,omitempty"`
}

// Apply returns the variables this directive writes for the given input.
func (d *StoreDirective) Apply(input string) map[string]any {
	if d == nil {
		return nil
	}
	if d.Variable != "" {
		return map[string]any{d.Variable: input}
	}
	out := make(map[string]any, len(d.Values))
	for k, v := range d.Values {
		out[k] = v
	}
	return out
}
