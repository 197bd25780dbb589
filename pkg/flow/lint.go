package flow

import (
	"fmt"

	"github.com/aretw0/ussdflow/pkg/domain"
)

// Warning is a non-fatal finding about a loaded flow.
type Warning struct {
	Flow    string
	Screen  string
	Message string
}

func (w Warning) String() string {
	if w.Screen == "" {
		return fmt.Sprintf("flow %s: %s", w.Flow, w.Message)
	}
	return fmt.Sprintf("flow %s, screen %s: %s", w.Flow, w.Screen, w.Message)
}

// Lint reports problems that do not prevent a flow from running: a missing welcome
// screen, static references to screens that do not exist, routes that can never match
// and capabilities that are not registered. known may be nil to skip the capability check.
func Lint(f *domain.Flow, known func(name string) bool) []Warning {
	var out []Warning
	warn := func(screen, format string, args ...any) {
		out = append(out, Warning{Flow: f.Name, Screen: screen, Message: fmt.Sprintf(format, args...)})
	}

	if !f.HasScreen(domain.WelcomeScreen) {
		warn("", "no %q screen defined", domain.WelcomeScreen)
	}

	ref := func(screen, field string, t *domain.Target) {
		if t == nil || t.IsDynamic() || t.Raw == "" {
			return
		}
		if !f.HasScreen(t.Raw) {
			warn(screen, "%s references unknown screen %q", field, t.Raw)
		}
	}
	capability := func(screen, kind, name string) {
		if known != nil && name != "" && !known(name) {
			warn(screen, "%s %q is not registered", kind, name)
		}
	}

	for _, id := range sortedKeys(f.Screens) {
		s := f.Screens[id]
		switch body := s.Body.(type) {
		case domain.Menu:
			for _, key := range sortedKeys(body.Options) {
				next := body.Options[key].Next
				ref(id, "options."+key, &next)
			}
			ref(id, "default", body.Default)
		case domain.Input:
			ref(id, "next", &body.Next)
			capability(id, "validator", body.Validator)
		case domain.Dynamic:
			ref(id, "next", body.Next)
			capability(id, "handler", body.Handler)
		case domain.Router:
			for i, r := range body.Routes {
				if r.Condition == nil {
					warn(id, "routes[%d] has no condition and never matches", i)
				}
				next := r.Next
				ref(id, fmt.Sprintf("routes[%d].next", i), &next)
			}
			ref(id, "default", body.Default)
		case domain.Passthrough:
			ref(id, "next", body.Next)
		}
	}
	return out
}
