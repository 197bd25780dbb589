package process

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/ports"
)

// Validator is a ports.Validator backed by a helper program.
// The program prints true/false, or a JSON object {"valid": bool}.
type Validator struct {
	Name     string
	Manifest Manifest
	Runner   *Runner
}

var _ ports.Validator = (*Validator)(nil)

// Validate runs the program with the validate phase.
func (v *Validator) Validate(ctx context.Context, input string, vars map[string]any) (bool, error) {
	out, err := v.Runner.Call(ctx, v.Manifest, Request{
		Helper:    v.Name,
		Phase:     PhaseValidate,
		Input:     input,
		Variables: vars,
	})
	if err != nil {
		return false, err
	}

	if ok, err := strconv.ParseBool(string(out)); err == nil {
		return ok, nil
	}
	var verdict struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(out, &verdict); err != nil {
		return false, fmt.Errorf("helper %s: unexpected output %q", v.Name, out)
	}
	return verdict.Valid, nil
}

// Handler is a ports.DynamicHandler backed by a helper program.
// The program prints a JSON ScreenResult, or plain text used as the screen text.
type Handler struct {
	Name     string
	Manifest Manifest
	Runner   *Runner
}

var _ ports.DynamicHandler = (*Handler)(nil)

// Handle runs the program with the render or input phase.
func (h *Handler) Handle(ctx context.Context, sess *domain.Session, hc domain.HandlerContext) (*domain.ScreenResult, error) {
	req := Request{
		Helper:  h.Name,
		Phase:   string(hc.Phase),
		Input:   hc.Input,
		Session: sess,
	}
	if hc.Flow != nil {
		req.Flow = hc.Flow.Name
	}
	if hc.Screen != nil {
		req.Screen = hc.Screen.ID
	}

	out, err := h.Runner.Call(ctx, h.Manifest, req)
	if err != nil {
		return nil, err
	}
	return DecodeResult(out)
}

// DecodeResult parses helper output into a ScreenResult.
// Output that is not a JSON object is taken as the screen text.
func DecodeResult(out []byte) (*domain.ScreenResult, error) {
	var raw map[string]any
	if len(out) == 0 || out[0] != '{' || json.Unmarshal(out, &raw) != nil {
		return &domain.ScreenResult{Text: string(out)}, nil
	}

	var res domain.ScreenResult
	if err := mapstructure.WeakDecode(raw, &res); err != nil {
		return nil, fmt.Errorf("invalid helper result: %w", err)
	}

	if opts, ok := raw["options"].(map[string]any); ok {
		res.Options = make(map[string]domain.MenuOption, len(opts))
		for key, v := range opts {
			opt, err := decodeOption(v)
			if err != nil {
				return nil, fmt.Errorf("invalid helper result: option %s: %w", key, err)
			}
			res.Options[key] = opt
		}
	}
	return &res, nil
}

func decodeOption(v any) (domain.MenuOption, error) {
	switch t := v.(type) {
	case string:
		return domain.MenuOption{Next: domain.StaticTarget(t)}, nil
	case map[string]any:
		var opt struct {
			Next  string `mapstructure:"next"`
			Store any    `mapstructure:"store"`
		}
		if err := mapstructure.WeakDecode(t, &opt); err != nil {
			return domain.MenuOption{}, err
		}
		mo := domain.MenuOption{Next: domain.StaticTarget(opt.Next)}
		switch s := opt.Store.(type) {
		case string:
			mo.Store = &domain.StoreDirective{Variable: s}
		case map[string]any:
			mo.Store = &domain.StoreDirective{Values: s}
		}
		return mo, nil
	default:
		return domain.MenuOption{}, fmt.Errorf("expected a screen id or an object, got %T", v)
	}
}
