package flow

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/expr"
)

// document mirrors the on-disk layout of a flow file.
type document struct {
	AppName   string               `mapstructure:"appName"`
	Version   string               `mapstructure:"version"`
	ShortCode string               `mapstructure:"shortCode"`
	Screens   map[string]screenDoc `mapstructure:"screens"`
}

type screenDoc struct {
	Type        string         `mapstructure:"type"`
	Text        string         `mapstructure:"text"`
	Store       any            `mapstructure:"store"`
	ShouldClose bool           `mapstructure:"shouldClose"`
	Options     map[string]any `mapstructure:"options"`
	Default     any            `mapstructure:"default"`
	Validator   string         `mapstructure:"validator"`
	Handler     string         `mapstructure:"handler"`
	Next        string         `mapstructure:"next"`
	Routes      []routeDoc     `mapstructure:"routes"`
}

type optionDoc struct {
	Next  string `mapstructure:"next"`
	Store any    `mapstructure:"store"`
}

type routeDoc struct {
	Condition string `mapstructure:"condition"`
	Next      string `mapstructure:"next"`
}

// Decode converts a raw document into a compiled flow.
// The returned error is an *AggregateError listing every problem found.
func Decode(name string, raw map[string]any) (*domain.Flow, error) {
	doc, errs := decodeDocument(name, raw)
	if doc == nil {
		return nil, aggregate(errs)
	}

	b := &builder{flow: name}
	f := &domain.Flow{
		Name:      name,
		AppName:   doc.AppName,
		Version:   doc.Version,
		ShortCode: doc.ShortCode,
		Screens:   make(map[string]*domain.Screen, len(doc.Screens)),
	}
	for _, id := range sortedKeys(doc.Screens) {
		f.Screens[id] = b.screen(id, doc.Screens[id])
	}
	if errs = append(errs, b.errs...); len(errs) > 0 {
		return nil, aggregate(errs)
	}
	return f, nil
}

// ValidateDocument checks a raw document without registering it.
// It is meant for writers of flow documents (e.g. an admin panel) and returns nil when the document is valid.
func ValidateDocument(raw map[string]any) []error {
	_, err := Decode("", raw)
	return ValidationErrors(err)
}

func decodeDocument(name string, raw map[string]any) (*document, []error) {
	var doc document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return nil, []error{err}
	}
	if err := dec.Decode(normalizeMap(raw)); err != nil {
		return nil, []error{&ValidationError{Flow: name, Reason: err.Error()}}
	}

	var errs []error
	if doc.AppName == "" {
		errs = append(errs, &ValidationError{Flow: name, Field: "appName", Reason: "required"})
	}
	if len(doc.Screens) == 0 {
		errs = append(errs, &ValidationError{Flow: name, Field: "screens", Reason: "no screens defined"})
	}

	for _, id := range sortedKeys(doc.Screens) {
		s := doc.Screens[id]
		fail := func(field, reason string) {
			errs = append(errs, &ValidationError{Flow: name, Screen: id, Field: field, Reason: reason})
		}
		if s.Type == "" {
			fail("type", "required")
			continue
		}
		if s.Text == "" && s.Type != domain.ScreenRouter && s.Type != domain.ScreenDynamic {
			fail("text", "required")
		}
		switch s.Type {
		case domain.ScreenMenu:
			if len(s.Options) == 0 {
				fail("options", "no options defined")
			}
		case domain.ScreenDynamic:
			if s.Handler == "" {
				fail("handler", "required")
			}
		case domain.ScreenRouter:
			if len(s.Routes) == 0 {
				fail("routes", "no routes defined")
			}
		}
	}
	return &doc, errs
}

// builder compiles a decoded document, collecting errors instead of stopping at the first.
type builder struct {
	flow string
	errs []error
}

func (b *builder) fail(screen, field, reason string) {
	b.errs = append(b.errs, &ValidationError{Flow: b.flow, Screen: screen, Field: field, Reason: reason})
}

func (b *builder) screen(id string, s screenDoc) *domain.Screen {
	scr := &domain.Screen{
		ID:          id,
		Type:        s.Type,
		Text:        s.Text,
		ShouldClose: s.ShouldClose,
		Store:       b.store(id, "store", s.Store),
	}

	switch s.Type {
	case domain.ScreenMenu:
		menu := domain.Menu{Options: make(map[string]domain.MenuOption, len(s.Options))}
		for _, key := range sortedKeys(s.Options) {
			menu.Options[key] = b.option(id, key, s.Options[key])
		}
		menu.Default = b.defaultTarget(id, s.Default)
		scr.Body = menu

	case domain.ScreenInput:
		scr.Body = domain.Input{Validator: s.Validator, Next: b.target(id, "next", s.Next)}

	case domain.ScreenDynamic:
		scr.Body = domain.Dynamic{Handler: s.Handler, Next: b.optionalTarget(id, "next", s.Next)}

	case domain.ScreenRouter:
		router := domain.Router{Routes: make([]domain.Route, 0, len(s.Routes))}
		for i, r := range s.Routes {
			field := fmt.Sprintf("routes[%d]", i)
			route := domain.Route{Next: b.target(id, field+".next", r.Next)}
			if r.Condition != "" {
				cond, err := expr.Compile(r.Condition)
				if err != nil {
					b.fail(id, field+".condition", err.Error())
				} else {
					route.Condition = cond
				}
			}
			router.Routes = append(router.Routes, route)
		}
		router.Default = b.defaultTarget(id, s.Default)
		scr.Body = router

	case domain.ScreenNotification:
		scr.Body = domain.Notification{}

	default:
		scr.Body = domain.Passthrough{Next: b.optionalTarget(id, "next", s.Next)}
	}
	return scr
}

func (b *builder) option(screen, key string, raw any) domain.MenuOption {
	field := "options." + key
	switch v := raw.(type) {
	case string:
		return domain.MenuOption{Next: b.target(screen, field, v)}
	case map[string]any:
		var opt optionDoc
		if err := mapstructure.WeakDecode(v, &opt); err != nil {
			b.fail(screen, field, err.Error())
			return domain.MenuOption{}
		}
		return domain.MenuOption{
			Next:  b.target(screen, field+".next", opt.Next),
			Store: b.store(screen, field+".store", opt.Store),
		}
	default:
		b.fail(screen, field, fmt.Sprintf("expected a screen id or an object, got %T", raw))
		return domain.MenuOption{}
	}
}

// defaultTarget accepts both "default": "id" and "default": {"next": "id"}.
func (b *builder) defaultTarget(screen string, raw any) *domain.Target {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return b.optionalTarget(screen, "default", v)
	case map[string]any:
		next, _ := v["next"].(string)
		return b.optionalTarget(screen, "default.next", next)
	default:
		b.fail(screen, "default", fmt.Sprintf("expected a screen id or an object, got %T", raw))
		return nil
	}
}

func (b *builder) optionalTarget(screen, field, raw string) *domain.Target {
	if raw == "" {
		return nil
	}
	t := b.target(screen, field, raw)
	return &t
}

func (b *builder) target(screen, field, raw string) domain.Target {
	if !domain.IsExpression(raw) {
		return domain.StaticTarget(raw)
	}
	e, err := expr.Compile(raw)
	if err != nil {
		b.fail(screen, field, err.Error())
		return domain.StaticTarget(raw)
	}
	return domain.Target{Raw: raw, Expr: e}
}

// store accepts a variable name or a literal map of values.
func (b *builder) store(screen, field string, raw any) *domain.StoreDirective {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return &domain.StoreDirective{Variable: v}
	case map[string]any:
		return &domain.StoreDirective{Values: v}
	default:
		b.fail(screen, field, fmt.Sprintf("expected a variable name or an object, got %T", raw))
		return nil
	}
}

// normalizeMap converts map[any]any values produced by some YAML decoders into map[string]any.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
