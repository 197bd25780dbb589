package ports

import (
	"context"

	"github.com/aretw0/ussdflow/pkg/domain"
)

// Validator decides whether an input screen accepts the user's answer.
type Validator interface {
	Validate(ctx context.Context, input string, vars map[string]any) (bool, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, input string, vars map[string]any) (bool, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, input string, vars map[string]any) (bool, error) {
	return f(ctx, input, vars)
}

// DynamicHandler renders a dynamic screen and processes the answers given to it.
// The session passed in is a copy; changes must be returned through ScreenResult.Variables.
type DynamicHandler interface {
	Handle(ctx context.Context, sess *domain.Session, hc domain.HandlerContext) (*domain.ScreenResult, error)
}

// HandlerFunc adapts a function to DynamicHandler.
type HandlerFunc func(ctx context.Context, sess *domain.Session, hc domain.HandlerContext) (*domain.ScreenResult, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, sess *domain.Session, hc domain.HandlerContext) (*domain.ScreenResult, error) {
	return f(ctx, sess, hc)
}
