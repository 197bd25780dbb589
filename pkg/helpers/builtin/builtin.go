// Package builtin provides the validators every deployment gets for free.
package builtin

import (
	"context"
	"strconv"

	"github.com/aretw0/ussdflow/pkg/ports"
	"github.com/aretw0/ussdflow/pkg/sanitize"
)

// Names of the built-in validators.
const (
	Numeric       = "validators/numeric"
	Alphanumeric  = "validators/alphanumeric"
	Phone         = "validators/phone"
	Amount        = "validators/amount"
	PIN           = "validators/pin"
	AccountNumber = "validators/accountNumber"
)

// DefaultMaxAmount is the upper bound accepted by the amount validator.
const DefaultMaxAmount = 1000

// Registerer is the subset of helpers.Registry used here.
type Registerer interface {
	Register(name string, capability any) error
}

type config struct {
	maxAmount float64
}

// Option configures the built-in validators.
type Option func(*config)

// WithMaxAmount sets the amount validator's upper bound.
func WithMaxAmount(max float64) Option {
	return func(c *config) {
		c.maxAmount = max
	}
}

// Register adds every built-in validator to r.
func Register(r Registerer, opts ...Option) error {
	cfg := config{maxAmount: DefaultMaxAmount}
	for _, opt := range opts {
		opt(&cfg)
	}

	validators := map[string]ports.Validator{
		Numeric:       pattern(sanitize.IsNumeric),
		Alphanumeric:  pattern(sanitize.IsAlphanumeric),
		Phone:         pattern(sanitize.IsPhoneNumber),
		PIN:           pattern(sanitize.IsPIN),
		AccountNumber: pattern(func(s string) bool { return len(s) == 10 && sanitize.IsNumeric(s) }),
		Amount:        AmountValidator(cfg.maxAmount),
	}
	for name, v := range validators {
		if err := r.Register(name, v); err != nil {
			return err
		}
	}
	return nil
}

func pattern(match func(string) bool) ports.Validator {
	return ports.ValidatorFunc(func(_ context.Context, input string, _ map[string]any) (bool, error) {
		return match(input), nil
	})
}

// AmountValidator accepts money amounts greater than zero and at most max.
func AmountValidator(max float64) ports.Validator {
	return ports.ValidatorFunc(func(_ context.Context, input string, _ map[string]any) (bool, error) {
		if !sanitize.IsMoneyAmount(input) {
			return false, nil
		}
		v, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return false, nil
		}
		return v > 0 && v <= max, nil
	})
}
