package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/expr"
)

func TestCompile_Evaluate(t *testing.T) {
	vars := map[string]any{
		"session": map[string]any{
			"choice":  "1",
			"balance": "150",
			"count":   float64(3),
			"user":    map[string]any{"tier": "gold"},
			"flag":    true,
			"rate":    "1.5",
		},
		"input": "2",
	}

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"dotted lookup", "session.choice", "1"},
		{"wrapped", "${session.choice}", "1"},
		{"nested lookup", "session.user.tier", "gold"},
		{"index lookup", `session["choice"]`, "1"},
		{"string equality", `session.choice == "1"`, true},
		{"single quotes", `session.choice == '1'`, true},
		{"strict equality", `session.choice === '1'`, true},
		{"strict inequality", `input !== '2'`, false},
		{"numeric comparison converts strings", "session.balance > 100", true},
		{"arithmetic", "session.count + 1", int64(4)},
		{"boolean ops", `session.flag && input == "2"`, true},
		{"negation", "!session.flag", false},
		{"conditional", `session.choice == "1" ? "balance" : "welcome"`, "balance"},
		{"literal", `"welcome"`, "welcome"},
		{"fraction", "1 / 4", 0.25},
		{"string equals number literal", "input == 2", true},
		{"number literal on the left", "2 == input", true},
		{"string not equal to number literal", "session.choice != 1", false},
		{"legacy strict equality with number", "session.choice === 1", true},
		{"number equals number literal", "session.count == 3", true},
		{"fractional literal", "session.rate == 1.5", true},
		{"mismatch stays false", "input == 3", false},
		{"quoted literal compares loosely", `1 == "1"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := expr.Compile(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.src, e.Source())

			got, err := e.Evaluate(vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", "${}"},
		{"blank", "   "},
		{"syntax error", "session.choice ==="},
		{"function call", `upper(session.choice)`},
		{"nested function call", `session.choice == lower("A")`},
		{"unknown root", "process.env"},
		{"unterminated string", `session.choice == 'x`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expr.Compile(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestCompile_FunctionCallError(t *testing.T) {
	_, err := expr.Compile("length(session.items)")
	assert.ErrorIs(t, err, expr.ErrFunctionCall)

	_, err = expr.Compile("env.HOME")
	assert.ErrorIs(t, err, expr.ErrUnknownVariable)
}

func TestEvaluate_MissingAttribute(t *testing.T) {
	e := expr.MustCompile("session.missing")
	_, err := e.Evaluate(map[string]any{"session": map[string]any{}})
	assert.Error(t, err)
}

func TestEvaluate_Concurrent(t *testing.T) {
	e := expr.MustCompile(`session.n > 5`)
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			v, err := e.Evaluate(map[string]any{"session": map[string]any{"n": n}})
			assert.NoError(t, err)
			done <- v.(bool)
		}(i)
	}
	trues := 0
	for i := 0; i < 10; i++ {
		if <-done {
			trues++
		}
	}
	assert.Equal(t, 4, trues)
}

func TestTruthy(t *testing.T) {
	assert.False(t, expr.Truthy(nil))
	assert.False(t, expr.Truthy(false))
	assert.False(t, expr.Truthy(""))
	assert.False(t, expr.Truthy(int64(0)))
	assert.False(t, expr.Truthy(0.0))
	assert.True(t, expr.Truthy("welcome"))
	assert.True(t, expr.Truthy(int64(2)))
	assert.True(t, expr.Truthy(true))
	assert.True(t, expr.Truthy(map[string]any{}))
}
