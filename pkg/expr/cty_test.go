package expr

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCtyConversion(t *testing.T) {
	in := map[string]any{
		"name":   "ada",
		"age":    36,
		"ratio":  0.5,
		"json":   json.Number("42"),
		"ok":     true,
		"tags":   []string{"a", "b"},
		"nested": map[string]any{"list": []any{"x", int64(1)}},
		"none":   nil,
	}

	v, err := ToCty(in)
	require.NoError(t, err)
	require.True(t, v.Type().IsObjectType())

	out, err := FromCty(v)
	require.NoError(t, err)

	want := map[string]any{
		"name":   "ada",
		"age":    int64(36),
		"ratio":  0.5,
		"json":   int64(42),
		"ok":     true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"list": []any{"x", int64(1)}},
		"none":   nil,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		`a === 'x'`:       `a == "x"`,
		`a !== "y"`:       `a != "y"`,
		`'it\'s'`:         `"it's"`,
		`'say "hi"'`:      `"say \"hi\""`,
		`"keep === this"`: `"keep === this"`,
		`a == b`:          `a == b`,
	}
	for in, want := range tests {
		got, err := normalize(in)
		require.NoError(t, err, in)
		if got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromCty_Null(t *testing.T) {
	v, err := FromCty(cty.NullVal(cty.String))
	require.NoError(t, err)
	require.Nil(t, v)
}
