package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/flow"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name   string
		doc    map[string]any
		fields []string
	}{
		{
			name:   "missing appName and screens",
			doc:    map[string]any{},
			fields: []string{"appName", "screens"},
		},
		{
			name: "screen without type",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"text": "hi"},
			}},
			fields: []string{"type"},
		},
		{
			name: "text required for menus",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"type": "menu", "options": map[string]any{"1": "x"}},
			}},
			fields: []string{"text"},
		},
		{
			name: "menu without options",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"type": "menu", "text": "hi"},
			}},
			fields: []string{"options"},
		},
		{
			name: "dynamic without handler",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"type": "dynamic"},
			}},
			fields: []string{"handler"},
		},
		{
			name: "router without routes",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"type": "router"},
			}},
			fields: []string{"routes"},
		},
		{
			name: "bad expressions",
			doc: map[string]any{"appName": "A", "screens": map[string]any{
				"welcome": map[string]any{"type": "input", "text": "x", "next": "${exec('rm')}"},
				"route": map[string]any{"type": "router", "routes": []any{
					map[string]any{"condition": "session.a ==", "next": "welcome"},
				}},
			}},
			fields: []string{"routes[0].condition", "next"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := flow.ValidateDocument(tt.doc)
			require.Len(t, errs, len(tt.fields))

			var got []string
			for _, err := range errs {
				var verr *flow.ValidationError
				require.ErrorAs(t, err, &verr)
				got = append(got, verr.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestValidateDocument_Valid(t *testing.T) {
	doc := map[string]any{
		"appName": "A",
		"screens": map[string]any{
			"welcome": map[string]any{"type": "router", "routes": []any{
				map[string]any{"condition": "input == '1'", "next": "bye"},
			}},
			"bye": map[string]any{"type": "notification", "text": "bye"},
		},
	}
	assert.Empty(t, flow.ValidateDocument(doc))
}

func TestAggregateError_Message(t *testing.T) {
	_, err := flow.Decode("x", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 validation errors")
	assert.Contains(t, err.Error(), `flow x: field "appName": required`)
}
