package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr(s string) *string { return &s }

func TestDiff(t *testing.T) {
	base := func() *Session {
		return &Session{
			ID:            "sess-1",
			CurrentScreen: "welcome",
			NavHistory:    []string{"welcome"},
			Variables:     map[string]any{"msisdn": "254700000001", "tmp": true},
		}
	}

	tests := []struct {
		name string
		old  *Session
		new  func() *Session
		want *SessionDiff
	}{
		{
			name: "initial load",
			old:  nil,
			new:  base,
			want: &SessionDiff{
				SessionID:     "sess-1",
				CurrentScreen: ptr("welcome"),
				Variables:     map[string]any{"msisdn": "254700000001", "tmp": true},
				Visited:       []string{"welcome"},
			},
		},
		{
			name: "no changes",
			old:  base(),
			new:  base,
			want: nil,
		},
		{
			name: "move, update and delete",
			old:  base(),
			new: func() *Session {
				s := base()
				s.CurrentScreen = "amount"
				s.NavHistory = append(s.NavHistory, "amount")
				s.Variables["intent"] = "transfer"
				delete(s.Variables, "tmp")
				return s
			},
			want: &SessionDiff{
				SessionID:     "sess-1",
				CurrentScreen: ptr("amount"),
				Variables:     map[string]any{"intent": "transfer", "tmp": nil},
				Visited:       []string{"amount"},
			},
		},
		{
			name: "variables only",
			old:  base(),
			new: func() *Session {
				s := base()
				s.Variables["tmp"] = false
				return s
			},
			want: &SessionDiff{
				SessionID: "sess-1",
				Variables: map[string]any{"tmp": false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new())
			if d := cmp.Diff(tt.want, got); d != "" {
				t.Errorf("Diff() mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestDiff_NilNew(t *testing.T) {
	if got := Diff(&Session{ID: "x"}, nil); got != nil {
		t.Errorf("expected nil diff, got %+v", got)
	}
}
