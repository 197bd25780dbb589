// Package tui styles simulator output for terminals.
package tui

import (
	"io"
	"strings"

	"github.com/muesli/termenv"

	"github.com/aretw0/ussdflow/pkg/domain"
)

// NewRenderer returns a menu renderer that frames each screen like a handset display.
// Closing screens are green and faults red. Colors are dropped when w is not a terminal.
func NewRenderer(w io.Writer) func(menu string, env domain.Envelope) string {
	out := termenv.NewOutput(w)
	border := out.Color("#6b7280")
	closing := out.Color("#22c55e")
	fault := out.Color("#ef4444")

	return func(menu string, env domain.Envelope) string {
		width := 0
		lines := strings.Split(menu, "\n")
		for _, l := range lines {
			width = max(width, len([]rune(l)))
		}
		rule := out.String("+" + strings.Repeat("-", width+2) + "+").Foreground(border).String()

		var b strings.Builder
		b.WriteString(rule + "\n")
		for _, l := range lines {
			text := out.String(l + strings.Repeat(" ", width-len([]rune(l))))
			switch {
			case env.IsFault():
				text = text.Foreground(fault)
			case env.ShouldClose:
				text = text.Foreground(closing)
			}
			b.WriteString(out.String("| ").Foreground(border).String())
			b.WriteString(text.String())
			b.WriteString(out.String(" |").Foreground(border).String())
			b.WriteString("\n")
		}
		b.WriteString(rule)
		return b.String()
	}
}
