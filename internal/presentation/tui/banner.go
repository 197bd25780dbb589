package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the simulator banner to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{" _   _ ___ ___ ___    __ _ ", "#818cf8"},
		{"| | | / __/ __|   \\  / _| |_____ __ __", "#a78bfa"},
		{"| |_| \\__ \\__ \\ |) ||  _| / _ \\ V  V /", "#c084fc"},
		{" \\___/|___/___/___/ |_| |_\\___/\\_/\\_/", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
