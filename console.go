package ussdflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/ussdflow/internal/simulator"
	"github.com/aretw0/ussdflow/pkg/domain"
)

// QuitCommand ends an interactive console session.
const QuitCommand = "/quit"

// Console drives a simulated session from line-oriented input.
// This allows for easy testing and integration with different frontends.
type Console struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer transforms a menu before it is written, e.g. to style it for a terminal.
type ContentRenderer func(menu string, env domain.Envelope) string

// NewConsole creates a console over the given reader and writer.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{Input: in, Output: out}
}

// Run starts the session and exchanges lines until the flow closes the session,
// the input ends or the user types QuitCommand. The session is cleaned up on return.
func (c *Console) Run(ctx context.Context, sim *simulator.Simulator) (err error) {
	if c.Input == nil || c.Output == nil {
		return errors.New("console input and output must be set")
	}
	lines := bufio.NewScanner(c.Input)

	defer func() {
		if cerr := sim.Cleanup(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !c.Headless {
		fmt.Fprintf(c.Output, "--- USSD session %s ---\n", sim.SessionID())
	}

	env, err := sim.Start(ctx)
	if err != nil {
		return err
	}

	for {
		c.show(env)
		if env.ShouldClose {
			if !c.Headless {
				fmt.Fprintln(c.Output, "--- Session closed ---")
			}
			return nil
		}

		if !c.Headless {
			fmt.Fprint(c.Output, "> ")
		}
		if !lines.Scan() {
			return lines.Err()
		}
		input := strings.TrimSpace(lines.Text())
		if input == QuitCommand {
			return nil
		}

		env, err = sim.Send(ctx, input)
		if err != nil {
			return err
		}
	}
}

func (c *Console) show(env domain.Envelope) {
	menu := env.USSDMenu
	if c.Renderer != nil {
		menu = c.Renderer(menu, env)
	}
	fmt.Fprintln(c.Output, menu)
}
