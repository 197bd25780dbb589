package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/ussdflow"
	"github.com/aretw0/ussdflow/internal/config"
	"github.com/aretw0/ussdflow/internal/presentation/tui"
	"github.com/aretw0/ussdflow/internal/simulator"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [flow]",
	Short: "Play a flow in the terminal",
	Long: `Runs a flow against an in-memory session store, either interactively or from a
scripted list of answers (--inputs). Type /quit to leave an interactive session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	config.SetupFlags(simulateCmd)
	simulateCmd.Flags().StringSlice("inputs", nil, "answers to send in order, e.g. --inputs 1,2,500")
	simulateCmd.Flags().String("msisdn", simulator.DefaultMSISDN, "subscriber number")
	simulateCmd.Flags().String("short-code", simulator.DefaultShortCode, "dialled short code")
	simulateCmd.Flags().Bool("plain", false, "disable the banner and screen frames")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.ActiveFlow = args[0]
	}
	cfg.Redis.UseMemoryStore = true
	if !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}

	ctx := cmd.Context()
	app, err := ussdflow.New(ctx, cfg, ussdflow.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	defer app.Shutdown(ctx)

	msisdn, _ := cmd.Flags().GetString("msisdn")
	shortCode, _ := cmd.Flags().GetString("short-code")
	sim := app.Simulator("", simulator.WithMSISDN(msisdn), simulator.WithShortCode(shortCode))

	inputs, _ := cmd.Flags().GetStringSlice("inputs")
	if len(inputs) > 0 {
		return runScript(cmd, sim, inputs)
	}

	out := cmd.OutOrStdout()
	console := ussdflow.NewConsole(cmd.InOrStdin(), out)
	plain, _ := cmd.Flags().GetBool("plain")
	if !plain && term.IsTerminal(int(os.Stdout.Fd())) {
		tui.PrintBanner(out)
		console.Renderer = tui.NewRenderer(out)
	}
	return console.Run(ctx, sim)
}

func runScript(cmd *cobra.Command, sim *simulator.Simulator, inputs []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	start, err := sim.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "<< %s\n", start.USSDMenu)

	envs, err := sim.RunSequence(ctx, inputs)
	for i, env := range envs {
		fmt.Fprintf(out, ">> %s\n<< %s\n", inputs[i], env.USSDMenu)
	}
	if err != nil {
		return err
	}
	if len(envs) < len(inputs) {
		fmt.Fprintf(out, "session closed after %d of %d inputs\n", len(envs), len(inputs))
	}
	return sim.Cleanup(ctx)
}
