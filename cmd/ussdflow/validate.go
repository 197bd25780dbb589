package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/ussdflow/internal/config"
	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/adapters/process"
	"github.com/aretw0/ussdflow/pkg/flow"
	"github.com/aretw0/ussdflow/pkg/helpers"
	"github.com/aretw0/ussdflow/pkg/helpers/builtin"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flows-dir]",
	Short: "Check flow documents for errors",
	Long: `Loads every flow document in the directory and reports schema errors, dangling
screen references and helpers that are neither built in nor declared by a manifest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("flows-path")
		if len(args) > 0 {
			dir = args[0]
		}
		helpersDir, _ := cmd.Flags().GetString("helpers-path")
		return runValidate(cmd, dir, helpersDir)
	},
}

func init() {
	validateCmd.Flags().String("flows-path", config.DefaultFlowsPath, "directory holding flow documents")
	validateCmd.Flags().String("helpers-path", config.DefaultHelpersPath, "directory holding helper manifests")
	rootCmd.AddCommand(validateCmd)
}

// errInvalidFlows is returned after the individual problems have been printed.
var errInvalidFlows = errors.New("flow validation failed")

func runValidate(cmd *cobra.Command, dir, helpersDir string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	caps := helpers.NewRegistry()
	if err := builtin.Register(caps); err != nil {
		return err
	}
	if _, err := caps.Discover(ctx, helpersDir, process.NewRunner(process.WithLogger(logging.NewNop()))); err != nil {
		return err
	}

	registry := flow.NewRegistry(flow.WithCapabilities(caps))
	warnings, err := registry.LoadAll(ctx, dir)
	if err != nil {
		if verrs := flow.ValidationErrors(err); verrs != nil {
			printList(out, "error", verrs)
			return errInvalidFlows
		}
		return err
	}

	for _, w := range warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	fmt.Fprintf(out, "%d flow(s) valid: %v\n", registry.Len(), registry.Names())
	return nil
}

func printList(w io.Writer, label string, errs []error) {
	for _, e := range errs {
		fmt.Fprintf(w, "%s: %v\n", label, e)
	}
}
