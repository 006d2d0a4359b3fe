package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
)

// plan resolves each host's step sequence from declared variables alone.
// Steps guarded by gathered facts cannot be resolved before a host is
// probed, so they are listed as conditional rather than dropped.
func newPlanCmd(root *rootFlags) *cobra.Command {
	opts := convergeOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the step sequence each host would run, without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = root.verbose

			if err := validateConvergeOptions(opts); err != nil {
				return err
			}

			return runPlan(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to fleet configuration file")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runPlan(opts convergeOptions, out io.Writer) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	level := "error"
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, Console: true})
	if err != nil {
		return err
	}

	ctx := context.Background()
	reg, err := buildStepRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	for _, host := range cfg.Hosts {
		vars := cfg.HostVars(host)

		fmt.Fprintf(out, "%s (stack_type=%s, operation=%s)\n",
			host.Address, vars.Get(config.VarStackType), vars.Get(config.VarOperation))

		selected := 0
		for _, step := range reg.Steps() {
			if len(step.When.FactRefs()) > 0 {
				// Fact-guarded: resolvable only after probing the host.
				selected++
				fmt.Fprintf(out, "  %3d. %s  [conditional on facts: %s]\n",
					step.Order, step.ID, step.When)
				continue
			}
			if !step.When.Eval(model.Facts{}, vars) {
				continue
			}
			selected++
			fmt.Fprintf(out, "  %3d. %s", step.Order, step.ID)
			if step.When.String() != "always" {
				fmt.Fprintf(out, "  [when %s]", step.When)
			}
			fmt.Fprintln(out)
		}
		if selected == 0 {
			fmt.Fprintln(out, "  no steps selected")
		}
	}

	return nil
}
