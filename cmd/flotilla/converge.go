package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/engine"
	"github.com/flotilla-dev/flotilla/internal/facts"
	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/registry"
	"github.com/flotilla-dev/flotilla/internal/report"
	"github.com/flotilla-dev/flotilla/internal/role"
	"github.com/flotilla-dev/flotilla/internal/roles"
	"github.com/flotilla-dev/flotilla/internal/rolesource"
	"github.com/flotilla-dev/flotilla/internal/transport"
	"github.com/flotilla-dev/flotilla/internal/tui"
)

type convergeOptions struct {
	ConfigPath     string
	User           string
	KeyFile        string
	ReportPath     string
	DryRun         bool
	Verbose        bool
	NonInteractive bool
}

var convergeCmdRunner = runConverge

func newConvergeCmd(root *rootFlags) *cobra.Command {
	opts := convergeOptions{}

	cmd := &cobra.Command{
		Use:   "converge",
		Short: "Converge every host in the fleet toward the declared stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose
			opts.NonInteractive = !term.IsTerminal(int(os.Stdout.Fd()))

			if err := validateConvergeOptions(opts); err != nil {
				return err
			}

			return convergeCmdRunner(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to fleet configuration file")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "SSH user (default root)")
	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "SSH private key file")
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "Write machine-readable report to file (- for stdout)")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runConverge(opts convergeOptions) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	effectiveDryRun := opts.DryRun || cfg.Settings.DryRun
	effectiveVerbose := opts.Verbose || cfg.Settings.Verbose

	level := "info"
	if effectiveVerbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, Console: true})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := buildStepRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	execOpts := engine.OptionsFromSettings(cfg.Settings)
	execOpts.DryRun = effectiveDryRun

	executor := engine.NewExecutor(reg, facts.NewCollector(log), newDialer(cfg, opts), log, execOpts)
	orch := engine.NewOrchestrator(executor, cfg.Settings.Batch, engine.FailurePolicy(cfg.Settings.FailurePolicy), log)

	interactive := !opts.NonInteractive
	fleet := runFleet(ctx, cancel, orch, cfg, interactive)
	if fleet == nil {
		return fmt.Errorf("run interrupted before any host completed")
	}

	fmt.Fprintln(os.Stdout, report.Render(cfg.Name, fleet))

	if opts.ReportPath != "" {
		if err := writeJSONReport(opts.ReportPath, cfg.Name, fleet); err != nil {
			return err
		}
	}

	if fleet.Failed() {
		s := fleet.Summarize()
		return fmt.Errorf("convergence failed: %d of %d hosts did not converge", s.Failed+s.Partial, s.TotalHosts)
	}
	return nil
}

// runFleet drives the orchestrator, attaching the Bubbletea progress display
// when stdout is a terminal.
func runFleet(ctx context.Context, cancel context.CancelFunc, orch *engine.Orchestrator, cfg *config.Config, interactive bool) *model.FleetResult {
	if !interactive {
		return orch.Run(ctx, cfg)
	}

	program := tea.NewProgram(tui.NewModel(cfg, cancel))
	orch.SetNotifier(func(event any) {
		program.Send(event)
	})

	done := make(chan struct{})
	var fleet *model.FleetResult
	go func() {
		defer close(done)
		fleet = orch.Run(ctx, cfg)
	}()

	// The model quits itself on the fleet-done event.
	if _, err := program.Run(); err != nil {
		cancel()
	}
	<-done
	return fleet
}

func buildStepRegistry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*registry.Registry, error) {
	roleReg := role.NewRegistry()
	if err := roles.RegisterBuiltin(roleReg); err != nil {
		return nil, err
	}

	if cfg.RoleSource != "" {
		src := rolesource.New(cfg.RoleSource, rolesource.WithLogger(log))
		count, err := src.Load(ctx, roleReg)
		if err != nil {
			return nil, fmt.Errorf("load role source: %w", err)
		}
		log.WithFields(map[string]any{"url": cfg.RoleSource, "roles": count}).Info("external roles loaded")
	}

	if len(cfg.Steps) > 0 {
		return registry.FromConfig(cfg, roleReg)
	}

	// No explicit steps: fall back to the canonical stack sequence.
	reg := registry.New(cfg.Vars)
	for _, step := range roles.DefaultSteps() {
		if err := reg.Register(step); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newDialer(cfg *config.Config, opts convergeOptions) transport.Dialer {
	byAddress := make(map[string]config.Host, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		byAddress[h.Address] = h
	}

	return transport.NewSSHDialer(opts.User, opts.KeyFile, func(address string) (int, string, string) {
		h := byAddress[address]
		return h.Port, h.User, h.KeyFile
	})
}

func writeJSONReport(path, name string, fleet *model.FleetResult) error {
	if path == "-" {
		return report.WriteJSON(os.Stdout, name, fleet)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	return report.WriteJSON(f, name, fleet)
}
