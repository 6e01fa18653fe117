// Command simulator runs mesh routing scenarios and message-size sweeps.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/experiment"
	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/internal/observability"
	"github.com/signalsfoundry/mesh-simulator/internal/sweep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logging.NewFromEnv(), os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	log         logging.Logger
	out         io.Writer
	metricsAddr string
	outputDir   string
}

func newRootCmd(log logging.Logger, out io.Writer) *cobra.Command {
	a := &app{log: log, out: out}
	root := &cobra.Command{
		Use:           "simulator",
		Short:         "Discrete-time mobile mesh routing simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "HTTP address serving Prometheus /metrics; empty disables it")
	root.PersistentFlags().StringVar(&a.outputDir, "out", "", "directory receiving run results, traces and router logs")
	root.SetOut(out)

	root.AddCommand(a.runCmd(), a.scenarioCmd(), a.listCmd(), a.sweepCmd())
	return root
}

func (a *app) runCmd() *cobra.Command {
	var duration int
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a scenario described by a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if duration > 0 {
				sc.Duration = duration
			}
			return a.runScenario(cmd.Context(), sc)
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 0, "override the scenario duration in ticks")
	return cmd
}

func (a *app) scenarioCmd() *cobra.Command {
	var (
		duration int
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:       "scenario <name>",
		Short:     "Run a built-in scenario",
		Args:      cobra.ExactArgs(1),
		ValidArgs: experiment.BuiltinNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := experiment.Builtin(args[0])
			if err != nil {
				return err
			}
			if duration > 0 {
				sc.Duration = duration
			}
			if seed > 0 {
				sc.Seed = seed
			}
			return a.runScenario(cmd.Context(), sc)
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 0, "override the scenario duration in ticks")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "override the preparation seed")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range experiment.BuiltinNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <sweep-file>",
		Short: "Run the message-size parameter sweep, resuming from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSweep(args[0])
			if err != nil {
				return err
			}
			if a.outputDir != "" {
				cfg.OutputDir = a.outputDir
				cfg.Checkpoint = ""
				cfg = cfg.WithDefaults()
			}
			return a.withTelemetry(cmd.Context(), func(ctx context.Context, tel telemetry) error {
				env := experiment.Env{Log: a.log, Metrics: tel.sim, OutputDir: cfg.OutputDir}
				sw, err := sweep.New(cfg, sweep.MessageSizeRunner(cfg, env),
					sweep.WithLogger(a.log),
					sweep.WithMetrics(tel.sweep),
				)
				if err != nil {
					return err
				}
				if err := sw.Run(ctx); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "sweep finished: %s\n", cfg.OutputDir)
				return nil
			})
		},
	}
}

func (a *app) runScenario(ctx context.Context, sc config.Scenario) error {
	return a.withTelemetry(ctx, func(ctx context.Context, tel telemetry) error {
		ctx, log := logging.WithRunLogger(ctx, a.log, sc.Name)
		sim, err := experiment.Build(sc, experiment.Env{Log: log, Metrics: tel.sim, OutputDir: a.outputDir})
		if err != nil {
			return err
		}
		res, err := sim.Run(ctx)
		if err != nil {
			return err
		}
		printResult(a.out, res)
		return nil
	})
}

func printResult(w io.Writer, res *experiment.Result) {
	fmt.Fprintf(w, "%s: %s topology, %d routers, %d ticks in %s\n",
		res.Name, res.Topology, res.Routers, res.Ticks, res.Elapsed.Round(time.Millisecond))
	if res.Transmitter != "" {
		fmt.Fprintf(w, "traffic %s -> %s (%s)\n", res.Transmitter, res.Receiver, res.Destination)
	}
	for _, policy := range sortedPolicies(res) {
		sum := res.Policies[policy]
		fmt.Fprintf(w, "  %-18s delivered %d failed %d\n", policy, sum.Delivered, sum.Failed)
	}
}

func sortedPolicies(res *experiment.Result) []string {
	out := make([]string, 0, len(res.Policies))
	for p := range res.Policies {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

type telemetry struct {
	sim   *observability.SimCollector
	sweep *observability.SweepCollector
}

// withTelemetry sets up metrics and tracing around fn and tears them down
// afterwards.
func (a *app) withTelemetry(ctx context.Context, fn func(context.Context, telemetry) error) error {
	reg := prometheus.NewRegistry()
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	sweepMetrics, err := observability.NewSweepCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), a.log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, a.log)

	if srv := a.serveMetrics(simMetrics); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	return fn(ctx, telemetry{sim: simMetrics, sweep: sweepMetrics})
}

func (a *app) serveMetrics(collector *observability.SimCollector) *http.Server {
	if a.metricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:    a.metricsAddr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	a.log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", a.metricsAddr))
	return srv
}
