package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/runbook"
	"github.com/veriflow/veriflow/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		storePath      string
		maxConcurrency int
		metricsListen  string
		traceExporter  string
	)

	cmd := &cobra.Command{
		Use:   "run <runbook>",
		Short: "Execute a runbook",
		Long: `Load a runbook, build its execution plan, and run it.

Artifacts are produced in dependency order with bounded parallelism. A
failed artifact cascades: every artifact depending on it is skipped. The
run-wide timeout from the runbook config bounds the whole execution.

Exit codes:
  0  every artifact produced successfully
  1  a non-optional artifact failed
  2  partial success (artifacts skipped, none failed)`,
		Example: `  # Run with the in-memory artifact store
  veriflow run compliance.yaml

  # Persist artifacts to SQLite
  veriflow run compliance.yaml --store artifacts.db

  # Override the declared concurrency
  veriflow run compliance.yaml --max-concurrency 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			logger := log.Logger
			if verbose {
				logger = logger.Level(zerolog.DebugLevel)
			}

			rb, plan, err := loadAndPlan(ctx, args[0], logger)
			if err != nil {
				return err
			}
			if maxConcurrency > 0 {
				rb.Config.MaxConcurrency = maxConcurrency
			}

			c, cleanup, err := buildContainer(ctx, storePath)
			if err != nil {
				return fmt.Errorf("setting up artifact store: %w", err)
			}
			defer cleanup()

			service := buildLLMService(logger)
			registry, err := buildRegistry(service, logger)
			if err != nil {
				return err
			}

			opts := []engine.ExecutorOption{engine.WithLogger(logger)}

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:       metricsListen != "",
				ListenAddress: metricsListen,
				Path:          "/metrics",
				Namespace:     "veriflow",
			})
			if err != nil {
				return err
			}
			if metricsListen != "" {
				if err := metrics.StartMetricsServer(logger); err != nil {
					return err
				}
				opts = append(opts, engine.WithEventPublisher(metrics))
			}

			if traceExporter != "" {
				tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
					Enabled:       true,
					Exporter:      traceExporter,
					Endpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
					SamplingRate:  1.0,
					ExportTimeout: 30 * time.Second,
					Insecure:      true,
				}, "veriflow", "dev", "development")
				if err != nil {
					return err
				}
				defer func() { _ = tracer.Shutdown(context.Background()) }()
				opts = append(opts, engine.WithTracer(tracer.Tracer()))
			}

			executor := engine.NewExecutor(registry, c, opts...)

			metrics.RecordRunStarted()
			result, err := executor.Execute(ctx, plan)
			if err != nil {
				return err
			}
			runStatus := "success"
			if len(result.FailedArtifacts(rb)) > 0 {
				runStatus = "failed"
			} else if len(result.Skipped) > 0 {
				runStatus = "partial"
			}
			metrics.RecordRunCompleted(runStatus, time.Duration(result.DurationSeconds*float64(time.Second)))

			if jsonOutput {
				if err := renderResultJSON(result, rb); err != nil {
					return err
				}
			} else {
				renderResult(result, rb)
			}

			failed := result.FailedArtifacts(rb)
			switch {
			case len(failed) > 0:
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d artifact(s) failed", len(failed))}
			case len(result.Skipped) > 0:
				return &ExitError{Code: 2, Message: fmt.Sprintf("%d artifact(s) skipped", len(result.Skipped))}
			default:
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite artifact store path (default: in-memory)")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "override the runbook's max concurrency")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&traceExporter, "trace", "", "trace exporter (otlp, stdout)")

	return cmd
}

// loadAndPlan parses the runbook file and builds its execution plan. The
// registry used for planning carries no LLM service; planning never calls
// components.
func loadAndPlan(ctx context.Context, path string, logger zerolog.Logger) (*runbook.Runbook, *engine.ExecutionPlan, error) {
	loader, err := runbook.NewLoader()
	if err != nil {
		return nil, nil, err
	}
	rb, err := loader.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading runbook: %w", err)
	}

	registry, err := buildRegistry(nil, logger)
	if err != nil {
		return nil, nil, err
	}

	plan, err := engine.NewPlanner(registry).BuildPlan(ctx, rb)
	if err != nil {
		return nil, nil, fmt.Errorf("planning: %w", err)
	}
	return rb, plan, nil
}

// renderResult prints a per-artifact status table.
func renderResult(result *engine.ExecutionResult, rb *runbook.Runbook) {
	ids := make([]string, 0, len(result.Artifacts)+len(result.Skipped))
	for id := range result.Artifacts {
		ids = append(ids, id)
	}
	for id := range result.Skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("Run %s (%.2fs)\n\n", result.RunID, result.DurationSeconds)
	for _, id := range ids {
		switch {
		case result.Skipped[id]:
			fmt.Printf("  %-30s skipped\n", id)
		default:
			msg := result.Artifacts[id]
			status := "success"
			detail := ""
			if msg.Execution != nil {
				if msg.Execution.Status == engine.ExecutionStatusError {
					status = "error"
					detail = "  " + msg.Execution.Error
					if def, ok := rb.Artifacts[id]; ok && def.Optional {
						status = "error (optional)"
					}
				}
				fmt.Printf("  %-30s %-10s %6.2fs%s\n", id, status, msg.Execution.DurationSeconds, detail)
			} else {
				fmt.Printf("  %-30s %s\n", id, status)
			}
		}
	}

	s := result.Summarize()
	fmt.Printf("\n%d succeeded, %d failed, %d skipped\n", s.Succeeded, s.Failed, s.Skipped)
}

// renderResultJSON prints the full result as JSON.
func renderResultJSON(result *engine.ExecutionResult, rb *runbook.Runbook) error {
	out := struct {
		*engine.ExecutionResult
		Summary engine.Summary `json:"summary"`
		Failed  []string       `json:"failed_artifacts"`
	}{
		ExecutionResult: result,
		Summary:         result.Summarize(),
		Failed:          result.FailedArtifacts(rb),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
