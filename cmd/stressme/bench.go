package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/bench"
	"github.com/utkarsh5026/stressme/config"
)

type benchReport struct {
	Single *bench.Result     `json:"single,omitempty"`
	Multi  *bench.RunsResult `json:"multi,omitempty"`
}

func newBenchCmd(a *app) *cobra.Command {
	var single, multi bool

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Score the CPU with fixed-duration single- and multi-thread passes",
		Example: `  stressme bench
  stressme bench --multi --runs 3 --threads 16`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd,
				config.Binding{Flag: "threads", Key: "bench.threads"},
				config.Binding{Flag: "runs", Key: "bench.runs"},
				config.Binding{Flag: "pin", Key: "bench.pinned"},
			); err != nil {
				return err
			}
			if !single && !multi {
				single, multi = true, true
			}
			return runBench(cmd.Context(), a, single, multi)
		},
	}

	cmd.Flags().BoolVar(&single, "single", false, "Run the single-thread pass")
	cmd.Flags().BoolVar(&multi, "multi", false, "Run the multi-thread pass")
	cmd.Flags().Int("threads", 0, "Multi-thread worker count (default all cores)")
	cmd.Flags().Int("runs", 1, "Number of multi-thread runs to average")
	cmd.Flags().Bool("pin", false, "Pin each worker to one logical CPU")
	return cmd
}

func runBench(ctx context.Context, a *app, single, multi bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var bar *progressbar.ProgressBar
	opts := append(a.cfg.BenchOptions(), bench.WithLogger(a.logger.Named("bench")))
	if !a.cfg.Log.JSON {
		bar = makeProgressBar(progressSteps, "Benchmarking")
		opts = append(opts, bench.WithProgress(func(p bench.Progress) {
			desc := fmt.Sprintf("%s-thread", p.Kind)
			if p.TotalRuns > 1 {
				desc = fmt.Sprintf("%s run %d/%d", desc, p.Run, p.TotalRuns)
			}
			bar.Describe(desc)
			_ = bar.Set(int(p.Fraction() * progressSteps))
		}))
	}
	engine := bench.NewEngine(opts...)

	if !a.cfg.Log.JSON {
		_, _ = bold.Println("⚙️  Benchmark:")
		fmt.Printf("  Threads:          %d\n", engine.Threads())
		fmt.Printf("  Single pass:      %s\n", a.cfg.Bench.SingleDuration)
		fmt.Printf("  Multi pass:       %s x %d runs\n", a.cfg.Bench.MultiDuration, a.cfg.Bench.Runs)
		fmt.Println()
	}

	var (
		report benchReport
		rows   []bench.Result
	)
	if single {
		res, err := engine.RunSingleThread(ctx)
		if err != nil {
			return fmt.Errorf("single-thread pass: %w", err)
		}
		report.Single = &res
		rows = append(rows, res)
	}
	if multi {
		if bar != nil {
			bar.Reset()
		}
		res, err := engine.RunMultiThreadRuns(ctx, a.cfg.Bench.Runs)
		if err != nil {
			return fmt.Errorf("multi-thread pass: %w", err)
		}
		report.Multi = &res
		rows = append(rows, res.Runs...)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	a.logger.Info("benchmark finished", zap.Int("passes", len(rows)))

	if a.cfg.Log.JSON {
		return writeJSON(os.Stdout, report)
	}

	fmt.Println()
	_, _ = bold.Println("📊 BENCHMARK RESULTS")
	fmt.Println()
	printBenchTable(os.Stdout, rows)
	fmt.Println()
	if report.Single != nil {
		fmt.Printf("  Single-thread score: %s\n", green.Sprintf("%.1f", report.Single.Score))
	}
	if report.Multi != nil {
		fmt.Printf("  Multi-thread score:  %s\n", green.Sprintf("%.1f", report.Multi.Score))
	}
	return nil
}
