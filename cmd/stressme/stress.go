package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/config"
	"github.com/utkarsh5026/stressme/stress"
)

func newStressCmd(a *app) *cobra.Command {
	var (
		duration       time.Duration
		statusInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run CPU and RAM stress until interrupted",
		Example: `  stressme stress --threads 8 --mode instability --ram 4096
  stressme stress --threads 0 --ram 2048 --duration 10m`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd,
				config.Binding{Flag: "threads", Key: "cpu.threads"},
				config.Binding{Flag: "mode", Key: "cpu.mode"},
				config.Binding{Flag: "ram", Key: "ram.megabytes"},
				config.Binding{Flag: "pin", Key: "cpu.pinned"},
			); err != nil {
				return err
			}

			threads := a.cfg.CPU.Threads
			// An explicit --threads 0 disables CPU stress; an unset value means every core.
			if !cmd.Flags().Changed("threads") {
				threads = a.cfg.CPUThreads()
			}
			return runStress(cmd.Context(), a, threads, duration, statusInterval)
		},
	}

	cmd.Flags().Int("threads", 0, "CPU worker threads (0 disables CPU stress; default all cores)")
	cmd.Flags().String("mode", "heavy", "CPU workload: heavy or instability")
	cmd.Flags().Int("ram", 0, "RAM to allocate and verify, in MB (0 disables RAM stress)")
	cmd.Flags().Bool("pin", false, "Pin each CPU worker to one logical CPU")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&statusInterval, "status-interval", 0, "Print a status line at this interval (0 disables)")
	return cmd
}

func runStress(ctx context.Context, a *app, threads int, duration, statusInterval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	printer := &cyclePrinter{w: os.Stdout, json: a.cfg.Log.JSON}
	onError := func(err error) {
		a.logger.Error("stress worker failed", zap.Error(err))
		_, _ = red.Fprintf(os.Stderr, "stress worker failed: %v\n", err)
	}

	cpuEngine := stress.NewCPUEngine(append(a.cfg.CPUOptions(),
		stress.WithCPULogger(a.logger.Named("cpu")),
		stress.WithCPUErrorHandler(onError),
	)...)
	ramEngine := stress.NewRAMEngine(append(a.cfg.RAMOptions(),
		stress.WithRAMLogger(a.logger.Named("ram")),
		stress.WithCycleHandler(printer.print),
		stress.WithRAMErrorHandler(onError),
	)...)
	session := stress.NewSession(cpuEngine, ramEngine, a.logger)

	req := stress.StartRequest{Threads: threads, Mode: a.cfg.Mode(), RAMMegabytes: a.cfg.RAM.Megabytes}
	res := session.Start(req)
	if a.cfg.Log.JSON {
		_ = writeJSON(os.Stdout, res)
	} else if res.Success {
		_, _ = green.Println(res.Message)
	} else {
		_, _ = yellow.Println(res.Message)
	}
	if !res.Success {
		return errors.New(res.Message)
	}

	if !a.cfg.Log.JSON {
		_, _ = bold.Println("⚙️  Stress running:")
		fmt.Printf("  CPU threads:      %d (%s)\n", threads, req.Mode)
		fmt.Printf("  RAM allocated:    %d MB\n", res.RAMAllocatedMB)
		if duration > 0 {
			fmt.Printf("  Duration:         %s\n", duration)
		}
		fmt.Println("  Press Ctrl+C to stop." + pauseHint)
		fmt.Println()
	}

	waitStress(ctx, a, session, statusInterval)

	st := session.Stop()
	if a.cfg.Log.JSON {
		return writeJSON(os.Stdout, st)
	}
	_, _ = green.Println(st.Message)
	return nil
}

// waitStress blocks until ctx ends, toggling pause on the platform pause
// signal and printing periodic status lines.
func waitStress(ctx context.Context, a *app, session *stress.Session, statusInterval time.Duration) {
	toggle := make(chan os.Signal, 1)
	if sigs := pauseSignals(); len(sigs) > 0 {
		signal.Notify(toggle, sigs...)
		defer signal.Stop(toggle)
	}

	var tick <-chan time.Time
	if statusInterval > 0 {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-toggle:
			res := session.TogglePause()
			if a.cfg.Log.JSON {
				_ = writeJSON(os.Stdout, res)
			} else if res.Success {
				_, _ = yellow.Println(res.Message)
			} else {
				_, _ = red.Println(res.Message)
			}
		case <-tick:
			st := session.Status()
			if a.cfg.Log.JSON {
				_ = writeJSON(os.Stdout, st)
				continue
			}
			state := green.Sprint("running")
			switch {
			case st.Paused:
				state = yellow.Sprint("paused")
			case !st.Running:
				state = red.Sprint("stopped")
			}
			fmt.Printf("%s %s, %d active threads, %d MB RAM\n", cyan.Sprint("STATUS"), state, st.ThreadCount, st.RAMAllocatedMB)
		}
	}
}
