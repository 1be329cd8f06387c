package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/config"
	"github.com/utkarsh5026/stressme/internal/logutil"
)

// app carries state resolved once per invocation by the root command.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

var globalBindings = []config.Binding{
	{Flag: "log-level", Key: "log.level"},
	{Flag: "json", Key: "log.json"},
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stressme",
		Short: "CPU/RAM stress tester and CPU benchmark",
		Long: `stressme keeps every core and most of the free memory busy, continuously
verifying memory patterns, and scores the CPU with a fixed-duration arithmetic
benchmark and a path-tracer render.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file path (YAML)")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("json", false, "Emit results as JSON")

	root.AddCommand(
		newStressCmd(a),
		newBenchCmd(a),
		newTraceCmd(a),
		newConfigCmd(a),
	)
	return root
}

// load resolves the configuration for cmd with its own flag bindings on top
// of the global ones, and builds the process logger.
func (a *app) load(cmd *cobra.Command, bindings ...config.Binding) error {
	all := append(append([]config.Binding{}, globalBindings...), bindings...)
	cfg, err := config.Load(a.configPath, cmd.Flags(), all...)
	if err != nil {
		return err
	}

	logger, err := logutil.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	if from := cfg.LoadedFrom(); from != "" {
		logger.Debug("configuration loaded", zap.String("path", from))
	}
	return nil
}
