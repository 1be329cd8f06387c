package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/config"
	"github.com/utkarsh5026/stressme/tracer"
)

type traceReport struct {
	tracer.Result
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	SamplesPerPixel int    `json:"samplesPerPixel"`
	Threads         int    `json:"threads"`
	Output          string `json:"output,omitempty"`
}

func newTraceCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Render the benchmark scene with the path tracer",
		Example: `  stressme trace
  stressme trace --spp 16 --width 1280 --height 720 --out scene.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd,
				config.Binding{Flag: "spp", Key: "tracer.samples_per_pixel"},
				config.Binding{Flag: "width", Key: "tracer.width"},
				config.Binding{Flag: "height", Key: "tracer.height"},
				config.Binding{Flag: "threads", Key: "tracer.threads"},
				config.Binding{Flag: "bounces", Key: "tracer.max_bounces"},
			); err != nil {
				return err
			}
			return runTrace(cmd.Context(), a, out)
		},
	}

	cmd.Flags().Int("spp", 4, "Samples per pixel")
	cmd.Flags().Int("width", 640, "Image width in pixels")
	cmd.Flags().Int("height", 360, "Image height in pixels")
	cmd.Flags().Int("threads", 0, "Render workers (default all cores)")
	cmd.Flags().Int("bounces", tracer.DefaultMaxBounces, "Maximum path length")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the rendered frame to this PNG file")
	return cmd
}

func runTrace(ctx context.Context, a *app, out string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tc := a.cfg.Tracer
	threads := a.cfg.TracerThreads()

	var (
		bar     *progressbar.ProgressBar
		barOnce sync.Once
	)
	opts := append(a.cfg.TracerOptions(), tracer.WithLogger(a.logger.Named("tracer")))
	if !a.cfg.Log.JSON {
		opts = append(opts, tracer.WithProgress(func(p tracer.Progress) {
			barOnce.Do(func() { bar = makeProgressBar(p.TilesTotal, "Rendering tiles") })
			_ = bar.Set(p.TilesDone)
			if p.Done {
				_ = bar.Finish()
			}
		}))

		_, _ = bold.Println("⚙️  Path tracer:")
		fmt.Printf("  Resolution:       %dx%d\n", tc.Width, tc.Height)
		fmt.Printf("  Samples/pixel:    %d\n", tc.SamplesPerPixel)
		fmt.Printf("  Threads:          %d\n", threads)
		fmt.Println()
	}
	engine := tracer.NewEngine(opts...)

	res, err := engine.RunBenchmark(ctx, tc.SamplesPerPixel, tc.Width, tc.Height, threads)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if out != "" {
		if err := writePNG(out, res.Frame); err != nil {
			return err
		}
		a.logger.Info("frame written", zap.String("path", out))
	}

	if a.cfg.Log.JSON {
		return writeJSON(os.Stdout, traceReport{
			Result:          res,
			Width:           tc.Width,
			Height:          tc.Height,
			SamplesPerPixel: tc.SamplesPerPixel,
			Threads:         threads,
			Output:          out,
		})
	}

	fmt.Println()
	_, _ = bold.Println("📊 PATH TRACER RESULTS")
	fmt.Println()
	printTraceTable(os.Stdout, res, tc.SamplesPerPixel, tc.Width, tc.Height, threads)
	fmt.Println()
	fmt.Printf("  Score (seconds, lower is better): %s\n", green.Sprintf("%.3f", res.Score))
	if out != "" {
		fmt.Printf("  Frame written to %s\n", out)
	}
	return nil
}

func writePNG(path string, fb *tracer.FrameBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, fb.Image()); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
