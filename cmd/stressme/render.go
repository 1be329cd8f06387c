package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/stressme/bench"
	"github.com/utkarsh5026/stressme/stress"
	"github.com/utkarsh5026/stressme/tracer"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// progressSteps is the resolution of fraction-driven bars.
const progressSteps = 1000

func makeProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cyclePrinter serialises RAM cycle lines coming from the verification
// goroutine.
type cyclePrinter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func (p *cyclePrinter) print(c stress.PatternCycle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		_ = json.NewEncoder(p.w).Encode(c)
		return
	}

	status := green.Sprint("OK")
	if c.Mismatches > 0 {
		status = red.Sprintf("%d mismatches", c.Mismatches)
		if c.FirstOffset != nil && c.Observed != nil {
			status += red.Sprintf(" (first at %d: 0x%02X)", *c.FirstOffset, *c.Observed)
		}
	}
	_, _ = fmt.Fprintf(p.w, "%s #%d pattern %s (0x%02X) %d MB in %s, %.2f GB/s %s\n",
		cyan.Sprint("RAM"), c.Iteration, c.Pattern, c.Expected, c.AllocatedMB,
		c.Duration.Round(time.Millisecond), c.ThroughputGiBps, status)
}

func printBenchTable(w io.Writer, results []bench.Result) {
	table := tablewriter.NewWriter(w)
	table.Header("Pass", "Threads", "Target", "Elapsed", "Operations", "Ops/sec", "Score")

	for _, r := range results {
		_ = table.Append(
			r.Kind.String(),
			fmt.Sprintf("%d", r.Threads),
			r.Target.String(),
			r.Elapsed.Round(time.Millisecond).String(),
			formatNumber(int64(r.Operations)),
			fmt.Sprintf("%.0f", r.OpsPerSecond),
			fmt.Sprintf("%.1f", r.Score),
		)
	}

	_ = table.Render()
}

func printTraceTable(w io.Writer, r tracer.Result, spp, width, height, threads int) {
	table := tablewriter.NewWriter(w)
	table.Header("Resolution", "SPP", "Threads", "Samples", "Samples/sec", "Seconds")
	_ = table.Append(
		fmt.Sprintf("%dx%d", width, height),
		fmt.Sprintf("%d", spp),
		fmt.Sprintf("%d", threads),
		formatNumber(r.TotalSamples),
		fmt.Sprintf("%.0f", r.SamplesPerSecond),
		fmt.Sprintf("%.3f", r.ElapsedSeconds),
	)
	_ = table.Render()
}

// formatNumber renders n with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
