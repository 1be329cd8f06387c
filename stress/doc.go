// Package stress drives a machine's CPU and RAM to sustained load.
//
// CPUEngine runs N workers executing either a floating-point heavy loop or a
// multi-phase "instability" workload, and supports pause, resume and stop
// without tearing down worker identity. RAMEngine allocates a bounded amount
// of memory and continuously fills and re-reads it with two alternating
// byte patterns, reporting mismatches and throughput once per pattern pass.
// Session combines both behind start/stop/toggle-pause requests.
//
// Each engine is an explicit instance owned by the caller; all state is
// guarded by one mutex per instance. Progress and fault callbacks run on
// engine goroutines, so callers marshal them onto their own threads.
//
// Example:
//
//	cpu := stress.NewCPUEngine(stress.WithCPULogger(logger))
//	ram := stress.NewRAMEngine(stress.WithCycleHandler(func(c stress.PatternCycle) {
//	    fmt.Printf("pattern %s: %d mismatches, %.2f GiB/s\n", c.Pattern, c.Mismatches, c.ThroughputGiBps)
//	}))
//	sess := stress.NewSession(cpu, ram, logger)
//	res := sess.Start(stress.StartRequest{Threads: 8, Mode: stress.ModeHeavy, RAMMegabytes: 4096})
//	defer sess.Stop()
package stress
