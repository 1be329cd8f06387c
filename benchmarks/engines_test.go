package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/utkarsh5026/stressme/bench"
	"github.com/utkarsh5026/stressme/internal/pool"
	"github.com/utkarsh5026/stressme/stress"
	"github.com/utkarsh5026/stressme/tracer"
)

// =============================================================================
// RAM pattern passes
// =============================================================================

func BenchmarkPatternBuffer_Fill(b *testing.B) {
	for _, mb := range []int{1, 16, 64} {
		b.Run(fmt.Sprintf("%dMB", mb), func(b *testing.B) {
			buf := stress.NewPatternBuffer(make([]byte, mb<<20), stress.DefaultProbeBytes)
			ctx := context.Background()

			b.SetBytes(int64(buf.Len()))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := buf.Fill(ctx, stress.PatternA); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPatternBuffer_Verify(b *testing.B) {
	for _, probe := range []int{4 << 10, stress.DefaultProbeBytes, 256 << 10} {
		b.Run(fmt.Sprintf("probe_%dKB", probe>>10), func(b *testing.B) {
			buf := stress.NewPatternBuffer(make([]byte, 16<<20), probe)
			ctx := context.Background()
			if _, err := buf.Fill(ctx, stress.PatternB); err != nil {
				b.Fatal(err)
			}

			b.SetBytes(int64(buf.Len()))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res, err := buf.Verify(ctx, stress.PatternB)
				if err != nil {
					b.Fatal(err)
				}
				if res.Mismatches != 0 {
					b.Fatalf("unexpected mismatches: %d", res.Mismatches)
				}
			}
		})
	}
}

// =============================================================================
// Tracer
// =============================================================================

func BenchmarkIntersect_BVHvsBrute(b *testing.B) {
	rays := randomRays(4096, 7)

	for _, n := range []int{9, 64, 512} {
		scene := tracer.DefaultScene()
		if n != len(scene.Spheres) {
			scene = tracer.NewScene(randomSpheres(n, uint64(n)), nil)
		}

		b.Run(fmt.Sprintf("spheres_%d/bvh", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				r := rays[i%len(rays)]
				scene.Intersect(r, 1e9)
			}
		})
		b.Run(fmt.Sprintf("spheres_%d/brute", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				r := rays[i%len(rays)]
				scene.IntersectBrute(r, 1e9)
			}
		})
	}
}

func BenchmarkTracer_RenderWorkerScaling(b *testing.B) {
	for _, threads := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("threads_%d", threads), func(b *testing.B) {
			e := tracer.NewEngine()

			b.ResetTimer()
			var samples int64
			for i := 0; i < b.N; i++ {
				res, err := e.RunBenchmark(context.Background(), 1, 160, 90, threads)
				if err != nil {
					b.Fatal(err)
				}
				samples += res.TotalSamples
			}
			b.StopTimer()

			b.ReportMetric(float64(samples)/b.Elapsed().Seconds(), "samples/sec")
		})
	}
}

// =============================================================================
// Worker pool
// =============================================================================

func BenchmarkPool_ThroughputWorkerScaling(b *testing.B) {
	const taskCount = 10000
	work := func(_ context.Context, task int) (int, error) {
		result := 0
		for i := 0; i < 100; i++ {
			result += i * task
		}
		return result, nil
	}

	for _, workers := range []int{2, 4, 8, 16} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			tasks := make([]int, taskCount)
			for j := range tasks {
				tasks[j] = j
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				wp := pool.New[int, int](pool.WithWorkerCount(workers))
				if _, err := wp.Process(context.Background(), tasks, work); err != nil {
					b.Fatal(err)
				}
			}
			b.StopTimer()

			nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
			b.ReportMetric(taskCount/nsPerOp*1e9, "tasks/sec")
		})
	}
}

// =============================================================================
// CPU benchmark
// =============================================================================

// The pass itself is time-bound; the reported metric is the score, not ns/op.
func BenchmarkBench_MultiThreadScore(b *testing.B) {
	for _, threads := range []int{1, 4} {
		b.Run(fmt.Sprintf("threads_%d", threads), func(b *testing.B) {
			e := bench.NewEngine(
				bench.WithThreads(threads),
				bench.WithMultiDuration(100*time.Millisecond),
			)

			var score float64
			for i := 0; i < b.N; i++ {
				res, err := e.RunMultiThread(context.Background())
				if err != nil {
					b.Fatal(err)
				}
				score += res.Score
			}
			b.ReportMetric(score/float64(b.N), "score")
		})
	}
}
