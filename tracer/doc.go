// Package tracer is a small CPU path tracer used as a compute benchmark.
//
// The scene is fixed: a room of five planes holding nine spheres (two of
// them emissive) with diffuse, metal and glass materials. A bounding volume
// hierarchy over the spheres is built once per Engine and read concurrently
// without locking. RunBenchmark splits the image into 64x64 tiles, renders
// them on a bounded worker pool with one random stream per tile, and scores
// the run by its elapsed time (lower is better).
package tracer
