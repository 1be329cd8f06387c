// Package bench produces reproducible CPU performance scores.
//
// A pass pre-creates its workers, parks them on a one-shot start gate,
// computes the deadline only once every worker is confirmed alive, and then
// opens the gate so all of them begin together. Each worker runs fixed-size
// batches against a private accumulator and buffer and reads the clock once
// per batch. The engine sums the per-thread operation counts, divides by the
// elapsed wall time and by a normalization constant, and rounds to one
// decimal.
package bench
