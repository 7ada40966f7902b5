// Package testutil provides testing utilities for lexgo.
//
// This package is intended for use in tests and benchmarks only. It
// provides a seeded, thread-safe RNG and helpers for generating
// deterministic document corpora.
//
// # Corpus Generation
//
//	rng := testutil.NewRNG(42)
//	docs := rng.Documents(1000, 20) // 1000 docs, ~20 words each
package testutil
