package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/hupe1980/lexgo/model"
)

// vocabulary is a fixed word list so generated corpora are reproducible
// across runs and platforms.
var vocabulary = []string{
	"search", "index", "query", "document", "segment", "commit", "merge",
	"token", "score", "ranking", "storage", "manifest", "snapshot", "reader",
	"writer", "generation", "batch", "delete", "update", "insert", "text",
	"field", "term", "frequency", "relevance", "corpus", "blob", "durable",
	"atomic", "visible", "staged", "pending", "tombstone", "postings",
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta",
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Word returns a pseudo-random word from the fixed vocabulary.
func (r *RNG) Word() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return vocabulary[r.rand.Intn(len(vocabulary))]
}

// Sentence returns a pseudo-random sentence of n words.
func (r *RNG) Sentence(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[r.rand.Intn(len(vocabulary))]
	}
	return strings.Join(words, " ")
}

// Documents generates num documents with sequential identifiers and text
// bodies of roughly wordsPerDoc words each.
func (r *RNG) Documents(num, wordsPerDoc int) []model.Document {
	docs := make([]model.Document, num)
	for i := range docs {
		n := wordsPerDoc/2 + r.Intn(wordsPerDoc+1)
		if n < 1 {
			n = 1
		}
		docs[i] = model.Document{
			ID:   fmt.Sprintf("doc-%06d", i),
			Text: r.Sentence(n),
		}
	}
	return docs
}
