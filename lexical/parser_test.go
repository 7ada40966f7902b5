package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BareTerms(t *testing.T) {
	q, err := Parse("quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, []string{"quick", "brown", "fox"}, q.Terms)
	assert.Empty(t, q.Must)
	assert.Empty(t, q.Exclude)
	assert.Equal(t, CombineOr, q.Combine)
}

func TestParse_Operators(t *testing.T) {
	q, err := Parse("quick AND fox")
	require.NoError(t, err)
	assert.Equal(t, CombineAnd, q.Combine)
	assert.Equal(t, []string{"quick", "fox"}, q.Terms)

	q, err = Parse("quick OR fox")
	require.NoError(t, err)
	assert.Equal(t, CombineOr, q.Combine)

	// Operators are case-insensitive.
	q, err = Parse("quick and fox")
	require.NoError(t, err)
	assert.Equal(t, CombineAnd, q.Combine)
}

func TestParse_Not(t *testing.T) {
	q, err := Parse("fox NOT dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"fox"}, q.Terms)
	assert.Equal(t, []string{"dog"}, q.Exclude)

	// NOT is a prefix operator, so it may open the query.
	q, err = Parse("NOT dog fox")
	require.NoError(t, err)
	assert.Equal(t, []string{"fox"}, q.Terms)
	assert.Equal(t, []string{"dog"}, q.Exclude)
}

func TestParse_Prefixes(t *testing.T) {
	q, err := Parse("+database -graph storage")
	require.NoError(t, err)

	assert.Equal(t, []string{"database"}, q.Must)
	assert.Equal(t, []string{"graph"}, q.Exclude)
	assert.Equal(t, []string{"storage"}, q.Terms)
}

func TestParse_TermsAreAnalyzed(t *testing.T) {
	// Query terms go through the same analyzer as indexed text.
	q, err := Parse("Foo-Bar BAZ")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar", "baz"}, q.Terms)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"double quotes", `"quick fox"`},
		{"single quotes", "don't"},
		{"double operator", "quick AND AND fox"},
		{"not after and", "quick AND NOT"},
		{"dangling and", "quick AND"},
		{"dangling not", "fox NOT"},
		{"leading operator pair", "AND OR fox"},
		{"leading and", "AND fox"},
		{"leading or", "OR fox"},
		{"only exclusions", "-fox -dog"},
		{"only not", "NOT fox"},
		{"bare punctuation", "fox !!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.query)
			require.Error(t, err)

			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestParse_MustWithAnd(t *testing.T) {
	// +term combines with AND mode without duplicating semantics.
	q, err := Parse("+rust systems AND language")
	require.NoError(t, err)
	assert.Equal(t, CombineAnd, q.Combine)
	assert.Equal(t, []string{"rust"}, q.Must)
	assert.Equal(t, []string{"systems", "language"}, q.Terms)
}
