package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple words",
			text: "the quick brown fox",
			want: []string{"the", "quick", "brown", "fox"},
		},
		{
			name: "lowercasing",
			text: "Quick BROWN Fox",
			want: []string{"quick", "brown", "fox"},
		},
		{
			name: "punctuation splits",
			text: "hello, world! foo-bar",
			want: []string{"hello", "world", "foo", "bar"},
		},
		{
			name: "digits kept",
			text: "version 2 of http2",
			want: []string{"version", "2", "of", "http2"},
		},
		{
			name: "unicode letters",
			text: "Grüße aus München",
			want: []string{"grüße", "aus", "münchen"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "only separators",
			text: " \t …!?— ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeSymmetry(t *testing.T) {
	// Index-side and query-side analysis must agree on the same input.
	text := "Hello, World: HTTP/2 Rocks"
	assert.Equal(t, Tokenize(text), Tokenize("hello world http 2 rocks"))
}
