package lexical

import (
	"fmt"
	"strings"
)

// Combinator selects how the positive terms of a query are combined.
type Combinator int

const (
	// CombineOr matches documents containing at least one positive term.
	// This is the default.
	CombineOr Combinator = iota

	// CombineAnd matches documents containing every positive term.
	CombineAnd
)

// Query is a parsed text query against the tokenized field.
type Query struct {
	// Terms are the positive terms, combined per Combine.
	Terms []string

	// Must are terms a document is required to contain regardless of the
	// combinator (from +term prefixes).
	Must []string

	// Exclude are terms whose presence disqualifies a document
	// (from NOT or -term).
	Exclude []string

	Combine Combinator

	Raw string
}

// ParseError reports malformed query syntax. It is surfaced to the caller
// rather than degrading to an empty result.
type ParseError struct {
	Query  string
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("failed to parse query %q: token %q %s", e.Query, e.Token, e.Reason)
	}
	return fmt.Sprintf("failed to parse query %q: %s", e.Query, e.Reason)
}

// Parse parses a user query string into a Query.
//
// Supported syntax: bare terms (OR by default), the operators AND, OR, and
// NOT, and the prefixes +term (required) and -term (excluded). Quoting is
// not supported and is rejected as malformed rather than matched literally.
func Parse(raw string) (*Query, error) {
	q := &Query{Combine: CombineOr, Raw: raw}

	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Query: raw, Reason: "query is empty"}
	}
	if strings.ContainsAny(raw, `"'`) {
		return nil, &ParseError{Query: raw, Reason: "quoted phrases are not supported"}
	}

	words := strings.Fields(raw)
	excludeNext := false
	prevOperator := ""
	sawOperand := false

	for _, word := range words {
		switch strings.ToUpper(word) {
		case "AND":
			if prevOperator != "" {
				return nil, &ParseError{Query: raw, Token: word, Reason: "follows another operator"}
			}
			if !sawOperand {
				return nil, &ParseError{Query: raw, Token: word, Reason: "has no left operand"}
			}
			q.Combine = CombineAnd
			prevOperator = word
			continue
		case "OR":
			if prevOperator != "" {
				return nil, &ParseError{Query: raw, Token: word, Reason: "follows another operator"}
			}
			if !sawOperand {
				return nil, &ParseError{Query: raw, Token: word, Reason: "has no left operand"}
			}
			q.Combine = CombineOr
			prevOperator = word
			continue
		case "NOT":
			if prevOperator != "" {
				return nil, &ParseError{Query: raw, Token: word, Reason: "follows another operator"}
			}
			excludeNext = true
			prevOperator = word
			continue
		}
		prevOperator = ""
		sawOperand = true

		required := false
		excluded := excludeNext
		excludeNext = false

		term := word
		switch {
		case strings.HasPrefix(word, "+"):
			required = true
			term = word[1:]
		case strings.HasPrefix(word, "-"):
			excluded = true
			term = word[1:]
		}

		tokens := Tokenize(term)
		if len(tokens) == 0 {
			return nil, &ParseError{Query: raw, Token: word, Reason: "contains no indexable characters"}
		}

		switch {
		case excluded:
			q.Exclude = append(q.Exclude, tokens...)
		case required:
			q.Must = append(q.Must, tokens...)
		default:
			q.Terms = append(q.Terms, tokens...)
		}
	}

	if prevOperator != "" {
		return nil, &ParseError{Query: raw, Token: prevOperator, Reason: "has no operand"}
	}
	if len(q.Terms) == 0 && len(q.Must) == 0 {
		return nil, &ParseError{Query: raw, Reason: "no positive terms"}
	}

	return q, nil
}
