// Package lexical provides the text analysis front end of the query engine:
// tokenization, query parsing, and the BM25 scoring primitives.
//
// Tokenization is deterministic and shared between indexing and querying:
// input is lowercased and split on non-alphanumeric boundaries. Queries
// combine terms with OR by default; explicit AND, OR, and NOT operators
// (or +term / -term prefixes) override that.
package lexical
