package lexical

import "math"

// BM25 parameters. Standard values; kept fixed so repeated searches on the
// same generation are deterministic.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// IDF computes the BM25 inverse document frequency for a term.
// docCount is the number of live documents in the index, docFreq the number
// of live documents containing the term.
//
// IDF = ln(1 + (N - n + 0.5) / (n + 0.5))
func IDF(docCount, docFreq int) float64 {
	n := float64(docFreq)
	return math.Log(1 + (float64(docCount)-n+0.5)/(n+0.5))
}

// BM25Term computes the contribution of a single term occurrence to a
// document's score.
//
// score = idf * tf*(k1+1) / (tf + k1*(1 - b + b*docLen/avgDocLen))
func BM25Term(idf float64, termFreq, docLen int, avgDocLen float64) float64 {
	tf := float64(termFreq)
	denom := tf + BM25K1*(1-BM25B+BM25B*float64(docLen)/avgDocLen)
	return idf * tf * (BM25K1 + 1) / denom
}
