package engine

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexgo/lexical"
	"github.com/hupe1980/lexgo/model"
)

// Search performs a ranked full-text search over the text field. The
// snapshot is reloaded first so a search always observes the most recent
// commit. Results are ordered by descending BM25 score; ties break by
// ascending internal document order, so repeated searches against an
// unchanged generation return identical lists. At most topK results are
// returned.
func (e *Engine) Search(ctx context.Context, rawQuery string, topK int) ([]model.SearchResult, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	start := time.Now()
	results, err := e.search(ctx, rawQuery, topK)
	e.metrics.OnSearch(time.Since(start), len(results), err)
	return results, err
}

func (e *Engine) search(ctx context.Context, rawQuery string, topK int) ([]model.SearchResult, error) {
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}

	q, err := lexical.Parse(rawQuery)
	if err != nil {
		return nil, err
	}

	snap, err := e.acquireSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.DecRef()

	if snap.DocCount() == 0 {
		return nil, nil
	}

	// Required terms must all be present; optional terms need at least one
	// match unless required terms exist.
	required := dedup(q.Must)
	optional := dedup(q.Terms)
	if q.Combine == lexical.CombineAnd {
		required = dedup(append(required, optional...))
		optional = nil
	}

	idf := e.idf(snap, append(append([]string(nil), required...), optional...))
	avgDocLen := snap.avgDocLen()

	perView := make([][]scoredRow, len(snap.views))
	g, _ := errgroup.WithContext(ctx)
	for i, v := range snap.views {
		i, v := i, v
		g.Go(func() error {
			perView[i] = scoreView(v, required, optional, q.Exclude, idf, avgDocLen)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Keep the topK best across all views. Ordering is descending score
	// with ties broken by ascending (segment, row), which is the internal
	// document order.
	h := &candidateHeap{}
	for i, rows := range perView {
		for _, r := range rows {
			h.offer(scoredCandidate{view: i, row: r.row, score: r.score}, topK)
		}
	}
	top := h.drain()

	results := make([]model.SearchResult, 0, len(top))
	for _, c := range top {
		doc, ok := snap.views[c.view].seg.Doc(c.row)
		if !ok {
			continue
		}
		results = append(results, model.SearchResult{Score: c.score, Doc: doc})
	}
	return results, nil
}

// GetByID performs an exact-match lookup on the identifier field against
// the reader's current snapshot. It deliberately does not reload: callers
// needing read-your-writes freshness must call Reload first.
func (e *Engine) GetByID(_ context.Context, id string) (model.Document, bool, error) {
	if id == "" {
		return model.Document{}, false, ErrEmptyID
	}

	snap, err := e.acquireSnapshot()
	if err != nil {
		return model.Document{}, false, err
	}
	defer snap.DecRef()

	// An identifier is live in at most one segment: re-adding tombstones
	// the prior row. Scan newest-first anyway.
	for i := len(snap.views) - 1; i >= 0; i-- {
		v := snap.views[i]
		row, ok := v.seg.RowOf(id)
		if !ok || v.deleted(row) {
			continue
		}
		doc, _ := v.seg.Doc(row)
		return doc, true, nil
	}
	return model.Document{}, false, nil
}

// idf computes the inverse document frequency of each term over the live
// documents of the snapshot.
func (e *Engine) idf(snap *Snapshot, terms []string) map[string]float64 {
	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		if _, ok := idf[t]; ok {
			continue
		}
		df := 0
		for _, v := range snap.views {
			for _, p := range v.seg.Postings(t) {
				if !v.deleted(p.Row) {
					df++
				}
			}
		}
		idf[t] = lexical.IDF(snap.DocCount(), df)
	}
	return idf
}

type scoredRow struct {
	row   model.RowID
	score float64
}

type scoredCandidate struct {
	view  int
	row   model.RowID
	score float64
}

// scoreView scores all live rows of one segment view.
func scoreView(v *segmentView, required, optional, exclude []string, idf map[string]float64, avgDocLen float64) []scoredRow {
	type acc struct {
		score    float64
		required int
		optional bool
		excluded bool
	}
	rows := make(map[model.RowID]*acc)

	get := func(row model.RowID) *acc {
		a, ok := rows[row]
		if !ok {
			a = &acc{}
			rows[row] = a
		}
		return a
	}

	for _, t := range required {
		for _, p := range v.seg.Postings(t) {
			if v.deleted(p.Row) {
				continue
			}
			a := get(p.Row)
			a.required++
			a.score += lexical.BM25Term(idf[t], int(p.Freq), v.seg.Length(p.Row), avgDocLen)
		}
	}
	for _, t := range optional {
		for _, p := range v.seg.Postings(t) {
			if v.deleted(p.Row) {
				continue
			}
			a := get(p.Row)
			a.optional = true
			a.score += lexical.BM25Term(idf[t], int(p.Freq), v.seg.Length(p.Row), avgDocLen)
		}
	}
	for _, t := range exclude {
		for _, p := range v.seg.Postings(t) {
			if v.deleted(p.Row) {
				continue
			}
			get(p.Row).excluded = true
		}
	}

	matched := make([]scoredRow, 0, len(rows))
	for row, a := range rows {
		if a.excluded {
			continue
		}
		if a.required != len(required) {
			continue
		}
		if len(required) == 0 && !a.optional {
			continue
		}
		matched = append(matched, scoredRow{row: row, score: a.score})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].row < matched[j].row })
	return matched
}

func dedup(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
