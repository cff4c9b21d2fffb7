package facematch

import (
	"math"

	"github.com/coder/hnsw"
)

const (
	// HNSWMaxNeighbors is the M parameter of the graph.
	HNSWMaxNeighbors = 16
	// hnswCandidates is how many graph neighbors are re-ranked with the exact metric.
	hnswCandidates = 8
)

// Index finds the enrolled entry nearest to a query encoding.
// Nearest returns the entry position and its distance, or -1 and +Inf when
// nothing is comparable.
type Index interface {
	Nearest(query []float32) (int, float64)
}

// ExactIndex is a linear scan. On equal distances the earlier entry wins.
type ExactIndex struct {
	entries []Entry
	metric  Metric
}

func NewExactIndex(entries []Entry, metric Metric) *ExactIndex {
	if metric == nil {
		metric = EuclideanDistance
	}
	return &ExactIndex{entries: entries, metric: metric}
}

func (x *ExactIndex) Nearest(query []float32) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, e := range x.entries {
		if len(e.Encoding) == 0 {
			continue
		}
		// strict comparison keeps the first entry on ties
		if d := x.metric(query, e.Encoding); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// approximate is an Index that may miss the true nearest entry. Exact
// returns a linear scan over the same entries.
type approximate interface {
	Index
	Exact() Index
}

// HNSWIndex searches an approximate graph and re-ranks the candidates with
// the exact metric. Only the graph's top candidates are re-ranked, so the
// answer can miss the true minimum. Small galleries fall back to a linear
// scan.
type HNSWIndex struct {
	entries []Entry
	metric  Metric
	graph   *hnsw.Graph[int]
	dims    int
	exact   *ExactIndex
}

// NewHNSWIndex builds the graph over entries. Entries whose encoding length
// differs from the first non-empty encoding are left out of the graph.
func NewHNSWIndex(entries []Entry, metric Metric) *HNSWIndex {
	if metric == nil {
		metric = EuclideanDistance
	}
	h := &HNSWIndex{entries: entries, metric: metric, exact: NewExactIndex(entries, metric)}
	if len(entries) <= hnswCandidates {
		return h
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = func(a, b []float32) float32 {
		return float32(metric(a, b))
	}

	for i, e := range entries {
		if len(e.Encoding) == 0 {
			continue
		}
		if h.dims == 0 {
			h.dims = len(e.Encoding)
		}
		if len(e.Encoding) != h.dims {
			continue
		}
		g.Add(hnsw.MakeNode(i, e.Encoding))
	}
	if h.dims > 0 {
		h.graph = g
	}
	return h
}

func (h *HNSWIndex) Exact() Index { return h.exact }

func (h *HNSWIndex) Nearest(query []float32) (int, float64) {
	if h.graph == nil {
		return h.exact.Nearest(query)
	}
	if len(query) != h.dims {
		return -1, math.Inf(1)
	}

	best, bestDist := -1, math.Inf(1)
	for _, n := range h.graph.Search(query, hnswCandidates) {
		d := h.metric(query, h.entries[n.Key].Encoding)
		if d < bestDist || (d == bestDist && n.Key < best) {
			best, bestDist = n.Key, d
		}
	}
	return best, bestDist
}
