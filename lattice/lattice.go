// Package lattice implements the weighted DAG of candidate (base, rule)
// segmentations of a word, and the Viterbi / forward-backward algorithms run
// over it for decoding and EM training.
package lattice

import "math"

// Edge is one candidate segmentation step from node Start to node End,
// carrying a logit (unnormalized log-probability) and an opaque payload
// identifying which (base, rule) pair it represents.
type Edge struct {
	Start, End int
	Logit      float64
	Data       any
}

// Lattice is a DAG over word[0:count-1] byte/rune boundary nodes. Node 0 is
// the start of the word, node count-1 is the end.
type Lattice struct {
	count      int
	edges      []Edge
	edgesStart [][]int
	edgesEnd   [][]int
}

// New creates an empty lattice over count boundary nodes. count must be at
// least 2 (a single edge needs a start and an end node).
func New(count int) *Lattice {
	if count <= 1 {
		panic("lattice: count must be > 1")
	}
	return &Lattice{
		count:      count,
		edgesStart: make([][]int, count),
		edgesEnd:   make([][]int, count),
	}
}

// Count returns the number of boundary nodes.
func (l *Lattice) Count() int { return l.count }

// Edges returns the edges added so far, in insertion order.
func (l *Lattice) Edges() []Edge { return l.edges }

// AddEdge inserts an edge and returns its index.
func (l *Lattice) AddEdge(start, end int, logit float64, data any) int {
	idx := len(l.edges)
	l.edges = append(l.edges, Edge{Start: start, End: end, Logit: logit, Data: data})
	l.edgesStart[start] = append(l.edgesStart[start], idx)
	l.edgesEnd[end] = append(l.edgesEnd[end], idx)
	return idx
}

// logSumExp computes log(exp(a)+exp(b)) without overflow, treating -Inf as a
// true zero probability.
func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// forwardMax runs the max-plus forward pass, returning the best score
// reaching each node and, for each node, the edge index used to reach it.
func (l *Lattice) forwardMax() (scores []float64, backptr []int) {
	scores = make([]float64, l.count)
	backptr = make([]int, l.count)
	for i := range scores {
		scores[i] = math.Inf(-1)
		backptr[i] = -1
	}
	scores[0] = 0
	for i := 0; i < l.count; i++ {
		if math.IsInf(scores[i], -1) {
			continue
		}
		for _, ei := range l.edgesStart[i] {
			e := l.edges[ei]
			s := scores[i] + e.Logit
			if s > scores[e.End] {
				scores[e.End] = s
				backptr[e.End] = ei
			}
		}
	}
	return scores, backptr
}

// Viterbi returns the best-scoring path through the lattice as an ordered
// slice of edge indices, plus its total logit. Returns (nil, -Inf) if no
// path connects node 0 to the final node.
func (l *Lattice) Viterbi() ([]int, float64) {
	scores, backptr := l.forwardMax()
	last := l.count - 1
	if math.IsInf(scores[last], -1) {
		return nil, math.Inf(-1)
	}
	var path []int
	node := last
	for node != 0 {
		ei := backptr[node]
		if ei < 0 {
			break
		}
		path = append(path, ei)
		node = l.edges[ei].Start
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, scores[last]
}

// ForwardSum runs the sum-plus forward pass in log space: fwd[i] is the log
// of the total probability mass of every path from node 0 to node i.
func (l *Lattice) ForwardSum() []float64 {
	fwd := make([]float64, l.count)
	for i := range fwd {
		fwd[i] = math.Inf(-1)
	}
	fwd[0] = 0
	for i := 0; i < l.count; i++ {
		if math.IsInf(fwd[i], -1) {
			continue
		}
		for _, ei := range l.edgesStart[i] {
			e := l.edges[ei]
			fwd[e.End] = logSumExp(fwd[e.End], fwd[i]+e.Logit)
		}
	}
	return fwd
}

// BackwardSum runs the mirror-image sum-plus pass from the final node.
func (l *Lattice) BackwardSum() []float64 {
	bwd := make([]float64, l.count)
	for i := range bwd {
		bwd[i] = math.Inf(-1)
	}
	last := l.count - 1
	bwd[last] = 0
	for i := last; i >= 0; i-- {
		if math.IsInf(bwd[i], -1) {
			continue
		}
		for _, ei := range l.edgesEnd[i] {
			e := l.edges[ei]
			bwd[e.Start] = logSumExp(bwd[e.Start], bwd[i]+e.Logit)
		}
	}
	return bwd
}

// MarginalLogits returns, for every edge, log P(edge | word) under the
// lattice: logit + fwd(start) + bwd(end) - fwd(last).
func (l *Lattice) MarginalLogits() []float64 {
	fwd := l.ForwardSum()
	bwd := l.BackwardSum()
	total := fwd[l.count-1]
	out := make([]float64, len(l.edges))
	for i, e := range l.edges {
		out[i] = e.Logit + fwd[e.Start] + bwd[e.End] - total
	}
	return out
}

// removalLossFloor is the loss assigned to an edge whose removal would leave
// virtually no surviving probability mass for the word (log(1e20)).
var removalLossFloor = math.Log(1e20)

// RemovalLosses estimates, for every edge, the increase in -log P(word) if
// that edge were removed from the lattice: the word's probability mass minus
// the edge's own contribution, recomputed in log space. If removing the edge
// would leave less than 1e-20 of the original mass, the loss is floored
// rather than computed from a near-zero denominator.
func (l *Lattice) RemovalLosses() []float64 {
	fwd := l.ForwardSum()
	bwd := l.BackwardSum()
	total := fwd[l.count-1]
	probWord := math.Exp(total)

	out := make([]float64, len(l.edges))
	for i, e := range l.edges {
		edgeLogProb := fwd[e.Start] + e.Logit + bwd[e.End]
		contribution := math.Exp(edgeLogProb)
		probWordRemoved := probWord - contribution
		if probWordRemoved <= 1e-20*probWord {
			out[i] = removalLossFloor
			continue
		}
		out[i] = total - math.Log(probWordRemoved)
	}
	return out
}
