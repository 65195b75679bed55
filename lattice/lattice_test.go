package lattice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViterbiPicksHighestScoringPath(t *testing.T) {
	l := New(3)
	l.AddEdge(0, 1, -1.0, "a")
	l.AddEdge(1, 2, -1.0, "b")
	l.AddEdge(0, 2, -3.0, "ab")

	path, score := l.Viterbi()
	require.Len(t, path, 2)
	assert.InDelta(t, -2.0, score, 1e-9)
	assert.Equal(t, "a", l.Edges()[path[0]].Data)
	assert.Equal(t, "b", l.Edges()[path[1]].Data)
}

func TestViterbiNoPathReturnsNegInf(t *testing.T) {
	l := New(3)
	l.AddEdge(0, 1, 0, "a")
	_, score := l.Viterbi()
	assert.True(t, math.IsInf(score, -1))
}

func TestForwardBackwardSumAgreeOnTotal(t *testing.T) {
	l := New(3)
	l.AddEdge(0, 1, -1.0, "a")
	l.AddEdge(1, 2, -1.0, "b")
	l.AddEdge(0, 2, -3.0, "ab")

	fwd := l.ForwardSum()
	bwd := l.BackwardSum()
	assert.InDelta(t, fwd[2], bwd[0], 1e-9)
}

func TestMarginalLogitsAreAtMostZero(t *testing.T) {
	l := New(3)
	l.AddEdge(0, 1, -1.0, "a")
	l.AddEdge(1, 2, -1.0, "b")
	l.AddEdge(0, 2, -3.0, "ab")

	marginals := l.MarginalLogits()
	// Each marginal is log P(edge | word), so no edge can carry more than
	// probability 1.
	for _, m := range marginals {
		assert.LessOrEqual(t, m, 1e-9)
	}
}

func TestRemovalLossesFloorsNearTotalDependency(t *testing.T) {
	l := New(2)
	l.AddEdge(0, 1, 0, "only")

	losses := l.RemovalLosses()
	require.Len(t, losses, 1)
	assert.InDelta(t, math.Log(1e20), losses[0], 1e-6)
}

func TestRemovalLossesSmallForRedundantEdge(t *testing.T) {
	l := New(3)
	l.AddEdge(0, 1, -0.01, "a")
	l.AddEdge(1, 2, -0.01, "b")
	l.AddEdge(0, 2, -0.02, "ab")

	losses := l.RemovalLosses()
	// Removing "ab" leaves the a->b path with half the mass, so the loss is
	// about log 2 rather than the floor.
	assert.Less(t, losses[2], math.Log(1e20))
}
