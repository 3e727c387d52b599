package rank

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/siherrmann/keygrapher/core/graph"
	"github.com/siherrmann/keygrapher/model"
)

// DefaultTolerance stops the iteration early once no score moves more than this.
const DefaultTolerance = 1e-6

// Ranker scores every node of g. Results are sorted by score descending,
// ties keep discovery order.
type Ranker interface {
	Rank(ctx context.Context, g *graph.Graph, iterations int, damping float64) ([]model.RankedNode, error)
}

// RankerFunc adapts a function to the Ranker interface.
type RankerFunc func(ctx context.Context, g *graph.Graph, iterations int, damping float64) ([]model.RankedNode, error)

func (f RankerFunc) Rank(ctx context.Context, g *graph.Graph, iterations int, damping float64) ([]model.RankedNode, error) {
	return f(ctx, g, iterations, damping)
}

// PowerIteration is a weighted PageRank:
//
//	s(i) = (1-d)/n + d * sum_j w(j,i) / out(j) * s(j)
//
// starting from the uniform distribution.
type PowerIteration struct {
	Tolerance float64
}

// NewPowerIteration returns a PowerIteration with DefaultTolerance.
func NewPowerIteration() *PowerIteration {
	return &PowerIteration{Tolerance: DefaultTolerance}
}

func (p *PowerIteration) Rank(ctx context.Context, g *graph.Graph, iterations int, damping float64) ([]model.RankedNode, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", model.ErrInvalidConfig, iterations)
	}
	if damping <= 0 || damping >= 1 {
		return nil, fmt.Errorf("%w: damping factor must be in (0, 1), got %v", model.ErrInvalidConfig, damping)
	}

	n := g.Len()
	if n == 0 {
		return []model.RankedNode{}, nil
	}

	neighbors := make([][]graph.Neighbor, n)
	outWeight := make([]float64, n)
	for i := range n {
		neighbors[i] = g.Neighbors(i)
		outWeight[i] = g.Degree(i)
	}

	nf := float64(n)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / nf
	}

	for range iterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make([]float64, n)
		maxDelta := 0.0
		for i := range n {
			sum := 0.0
			for _, e := range neighbors[i] {
				if outWeight[e.Node] > 0 {
					sum += e.Weight / outWeight[e.Node] * scores[e.Node]
				}
			}
			next[i] = (1-damping)/nf + damping*sum
			maxDelta = math.Max(maxDelta, math.Abs(next[i]-scores[i]))
		}

		scores = next
		if maxDelta < p.Tolerance {
			break
		}
	}

	ranked := make([]model.RankedNode, n)
	for i, id := range g.Nodes() {
		ranked[i] = model.RankedNode{
			Identity:  id,
			Score:     scores[i],
			AuxWeight: outWeight[i],
		}
	}
	Sort(ranked)

	return ranked, nil
}

// Sort orders nodes by score descending, keeping the input order on ties.
func Sort(nodes []model.RankedNode) {
	slices.SortStableFunc(nodes, func(a, b model.RankedNode) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}

// Top returns at most n nodes of an already sorted ranking.
func Top(nodes []model.RankedNode, n int) []model.RankedNode {
	if len(nodes) <= n {
		return nodes
	}
	return nodes[:n]
}
