package block

import (
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/nn/linear"
)

var _ nn.Model = &Attention{}

// RelativeBias provides a pairwise attention bias for the positions of one sequence.
type RelativeBias interface {
	// Scores returns the bias of query position i against every key, given the
	// (already scaled) query vector q of one head.
	Scores(i int, q ag.Node) ag.Node
}

// Attention is multi-head scaled dot-product self-attention with an additive key mask
// and an optional relative position bias.
type Attention struct {
	nn.Module
	Query    []*linear.Model
	Key      []*linear.Model
	Value    []*linear.Model
	Output   *linear.Model
	HeadSize int
}

func NewAttention(dim, numHeads int) *Attention {
	headSize := dim / numHeads
	m := &Attention{
		Query:    make([]*linear.Model, numHeads),
		Key:      make([]*linear.Model, numHeads),
		Value:    make([]*linear.Model, numHeads),
		Output:   linear.New[float64](numHeads*headSize, dim),
		HeadSize: headSize,
	}
	for h := 0; h < numHeads; h++ {
		m.Query[h] = linear.New[float64](dim, headSize)
		m.Key[h] = linear.New[float64](dim, headSize)
		m.Value[h] = linear.New[float64](dim, headSize)
	}
	return m
}

func (m *Attention) Init(generator *rand.LockedRand) {
	for h := range m.Query {
		InitLinear(generator, m.Query[h], m.Key[h], m.Value[h])
	}
	InitLinear(generator, m.Output)
}

// Forward attends every position of xs over the positions whose keyBias is finite.
// keyBias holds 0 for attendable keys and -Inf for padding; rel may be nil.
// A query without any attendable key gets a zero context vector.
func (m *Attention) Forward(xs []ag.Node, keyBias []float64, rel RelativeBias) []ag.Node {
	if len(xs) == 0 {
		return nil
	}
	attendable := false
	for _, b := range keyBias {
		if !math.IsInf(b, -1) {
			attendable = true
			break
		}
	}

	scale := ag.Var(mat.NewScalar(1.0 / math.Sqrt(float64(m.HeadSize))))
	mask := ag.Var(mat.NewVecDense(keyBias))

	contexts := make([][]ag.Node, len(xs))
	for i := range contexts {
		contexts[i] = make([]ag.Node, len(m.Query))
	}
	for h := range m.Query {
		if !attendable {
			for i := range xs {
				contexts[i][h] = ag.Var(mat.NewEmptyVecDense[float64](m.HeadSize))
			}
			continue
		}
		queries := m.Query[h].Forward(xs...)
		keys := ag.Stack(m.Key[h].Forward(xs...)...)
		values := ag.T(ag.Stack(m.Value[h].Forward(xs...)...))
		for i, q := range queries {
			q = ag.ProdScalar(q, scale)
			scores := ag.Mul(keys, q)
			if rel != nil {
				scores = ag.Add(scores, rel.Scores(i, q))
			}
			weights := ag.Softmax(ag.Add(scores, mask))
			contexts[i][h] = ag.Mul(values, weights)
		}
	}

	ys := make([]ag.Node, len(xs))
	for i := range ys {
		ys[i] = m.Output.Forward(ag.Concat(contexts[i]...))[0]
	}
	return ys
}
