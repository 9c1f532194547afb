package block

import (
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

// MLPRatio is the width of the feed-forward hidden layer relative to the model width.
const MLPRatio = 4

var (
	_ nn.Model = &Block{}
	_ nn.Model = &RelBlock{}
)

// Block is a pre-norm transformer block with layer scale.
type Block struct {
	nn.Module
	AttentionNorm *LayerNorm
	Attention     *Attention
	MLPNorm       *LayerNorm
	MLP           *MLP
	Gamma1        nn.Param `spago:"type:weights"`
	Gamma2        nn.Param `spago:"type:weights"`
}

func NewBlock(dim, numHeads int) *Block {
	return &Block{
		AttentionNorm: NewLayerNorm(dim),
		Attention:     NewAttention(dim, numHeads),
		MLPNorm:       NewLayerNorm(dim),
		MLP:           NewMLP(dim, MLPRatio*dim),
		Gamma1:        nn.NewParam(mat.NewInitVecDense[float64](dim, 1.0)),
		Gamma2:        nn.NewParam(mat.NewInitVecDense[float64](dim, 1.0)),
	}
}

func (m *Block) Init(generator *rand.LockedRand) {
	m.Attention.Init(generator)
	m.MLP.Init(generator)
}

// Forward applies the block to one sequence. keyBias masks padded keys.
func (m *Block) Forward(xs []ag.Node, keyBias []float64) []ag.Node {
	if len(xs) == 0 {
		return xs
	}
	attended := m.Attention.Forward(m.AttentionNorm.Forward(xs...), keyBias, nil)
	h := make([]ag.Node, len(xs))
	for i := range xs {
		h[i] = ag.Add(xs[i], ag.Prod(m.Gamma1, attended[i]))
	}
	transformed := m.MLP.Forward(m.MLPNorm.Forward(h...)...)
	out := make([]ag.Node, len(xs))
	for i := range h {
		out[i] = ag.Add(h[i], ag.Prod(m.Gamma2, transformed[i]))
	}
	return out
}

// RelBlock is a pre-norm transformer block whose attention accepts a relative position bias.
type RelBlock struct {
	nn.Module
	AttentionNorm *LayerNorm
	Attention     *Attention
	MLPNorm       *LayerNorm
	MLP           *MLP
}

func NewRelBlock(dim, numHeads int) *RelBlock {
	return &RelBlock{
		AttentionNorm: NewLayerNorm(dim),
		Attention:     NewAttention(dim, numHeads),
		MLPNorm:       NewLayerNorm(dim),
		MLP:           NewMLP(dim, MLPRatio*dim),
	}
}

func (m *RelBlock) Init(generator *rand.LockedRand) {
	m.Attention.Init(generator)
	m.MLP.Init(generator)
}

// Forward applies the block to one sequence. rel may be nil.
func (m *RelBlock) Forward(xs []ag.Node, keyBias []float64, rel RelativeBias) []ag.Node {
	if len(xs) == 0 {
		return xs
	}
	attended := m.Attention.Forward(m.AttentionNorm.Forward(xs...), keyBias, rel)
	h := make([]ag.Node, len(xs))
	for i := range xs {
		h[i] = ag.Add(xs[i], attended[i])
	}
	transformed := m.MLP.Forward(m.MLPNorm.Forward(h...)...)
	out := make([]ag.Node, len(xs))
	for i := range h {
		out[i] = ag.Add(h[i], transformed[i])
	}
	return out
}
