package model

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/initializers"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"

	"deepice/pkg/model/block"
	"deepice/pkg/model/dynedge"
	"deepice/pkg/model/fourier"
	"deepice/pkg/model/spacetime"
)

func init() {
	gob.Register(NoFuser{})
	gob.Register(&GraphFuser{})
	gob.Register(&dynedge.Model{})
}

var _ nn.Model = &DeepIce{}

// DeepIce is an implementation of the IceMix model of the 2nd place solution of the
// "IceCube - Neutrinos in Deep Ice" Kaggle competition. It embeds the pulses of each event,
// runs a stack of transformer blocks with a relative spacetime bias, and aggregates the
// event into a learned classification token processed by a second transformer stack.
type DeepIce struct {
	nn.Module
	Config
	Fourier        *fourier.Encoder
	RelPos         *spacetime.Encoder
	RelBlocks      []*block.RelBlock
	RelBiasEnabled []bool
	ClsToken       nn.Param `spago:"type:weights"`
	Blocks         []*block.Block
	Fuser          Fuser
}

func New(config Config) *DeepIce {
	numHeads := config.NumHeads()
	m := &DeepIce{
		Config:         config,
		Fourier:        fourier.NewEncoder(config.DimBase, config.FourierSize(), config.ScaledEmbedding),
		RelPos:         spacetime.NewEncoder(config.HeadSize),
		RelBlocks:      make([]*block.RelBlock, config.DepthRel),
		RelBiasEnabled: config.RelBiasEnabled(),
		ClsToken:       nn.NewParam(mat.NewEmptyVecDense[float64](config.Dim)),
		Blocks:         make([]*block.Block, config.Depth),
		Fuser:          NoFuser{},
	}
	for i := range m.RelBlocks {
		m.RelBlocks[i] = block.NewRelBlock(config.Dim, numHeads)
	}
	for i := range m.Blocks {
		m.Blocks[i] = block.NewBlock(config.Dim, numHeads)
	}
	if g, ok := config.GraphConfig(); ok {
		m.Fuser = &GraphFuser{Encoder: dynedge.New(g)}
	}
	return m
}

func (m *DeepIce) Init(generator *rand.LockedRand) {
	m.Fourier.Init(generator)
	m.RelPos.Init(generator)
	for _, b := range m.RelBlocks {
		b.Init(generator)
	}
	initializers.XavierUniform(m.ClsToken.Value(), 1.0, generator)
	for _, b := range m.Blocks {
		b.Init(generator)
	}
	m.Fuser.Init(generator)
}

// Forward returns one vector of width Dim per event of the batch.
func (m *DeepIce) Forward(b *EventBatch) ([]ag.Node, error) {
	x0, err := PackSequences(b)
	if err != nil {
		return nil, err
	}
	return m.forward(b, x0)
}

func (m *DeepIce) forward(b *EventBatch, x0 *Padded) ([]ag.Node, error) {
	xs := make([][]ag.Node, len(x0.Values))
	for e := range xs {
		var err error
		xs[e], err = m.Fourier.Forward(x0.Values[e], x0.Lengths[e])
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e, err)
		}
	}
	xs, err := m.Fuser.Fuse(b, xs, x0.MaxLength)
	if err != nil {
		return nil, err
	}
	if x0.MaxLength > 0 && xs[0][0].Value().Size() != m.Dim {
		return nil, fmt.Errorf("shape mismatch: fused features have width %d, model width is %d", xs[0][0].Value().Size(), m.Dim)
	}

	out := make([]ag.Node, len(xs))
	for e := range xs {
		y, err := m.forwardEvent(xs[e], x0.Values[e], x0.Mask[e])
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e, err)
		}
		out[e] = y
	}
	return out, nil
}

func (m *DeepIce) forwardEvent(x []ag.Node, raw [][]float64, mask []bool) (ag.Node, error) {
	var rel *spacetime.Bias
	if m.usesRelBias() && len(raw) > 0 {
		var err error
		if rel, err = m.RelPos.Forward(raw); err != nil {
			return nil, err
		}
	}

	keyBias := AttentionBias(mask)
	for i, blk := range m.RelBlocks {
		var bias block.RelativeBias
		if m.RelBiasEnabled[i] && rel != nil {
			bias = rel
		}
		x = blk.Forward(x, keyBias, bias)
	}

	keyBias = AttentionBias(prependValid(mask))
	x = append([]ag.Node{m.ClsToken}, x...)
	for _, blk := range m.Blocks {
		x = blk.Forward(x, keyBias)
	}
	return x[0], nil
}

// usesRelBias reports whether any relative block receives the relative bias.
func (m *DeepIce) usesRelBias() bool {
	for _, enabled := range m.RelBiasEnabled {
		if enabled {
			return true
		}
	}
	return false
}

// Fuser merges secondary pulse features into the Fourier embedding of a batch.
type Fuser interface {
	Init(generator *rand.LockedRand)
	Fuse(b *EventBatch, xs [][]ag.Node, maxLength int) ([][]ag.Node, error)
}

// GraphEncoder embeds every pulse of a batch, treating each event as a graph.
type GraphEncoder interface {
	Forward(features [][]float64, batch []int, numEvents int) ([]ag.Node, error)
}

// NoFuser leaves the embedding untouched.
type NoFuser struct{}

func (NoFuser) Init(*rand.LockedRand) {}

func (NoFuser) Fuse(_ *EventBatch, xs [][]ag.Node, _ int) ([][]ag.Node, error) {
	return xs, nil
}

// GraphFuser appends the graph encoder pulse embeddings to the embedding of every position.
type GraphFuser struct {
	Encoder GraphEncoder
}

func (f *GraphFuser) Init(generator *rand.LockedRand) {
	if i, ok := f.Encoder.(interface{ Init(*rand.LockedRand) }); ok {
		i.Init(generator)
	}
}

func (f *GraphFuser) Fuse(b *EventBatch, xs [][]ag.Node, maxLength int) ([][]ag.Node, error) {
	nodes, err := f.Encoder.Forward(b.Features, b.Batch, b.NumEvents)
	if err != nil {
		return nil, fmt.Errorf("graph encoder: %w", err)
	}
	graph, err := PackNodes(nodes, b.Batch, b.NumEvents, maxLength)
	if err != nil {
		return nil, err
	}
	out := make([][]ag.Node, len(xs))
	for e := range xs {
		out[e] = make([]ag.Node, len(xs[e]))
		for i := range xs[e] {
			out[e][i] = ag.Concat(xs[e][i], graph[e][i])
		}
	}
	return out, nil
}

// Values copies the output vectors into plain slices.
func Values(xs []ag.Node) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = append([]float64(nil), x.Value().Data().F64()...)
	}
	return out
}
