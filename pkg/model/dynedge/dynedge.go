package dynedge

import (
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/nn/linear"

	"deepice/pkg/model/block"
)

// LeakyReLUSlope is the negative slope of the edge convolution activations.
const LeakyReLUSlope = 0.01

var (
	_ nn.Model = &Model{}
	_ nn.Model = &EdgeConv{}
)

// EdgeConv updates every node with the sum over its neighbours j of MLP([x_i, x_j - x_i]).
type EdgeConv struct {
	nn.Module
	Layers []*linear.Model
}

func NewEdgeConv(in int, sizes []int) *EdgeConv {
	layers := make([]*linear.Model, len(sizes))
	prev := 2 * in
	for i, size := range sizes {
		layers[i] = linear.New[float64](prev, size)
		prev = size
	}
	return &EdgeConv{Layers: layers}
}

func (m *EdgeConv) Init(generator *rand.LockedRand) {
	block.InitLinear(generator, m.Layers...)
}

func (m *EdgeConv) OutputSize() int {
	return m.Layers[len(m.Layers)-1].W.Value().Rows()
}

func (m *EdgeConv) Forward(xs []ag.Node, neighbours [][]int) []ag.Node {
	slope := ag.Var(mat.NewScalar(LeakyReLUSlope))
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		var sum ag.Node = ag.Var(mat.NewEmptyVecDense[float64](m.OutputSize()))
		for _, j := range neighbours[i] {
			h := ag.Concat(x, ag.Sub(xs[j], x))
			for _, l := range m.Layers {
				h = ag.LeakyReLU(l.Forward(h)[0], slope)
			}
			sum = ag.Add(sum, h)
		}
		ys[i] = sum
	}
	return ys
}

// Model is a DynEdge graph encoder: a stack of edge convolutions over k-nearest-neighbour
// graphs recomputed from each layer's output, followed by per-node post-processing of the
// concatenated layer outputs. It returns one embedding per pulse and no event-level readout.
type Model struct {
	nn.Module
	Config         Config
	Convolutions   []*EdgeConv
	PostProcessing []*linear.Model
	Norms          []*block.LayerNorm
}

func New(config Config) *Model {
	m := &Model{Config: config}
	in := config.Inputs + NumGlobalVariables
	for _, sizes := range config.Layers {
		conv := NewEdgeConv(in, sizes)
		m.Convolutions = append(m.Convolutions, conv)
		in = conv.OutputSize()
	}
	prev := config.skipSize()
	for _, size := range config.PostProcessing {
		m.PostProcessing = append(m.PostProcessing, linear.New[float64](prev, size))
		if config.LayerNorm {
			m.Norms = append(m.Norms, block.NewLayerNorm(size))
		}
		prev = size
	}
	return m
}

func (m *Model) Init(generator *rand.LockedRand) {
	for _, c := range m.Convolutions {
		c.Init(generator)
	}
	block.InitLinear(generator, m.PostProcessing...)
}

// Forward embeds every pulse row. batch assigns rows to events; the graphs of different
// events are never connected.
func (m *Model) Forward(features [][]float64, batch []int, numEvents int) ([]ag.Node, error) {
	if len(batch) != len(features) {
		return nil, fmt.Errorf("batch assignment has %d entries for %d rows", len(batch), len(features))
	}
	rows := make([][]int, numEvents)
	for row, e := range batch {
		if e < 0 || e >= numEvents {
			return nil, fmt.Errorf("row %d: batch index %d out of range [0, %d)", row, e, numEvents)
		}
		if len(features[row]) != m.Config.Inputs {
			return nil, fmt.Errorf("row %d has %d features, dynedge expects %d", row, len(features[row]), m.Config.Inputs)
		}
		rows[e] = append(rows[e], row)
	}

	out := make([]ag.Node, len(features))
	for _, event := range rows {
		if len(event) == 0 {
			continue
		}
		points := make([][]float64, len(event))
		for i, row := range event {
			points[i] = features[row]
		}
		for i, y := range m.forwardEvent(points) {
			out[event[i]] = y
		}
	}
	return out, nil
}

func (m *Model) forwardEvent(points [][]float64) []ag.Node {
	global := ag.Var(mat.NewVecDense(GlobalVariables(points, m.Config.Neighbours)))
	xs := make([]ag.Node, len(points))
	for i, p := range points {
		xs[i] = ag.Concat(ag.Var(mat.NewVecDense(p)), global)
	}

	skips := make([][]ag.Node, len(xs))
	for i := range xs {
		skips[i] = []ag.Node{xs[i]}
	}
	neighbours := KNN(points, m.Config.Neighbours)
	for _, conv := range m.Convolutions {
		xs = conv.Forward(xs, neighbours)
		for i := range xs {
			skips[i] = append(skips[i], xs[i])
		}
		neighbours = KNN(values(xs), m.Config.Neighbours)
	}

	ys := make([]ag.Node, len(xs))
	for i := range skips {
		ys[i] = ag.Concat(skips[i]...)
	}
	for l, layer := range m.PostProcessing {
		ys = layer.Forward(ys...)
		if m.Config.LayerNorm {
			ys = m.Norms[l].Forward(ys...)
		}
		ys = block.Map(ag.GELU, ys)
	}
	return ys
}

func values(xs []ag.Node) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = x.Value().Data().F64()
	}
	return out
}
