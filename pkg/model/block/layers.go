package block

import (
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/initializers"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/nn/linear"
)

// LayerNormEpsilon is the variance epsilon of every layer norm.
const LayerNormEpsilon = 1e-5

var (
	_ nn.Model = &LayerNorm{}
	_ nn.Model = &MLP{}
)

// LayerNorm normalizes each vector to zero mean and unit variance, followed by a learned
// element-wise affine transformation.
type LayerNorm struct {
	nn.Module
	W   nn.Param `spago:"type:weights"`
	B   nn.Param `spago:"type:biases"`
	Eps float64
}

func NewLayerNorm(size int) *LayerNorm {
	return &LayerNorm{
		W:   nn.NewParam(mat.NewInitVecDense[float64](size, 1.0)),
		B:   nn.NewParam(mat.NewEmptyVecDense[float64](size)),
		Eps: LayerNormEpsilon,
	}
}

func (m *LayerNorm) Forward(xs ...ag.Node) []ag.Node {
	eps := ag.Var(mat.NewScalar(m.Eps))
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		mean := ag.ReduceMean(x)
		dev := ag.SubScalar(x, mean)
		stdDev := ag.Sqrt(ag.AddScalar(ag.ReduceMean(ag.Square(dev)), eps))
		ys[i] = ag.Add(ag.Prod(ag.DivScalar(dev, stdDev), m.W), m.B)
	}
	return ys
}

// MLP is the two layer feed-forward network of a transformer block.
type MLP struct {
	nn.Module
	Hidden *linear.Model
	Output *linear.Model
}

func NewMLP(dim, hidden int) *MLP {
	return &MLP{
		Hidden: linear.New[float64](dim, hidden),
		Output: linear.New[float64](hidden, dim),
	}
}

func (m *MLP) Init(generator *rand.LockedRand) {
	InitLinear(generator, m.Hidden, m.Output)
}

func (m *MLP) Forward(xs ...ag.Node) []ag.Node {
	return m.Output.Forward(Map(ag.GELU, m.Hidden.Forward(xs...))...)
}

// InitLinear applies Xavier initialization to the weights of the given layers.
// Biases stay at zero.
func InitLinear(generator *rand.LockedRand, layers ...*linear.Model) {
	for _, l := range layers {
		initializers.XavierUniform(l.W.Value(), 1.0, generator)
	}
}

// Map applies f to each node.
func Map(f func(ag.Node) ag.Node, xs []ag.Node) []ag.Node {
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = f(x)
	}
	return ys
}
