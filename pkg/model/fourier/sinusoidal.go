package fourier

import (
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
)

// DefaultNumFrequencies is the base of the geometric frequency progression.
const DefaultNumFrequencies = 10000.0

var _ nn.Model = &Sinusoidal{}

// Sinusoidal embeds a scalar into Dim sine/cosine features of geometrically spaced
// frequencies. When Scaled is set the embedding is multiplied by a learned scale.
type Sinusoidal struct {
	nn.Module
	Dim            int
	NumFrequencies float64
	Scaled         bool
	Scale          nn.Param `spago:"type:weights"`
}

func NewSinusoidal(dim int, scaled bool) *Sinusoidal {
	m := &Sinusoidal{
		Dim:            dim,
		NumFrequencies: DefaultNumFrequencies,
		Scaled:         scaled,
	}
	if scaled {
		m.Scale = nn.NewParam(mat.NewScalar(math.Pow(float64(dim), -0.5)))
	}
	return m
}

// Values returns the unscaled embedding of x.
func (m *Sinusoidal) Values(x float64) []float64 {
	half := m.Dim / 2
	step := math.Log(m.NumFrequencies) / float64(half)
	out := make([]float64, 2*half)
	for k := 0; k < half; k++ {
		arg := x * math.Exp(-float64(k)*step)
		out[k] = math.Sin(arg)
		out[half+k] = math.Cos(arg)
	}
	return out
}

// Forward embeds each value of xs.
func (m *Sinusoidal) Forward(xs ...float64) []ag.Node {
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = m.scale(ag.Var(mat.NewVecDense(m.Values(x))))
	}
	return ys
}

func (m *Sinusoidal) scale(x ag.Node) ag.Node {
	if !m.Scaled {
		return x
	}
	return ag.ProdScalar(x, m.Scale)
}
