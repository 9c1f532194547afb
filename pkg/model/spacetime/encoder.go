package spacetime

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/nn/linear"

	"deepice/pkg/model/block"
	"deepice/pkg/model/fourier"
)

const (
	// lightSpeed converts standardized time differences into standardized distances
	lightSpeed = 3e4 / 500 * 3e-1

	distanceClip  = 4.0
	distanceScale = 1024.0
)

var (
	_ nn.Model           = &Encoder{}
	_ block.RelativeBias = &Bias{}
)

// Encoder derives a relative attention bias from the Minkowski four-distance between
// every pair of pulses of an event.
type Encoder struct {
	nn.Module
	Size       int
	Embedding  *fourier.Sinusoidal
	Projection *linear.Model
}

// NewEncoder returns an encoder producing biases for attention heads of the given size.
func NewEncoder(headSize int) *Encoder {
	return &Encoder{
		Size:       headSize,
		Embedding:  fourier.NewSinusoidal(headSize, false),
		Projection: linear.New[float64](headSize, headSize),
	}
}

func (m *Encoder) Init(generator *rand.LockedRand) {
	block.InitLinear(generator, m.Projection)
}

// FourDistance is the signed square root of the spacetime interval between two pulses.
func FourDistance(a, b []float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	dt := (a[3] - b[3]) * lightSpeed
	s := dx*dx + dy*dy + dz*dz - dt*dt
	if s < 0 {
		return -math.Sqrt(-s)
	}
	return math.Sqrt(s)
}

// Forward computes the relative bias for one padded sequence of pulses.
func (m *Encoder) Forward(seq [][]float64) (*Bias, error) {
	rows := make([]ag.Node, len(seq))
	for i, a := range seq {
		if len(a) < 4 {
			return nil, fmt.Errorf("pulse %d has %d features, need x, y, z and t", i, len(a))
		}
		data := make([]float64, 0, len(seq)*m.Size)
		for _, b := range seq {
			d := math.Max(-distanceClip, math.Min(distanceClip, FourDistance(a, b)))
			data = append(data, m.Embedding.Values(distanceScale*d)...)
		}
		rows[i] = ag.Var(mat.NewDense(len(seq), m.Size, data))
	}
	return &Bias{Embeddings: rows, Projection: m.Projection}, nil
}

// Bias holds, for each query position, the embedded distances to every key. The learned
// projection is applied lazily against the query, which avoids materializing the
// projected pairwise tensor.
type Bias struct {
	Embeddings []ag.Node
	Projection *linear.Model
}

// Scores returns q . Projection(e_ij) for every key j, computed as E_i (W^T q) + b . q.
func (b *Bias) Scores(i int, q ag.Node) ag.Node {
	u := ag.Mul(ag.T(b.Projection.W), q)
	return ag.AddScalar(ag.Mul(b.Embeddings[i], u), ag.Dot(b.Projection.B, q))
}
