package fourier

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/initializers"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/nn/linear"

	"deepice/pkg/model/block"
)

// Feature columns consumed by the encoder.
const (
	columnX = iota
	columnY
	columnZ
	columnTime
	columnCharge
	columnAuxiliary

	// NumInputs is the minimum number of pulse features the encoder reads
	NumInputs
)

// Input scaling applied before the sinusoidal embedding.
const (
	positionScale = 4096.0
	timeScale     = 4096.0
	chargeScale   = 1024.0
)

var _ nn.Model = &Encoder{}

// Encoder embeds the pulses of an event into the model width. Positions, time and
// charge go through a shared sinusoidal embedding, the auxiliary flag through a learned
// table and the event length through a second, narrower sinusoidal embedding. The
// concatenation (6 * base features) is projected by a small MLP.
type Encoder struct {
	nn.Module
	Base        int
	OutputSize  int
	Embedding   *Sinusoidal
	LengthEmb   *Sinusoidal
	Auxiliary   []nn.Param `spago:"type:weights"`
	Hidden      *linear.Model
	Norm        *block.LayerNorm
	OutputLayer *linear.Model
}

func NewEncoder(base, outputSize int, scaled bool) *Encoder {
	width := 6 * base
	return &Encoder{
		Base:       base,
		OutputSize: outputSize,
		Embedding:  NewSinusoidal(base, scaled),
		LengthEmb:  NewSinusoidal(base/2, false),
		Auxiliary: []nn.Param{
			nn.NewParam(mat.NewEmptyVecDense[float64](base / 2)),
			nn.NewParam(mat.NewEmptyVecDense[float64](base / 2)),
		},
		Hidden:      linear.New[float64](width, width),
		Norm:        block.NewLayerNorm(width),
		OutputLayer: linear.New[float64](width, outputSize),
	}
}

func (m *Encoder) Init(generator *rand.LockedRand) {
	for _, a := range m.Auxiliary {
		initializers.XavierUniform(a.Value(), 1.0, generator)
	}
	block.InitLinear(generator, m.Hidden, m.OutputLayer)
}

// Forward embeds every position of seq, padding included. length is the number of real
// pulses of the event; zero length events are embedded as if they had one pulse.
func (m *Encoder) Forward(seq [][]float64, length int) ([]ag.Node, error) {
	if len(seq) == 0 {
		return nil, nil
	}
	lengthEmb := m.LengthEmb.Forward(math.Log10(math.Max(float64(length), 1)))[0]
	features := make([]ag.Node, len(seq))
	for i, p := range seq {
		if len(p) < NumInputs {
			return nil, fmt.Errorf("pulse %d has %d features, encoder needs %d", i, len(p), NumInputs)
		}
		aux := int(p[columnAuxiliary])
		if aux < 0 || aux >= len(m.Auxiliary) || float64(aux) != p[columnAuxiliary] {
			return nil, fmt.Errorf("pulse %d: auxiliary value %v out of range [0, %d)", i, p[columnAuxiliary], len(m.Auxiliary))
		}
		emb := m.Embedding.Forward(
			positionScale*p[columnX],
			positionScale*p[columnY],
			positionScale*p[columnZ],
			chargeScale*p[columnCharge],
			timeScale*p[columnTime],
		)
		features[i] = ag.Concat(append(emb, m.Auxiliary[aux], lengthEmb)...)
	}
	h := m.Hidden.Forward(features...)
	h = block.Map(ag.GELU, m.Norm.Forward(h...))
	return m.OutputLayer.Forward(h...), nil
}
