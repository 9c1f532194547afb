package spacetime

import (
	"testing"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/stretchr/testify/require"
)

func TestFourDistance(t *testing.T) {
	// space-like
	require.InDelta(t, 5, FourDistance([]float64{0, 0, 0, 0}, []float64{3, 4, 0, 0}), 1e-12)
	// time-like
	require.InDelta(t, -lightSpeed, FourDistance([]float64{0, 0, 0, 0}, []float64{0, 0, 0, 1}), 1e-12)
	require.Equal(t, 0.0, FourDistance([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4}))

	a := []float64{0.1, -0.2, 0.3, 0.05}
	b := []float64{-0.4, 0.1, 0.2, -0.01}
	require.Equal(t, FourDistance(a, b), FourDistance(b, a))
}

func TestEncoder_Forward(t *testing.T) {
	m := NewEncoder(4)
	m.Init(rand.NewLockedRand(5))

	seq := [][]float64{
		{0, 0, 0, 0},
		{0.001, 0, 0, 0},
		{10, 0, 0, 0},
	}
	bias, err := m.Forward(seq)
	require.NoError(t, err)
	require.Len(t, bias.Embeddings, 3)

	e := bias.Embeddings[0].Value()
	require.Equal(t, 3, e.Rows())
	// distances are clipped to 4 before the embedding
	clipped := m.Embedding.Values(distanceScale * distanceClip)
	require.InDeltaSlice(t, clipped, e.Data().F64()[8:12], 1e-12)
	require.InDeltaSlice(t, m.Embedding.Values(0), e.Data().F64()[0:4], 1e-12)

	_, err = m.Forward([][]float64{{0, 0, 0}})
	require.Error(t, err)
}

func TestBias_Scores(t *testing.T) {
	m := NewEncoder(4)
	m.Init(rand.NewLockedRand(5))
	m.Projection.B = nn.NewParam(mat.NewVecDense([]float64{0, 0.5, 0, -0.25}))

	seq := [][]float64{{0, 0, 0, 0}, {0.01, 0.02, 0, 0.001}}
	bias, err := m.Forward(seq)
	require.NoError(t, err)

	q := ag.Var(mat.NewVecDense([]float64{0.3, -0.1, 0.2, 0.7}))
	scores := bias.Scores(1, q).Value().Data().F64()
	require.Len(t, scores, 2)

	// compare with projecting every pairwise embedding before the dot product
	for j := range seq {
		e := m.Embedding.Values(distanceScale * FourDistance(seq[1], seq[j]))
		projected := m.Projection.Forward(ag.Var(mat.NewVecDense(e)))[0].Value().Data().F64()
		want := 0.0
		for k, v := range projected {
			want += v * q.Value().Data().F64()[k]
		}
		require.InDelta(t, want, scores[j], 1e-9)
	}
}
