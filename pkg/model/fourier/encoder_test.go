package fourier

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/stretchr/testify/require"
)

func TestSinusoidal_Values(t *testing.T) {
	m := NewSinusoidal(8, false)

	require.Equal(t, []float64{0, 0, 0, 0, 1, 1, 1, 1}, m.Values(0))

	v := m.Values(2)
	require.Len(t, v, 8)
	require.InDelta(t, math.Sin(2), v[0], 1e-12)
	require.InDelta(t, math.Cos(2), v[4], 1e-12)
	require.InDelta(t, math.Sin(2*math.Exp(-math.Log(DefaultNumFrequencies)/4)), v[1], 1e-12)
	for k := 0; k < 4; k++ {
		require.InDelta(t, 1, v[k]*v[k]+v[k+4]*v[k+4], 1e-12)
	}
}

func TestSinusoidal_Forward_Scaled(t *testing.T) {
	m := NewSinusoidal(16, true)
	y := m.Forward(0)[0].Value().Data().F64()
	require.Len(t, y, 16)
	require.InDelta(t, 0.25, y[8], 1e-12)

	unscaled := NewSinusoidal(16, false).Forward(0)[0].Value().Data().F64()
	require.Equal(t, 1.0, unscaled[8])
}

func TestEncoder_Forward(t *testing.T) {
	m := NewEncoder(8, 12, false)
	m.Init(rand.NewLockedRand(7))

	seq := [][]float64{
		{0.1, 0.2, -0.3, 0.01, 0.1, 0},
		{0.2, 0.1, 0.3, 0.02, 0.2, 1},
		{0, 0, 0, 0, 0, 0},
	}
	ys, err := m.Forward(seq, 2)
	require.NoError(t, err)
	require.Len(t, ys, 3)
	for _, y := range ys {
		require.Equal(t, 12, y.Value().Size())
	}

	ys, err = m.Forward(nil, 0)
	require.NoError(t, err)
	require.Empty(t, ys)
}

func TestEncoder_Forward_Errors(t *testing.T) {
	m := NewEncoder(8, 12, false)
	m.Init(rand.NewLockedRand(7))

	_, err := m.Forward([][]float64{{0, 0, 0, 0, 0}}, 1)
	require.Error(t, err)

	for _, aux := range []float64{-1, 2, 0.5} {
		_, err = m.Forward([][]float64{{0, 0, 0, 0, 0, aux}}, 1)
		require.Error(t, err, "auxiliary %v", aux)
	}
}
