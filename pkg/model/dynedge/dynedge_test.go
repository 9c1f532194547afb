package dynedge

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/stretchr/testify/require"
)

func TestKNN(t *testing.T) {
	points := [][]float64{
		{0, 0, 0, 9},
		{1, 0, 0, 9},
		{3, 0, 0, 9},
		{0, 2, 0, 9},
	}
	require.Equal(t, [][]int{
		{1, 3},
		{0, 2},
		{1, 0},
		{0, 1},
	}, KNN(points, 2))

	require.Equal(t, [][]int{{}}, KNN(points[:1], 3))
}

func TestHomophily(t *testing.T) {
	points := [][]float64{
		{0, 0, 1, 5},
		{0, 1, 1, 6},
		{0, 2, 2, 6},
	}
	neighbours := [][]int{{1}, {2}, {0, 1}}
	h := Homophily(points, neighbours)
	require.InDeltaSlice(t, []float64{1, 0, 0.25, 0.5}, h, 1e-12)

	require.Equal(t, []float64{0, 0, 0, 0}, Homophily(points[:1], [][]int{{}}))
}

func TestGlobalVariables(t *testing.T) {
	points := make([][]float64, 10)
	for i := range points {
		points[i] = []float64{float64(i), 0, 0, 0}
	}
	vars := GlobalVariables(points, 3)
	require.Len(t, vars, NumGlobalVariables)
	require.InDelta(t, 1, vars[4], 1e-12)
	require.InDelta(t, 1, vars[1], 1e-12)
}

func testConfig() Config {
	return Config{
		Inputs:         6,
		Neighbours:     2,
		Layers:         [][]int{{8, 8}, {6, 6}},
		PostProcessing: []int{10, 4},
		LayerNorm:      true,
	}
}

func TestConfig(t *testing.T) {
	c := testConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, 6+NumGlobalVariables+8+6, c.skipSize())
	require.Equal(t, 4, c.OutputSize())

	d := DefaultConfig(6, 384)
	require.NoError(t, d.Validate())
	require.Equal(t, 192, d.OutputSize())
	require.Equal(t, 9, d.Neighbours)

	c.Layers = [][]int{{8, 2}}
	require.Error(t, c.Validate())
	c = testConfig()
	c.Neighbours = 0
	require.Error(t, c.Validate())
}

func TestModel_Forward(t *testing.T) {
	m := New(testConfig())
	m.Init(rand.NewLockedRand(11))

	features := [][]float64{
		{0.1, 0.2, 0.3, 0.0, 0.1, 0},
		{0.5, 0.1, 0.0, 0.1, 0.2, 1},
		{0.2, 0.2, 0.2, 0.2, 0.3, 0},
		{0.9, 0.9, 0.9, 0.1, 0.0, 0},
		{0.3, 0.0, 0.1, 0.3, 0.1, 1},
	}
	batch := []int{0, 0, 1, 1, 2}
	ys, err := m.Forward(features, batch, 4)
	require.NoError(t, err)
	require.Len(t, ys, len(features))
	for _, y := range ys {
		require.Equal(t, 4, y.Value().Size())
		for _, v := range y.Value().Data().F64() {
			require.False(t, math.IsNaN(v))
		}
	}

	// events are independent graphs
	alone, err := m.Forward(features[:2], []int{0, 0}, 1)
	require.NoError(t, err)
	require.InDeltaSlice(t, alone[0].Value().Data().F64(), ys[0].Value().Data().F64(), 1e-12)

	_, err = m.Forward(features, batch[:2], 4)
	require.Error(t, err)
	_, err = m.Forward([][]float64{{0, 0, 0}}, []int{0}, 1)
	require.Error(t, err)
	_, err = m.Forward(features[:1], []int{1}, 1)
	require.Error(t, err)
}
