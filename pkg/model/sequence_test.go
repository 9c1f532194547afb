package model

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/require"
)

func TestPackSequences(t *testing.T) {
	b := &EventBatch{
		Features: [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
		Batch:    []int{1, 0, 1, 1},
		// event 2 has no pulses
		NumEvents: 3,
	}

	p, err := PackSequences(b)
	require.NoError(t, err)
	require.Equal(t, 3, p.MaxLength)
	require.Equal(t, []int{1, 3, 0}, p.Lengths)

	want := [][][]float64{
		{{2, 2}, {0, 0}, {0, 0}},
		{{1, 1}, {3, 3}, {4, 4}},
		{{0, 0}, {0, 0}, {0, 0}},
	}
	if diff := cmp.Diff(want, p.Values); diff != "" {
		t.Errorf("padded values mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, [][]bool{
		{true, false, false},
		{true, true, true},
		{false, false, false},
	}, p.Mask)
}

func TestPackSequences_Errors(t *testing.T) {
	tests := []struct {
		name  string
		batch *EventBatch
	}{
		{
			name:  "batch length mismatch",
			batch: &EventBatch{Features: [][]float64{{1}, {2}}, Batch: []int{0}, NumEvents: 1},
		},
		{
			name:  "negative batch index",
			batch: &EventBatch{Features: [][]float64{{1}}, Batch: []int{-1}, NumEvents: 1},
		},
		{
			name:  "batch index out of range",
			batch: &EventBatch{Features: [][]float64{{1}}, Batch: []int{2}, NumEvents: 2},
		},
		{
			name:  "ragged rows",
			batch: &EventBatch{Features: [][]float64{{1, 2}, {1}}, Batch: []int{0, 0}, NumEvents: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PackSequences(tt.batch)
			require.Error(t, err)
		})
	}
}

func TestPadded_Extend(t *testing.T) {
	p, err := PackSequences(NewEventBatch([][][]float64{{{1}, {2}}, {{3}}}))
	require.NoError(t, err)

	p.Extend(4)
	require.Equal(t, 4, p.MaxLength)
	require.Equal(t, []bool{true, true, false, false}, p.Mask[0])
	require.Equal(t, []bool{true, false, false, false}, p.Mask[1])
	require.Equal(t, []float64{0}, p.Values[1][3])

	p.Extend(2)
	require.Equal(t, 4, p.MaxLength)
}

func TestPackNodes(t *testing.T) {
	nodes := []ag.Node{
		ag.Var(mat.NewVecDense([]float64{1, 1})),
		ag.Var(mat.NewVecDense([]float64{2, 2})),
		ag.Var(mat.NewVecDense([]float64{3, 3})),
	}
	packed, err := PackNodes(nodes, []int{0, 1, 0}, 3, 3)
	require.NoError(t, err)
	require.Len(t, packed, 3)
	for _, seq := range packed {
		require.Len(t, seq, 3)
	}
	require.Equal(t, []float64{1, 1}, packed[0][0].Value().Data().F64())
	require.Equal(t, []float64{3, 3}, packed[0][1].Value().Data().F64())
	require.Equal(t, []float64{0, 0}, packed[0][2].Value().Data().F64())
	require.Equal(t, []float64{2, 2}, packed[1][0].Value().Data().F64())
	require.Equal(t, []float64{0, 0}, packed[2][0].Value().Data().F64())

	_, err = PackNodes(nodes, []int{0, 1, 0}, 3, 1)
	require.Error(t, err)
}

func TestAttentionBias(t *testing.T) {
	bias := AttentionBias(prependValid([]bool{true, false}))
	require.Len(t, bias, 3)
	require.Equal(t, 0.0, bias[0])
	require.Equal(t, 0.0, bias[1])
	require.True(t, math.IsInf(bias[2], -1))
}
