package model

import (
	"math"
	"strings"
	"testing"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/stretchr/testify/require"

	"deepice/pkg/model/dynedge"
)

const testDelta = 1e-9

func testConfig() Config {
	return Config{
		Dim:         16,
		DimBase:     8,
		Depth:       2,
		HeadSize:    8,
		DepthRel:    2,
		NRel:        1,
		NumFeatures: NumPulseFeatures,
		Fusion:      NoFusion{},
	}
}

func newTestModel(t *testing.T, config Config) *DeepIce {
	require.NoError(t, config.Validate())
	m := New(config)
	m.Init(rand.NewLockedRand(42))
	return m
}

func testEvent(n int, offset float64) [][]float64 {
	pulses := make([][]float64, n)
	for i := range pulses {
		f := float64(i) + offset
		pulses[i] = []float64{0.1 * f, -0.05 * f, 0.02 * f, 0.01*f - 0.3, 0.1 + 0.01*f, float64(i % 2)}
	}
	return pulses
}

func requireFinite(t *testing.T, values [][]float64) {
	for e, v := range values {
		for i, x := range v {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "event %d value %d is %v", e, i, x)
		}
	}
}

func TestDeepIce_Forward_Shape(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
	}{
		{name: "single event", lengths: []int{5}},
		{name: "varying lengths", lengths: []int{1, 7, 3}},
		{name: "with empty event", lengths: []int{4, 0, 2}},
		{name: "only empty events", lengths: []int{0, 0}},
	}

	m := newTestModel(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make([][][]float64, len(tt.lengths))
			for i, n := range tt.lengths {
				events[i] = testEvent(n, float64(i))
			}
			result, err := m.Forward(NewEventBatch(events))
			require.NoError(t, err)
			require.Len(t, result, len(tt.lengths))
			for _, r := range result {
				require.Equal(t, m.Dim, r.Value().Size())
			}
			requireFinite(t, Values(result))
		})
	}
}

func TestDeepIce_Forward_PaddingInvariance(t *testing.T) {
	m := newTestModel(t, testConfig())
	b := NewEventBatch([][][]float64{testEvent(4, 0)})

	x0, err := PackSequences(b)
	require.NoError(t, err)
	want, err := m.forward(b, x0)
	require.NoError(t, err)

	padded, err := PackSequences(b)
	require.NoError(t, err)
	padded.Extend(9)
	got, err := m.forward(b, padded)
	require.NoError(t, err)
	require.InDeltaSlice(t, Values(want)[0], Values(got)[0], testDelta)

	// the same event batched with a longer one is padded as well
	batched, err := m.Forward(NewEventBatch([][][]float64{testEvent(4, 0), testEvent(11, 3)}))
	require.NoError(t, err)
	require.InDeltaSlice(t, Values(want)[0], Values(batched)[0], testDelta)
}

func TestDeepIce_Forward_EmptyEvent(t *testing.T) {
	m := newTestModel(t, testConfig())

	result, err := m.Forward(&EventBatch{NumEvents: 1})
	require.NoError(t, err)
	alone := Values(result)
	requireFinite(t, alone)

	// an empty event only sees the classification token, whatever else is in the batch
	result, err = m.Forward(NewEventBatch([][][]float64{testEvent(6, 1), nil}))
	require.NoError(t, err)
	batched := Values(result)
	requireFinite(t, batched)
	require.InDeltaSlice(t, alone[0], batched[1], testDelta)
}

func TestDeepIce_Forward_Deterministic(t *testing.T) {
	m := newTestModel(t, testConfig())
	b := NewEventBatch([][][]float64{testEvent(3, 0), testEvent(5, 2)})

	first, err := m.Forward(b)
	require.NoError(t, err)
	second, err := m.Forward(b)
	require.NoError(t, err)
	require.Equal(t, Values(first), Values(second))

	other := newTestModel(t, testConfig())
	third, err := other.Forward(b)
	require.NoError(t, err)
	require.Equal(t, Values(first), Values(third))
}

func TestDeepIce_RelativeBias(t *testing.T) {
	config := testConfig()
	config.DepthRel = 4
	config.NRel = 2
	require.Equal(t, []bool{true, true, false, false}, config.RelBiasEnabled())

	config.NRel = 0
	require.Equal(t, []bool{false, false, false, false}, config.RelBiasEnabled())

	m := newTestModel(t, testConfig())
	b := NewEventBatch([][][]float64{testEvent(5, 0)})
	withBias, err := m.Forward(b)
	require.NoError(t, err)

	m.NRel = 0
	m.RelBiasEnabled = m.Config.RelBiasEnabled()
	withoutBias, err := m.Forward(b)
	require.NoError(t, err)
	require.Len(t, withoutBias, 1)
	require.Equal(t, m.Dim, withoutBias[0].Value().Size())
	requireFinite(t, Values(withoutBias))
	require.NotEqual(t, Values(withBias), Values(withoutBias))
}

func TestDeepIce_RelativeBias_LeadingBlocksOnly(t *testing.T) {
	m := newTestModel(t, testConfig())
	require.Equal(t, []bool{true, false}, m.RelBiasEnabled)

	event := testEvent(5, 0)
	b := NewEventBatch([][][]float64{event})
	got, err := m.Forward(b)
	require.NoError(t, err)

	// run the stacks by hand, the second relative block without bias
	x, err := m.Fourier.Forward(event, len(event))
	require.NoError(t, err)
	rel, err := m.RelPos.Forward(event)
	require.NoError(t, err)
	mask := []bool{true, true, true, true, true}
	keyBias := AttentionBias(mask)
	x = m.RelBlocks[0].Forward(x, keyBias, rel)
	x = m.RelBlocks[1].Forward(x, keyBias, nil)
	x = append([]ag.Node{m.ClsToken}, x...)
	keyBias = AttentionBias(prependValid(mask))
	for _, blk := range m.Blocks {
		x = blk.Forward(x, keyBias)
	}
	require.InDeltaSlice(t, x[0].Value().Data().F64(), Values(got)[0], testDelta)

	m.RelBiasEnabled = []bool{true, true}
	everywhere, err := m.Forward(b)
	require.NoError(t, err)
	require.NotEqual(t, Values(got), Values(everywhere))

	// the list alone decides, whatever the counter says
	m.NRel = 0
	m.RelBiasEnabled = []bool{true, false}
	listed, err := m.Forward(b)
	require.NoError(t, err)
	require.Equal(t, Values(got), Values(listed))
}

func TestDeepIce_Forward_InvalidInput(t *testing.T) {
	m := newTestModel(t, testConfig())

	_, err := m.Forward(&EventBatch{Features: [][]float64{{1, 2, 3}}, Batch: []int{0}, NumEvents: 1})
	require.Error(t, err)

	event := testEvent(2, 0)
	event[1][FeatureAuxiliary] = 3
	_, err = m.Forward(NewEventBatch([][][]float64{event}))
	require.Error(t, err)
}

type constantEncoder struct {
	width int
}

func (c constantEncoder) Forward(features [][]float64, _ []int, _ int) ([]ag.Node, error) {
	out := make([]ag.Node, len(features))
	for i := range out {
		out[i] = ag.Var(mat.NewEmptyVecDense[float64](c.width))
	}
	return out, nil
}

func TestDeepIce_Forward_GraphFusion(t *testing.T) {
	config := testConfig()
	config.Fusion = GraphFusion{Config: &dynedge.Config{
		Inputs:         NumPulseFeatures,
		Neighbours:     3,
		Layers:         [][]int{{8, 8}},
		PostProcessing: []int{config.Dim / 2},
		LayerNorm:      true,
	}}
	m := newTestModel(t, config)
	require.Equal(t, config.Dim/2, m.Fourier.OutputSize)

	b := NewEventBatch([][][]float64{testEvent(5, 0), nil, testEvent(2, 1)})
	result, err := m.Forward(b)
	require.NoError(t, err)
	require.Len(t, result, 3)
	requireFinite(t, Values(result))

	m.Fuser = &GraphFuser{Encoder: constantEncoder{width: config.Dim / 2}}
	result, err = m.Forward(b)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for _, r := range result {
		require.Equal(t, m.Dim, r.Value().Size())
	}
	requireFinite(t, Values(result))

	m.Fuser = &GraphFuser{Encoder: constantEncoder{width: config.Dim/2 + 1}}
	_, err = m.Forward(b)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "shape mismatch"))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "dim not multiple of head size", modify: func(c *Config) { c.Dim = 20 }},
		{name: "odd head size", modify: func(c *Config) { c.Dim = 21; c.HeadSize = 7 }},
		{name: "n rel above depth", modify: func(c *Config) { c.NRel = 3 }},
		{name: "too few features", modify: func(c *Config) { c.NumFeatures = 4 }},
		{name: "missing fusion", modify: func(c *Config) { c.Fusion = nil }},
		{name: "dim base", modify: func(c *Config) { c.DimBase = 6 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.modify(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestConfig_GraphConfig(t *testing.T) {
	c := DefaultConfig()
	_, ok := c.GraphConfig()
	require.False(t, ok)
	require.Equal(t, c.Dim, c.FourierSize())

	c.Fusion = GraphFusion{}
	g, ok := c.GraphConfig()
	require.True(t, ok)
	require.Equal(t, dynedge.DefaultConfig(NumPulseFeatures, c.Dim), g)
	require.Equal(t, c.Dim/2, g.OutputSize())
	require.Equal(t, c.Dim/2, c.FourierSize())
}

func TestReadConfig(t *testing.T) {
	config, err := ReadConfig(strings.NewReader(`
dim: 64
head_size: 16
n_rel: 0
scaled_emb: true
fusion: dynedge
dynedge:
  inputs: 6
  neighbours: 4
  layers: [[16, 16]]
  post_processing: [32]
`))
	require.NoError(t, err)
	require.Equal(t, 64, config.Dim)
	require.Equal(t, 16, config.HeadSize)
	require.Equal(t, 0, config.NRel)
	require.Equal(t, 12, config.Depth)
	require.True(t, config.ScaledEmbedding)
	g, ok := config.GraphConfig()
	require.True(t, ok)
	require.Equal(t, 4, g.Neighbours)
	require.Equal(t, 32, g.OutputSize())
	require.NoError(t, config.Validate())

	config, err = ReadConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), config)

	_, err = ReadConfig(strings.NewReader("fusion: gnn"))
	require.Error(t, err)
}
