package dynedge

import "fmt"

// Config describes a DynEdge graph encoder.
type Config struct {
	// Inputs is the number of per-pulse input features
	Inputs int `yaml:"inputs"`

	// Neighbours is the k of the k-nearest-neighbour graph
	Neighbours int `yaml:"neighbours"`

	// Layers lists the hidden sizes of the MLP of each EdgeConv layer
	Layers [][]int `yaml:"layers"`

	// PostProcessing lists the sizes of the per-node layers applied to the skip concatenation
	PostProcessing []int `yaml:"post_processing"`

	// LayerNorm enables layer normalization in the post-processing layers
	LayerNorm bool `yaml:"layer_norm"`
}

// DefaultConfig returns the settings used in the IceCube Kaggle competition solution,
// with the output width set to half of the transformer width.
func DefaultConfig(inputs, dim int) Config {
	return Config{
		Inputs:     inputs,
		Neighbours: 9,
		Layers: [][]int{
			{128, 256},
			{336, 256},
			{336, 256},
			{336, 256},
		},
		PostProcessing: []int{336, dim / 2},
		LayerNorm:      true,
	}
}

// OutputSize is the width of the node embeddings produced by the encoder.
func (c Config) OutputSize() int {
	if len(c.PostProcessing) == 0 {
		return c.skipSize()
	}
	return c.PostProcessing[len(c.PostProcessing)-1]
}

func (c Config) skipSize() int {
	size := c.Inputs + NumGlobalVariables
	for _, l := range c.Layers {
		size += l[len(l)-1]
	}
	return size
}

func (c Config) Validate() error {
	if c.Inputs < spatialFeatures+1 {
		return fmt.Errorf("dynedge needs at least %d inputs, got %d", spatialFeatures+1, c.Inputs)
	}
	if c.Neighbours <= 0 {
		return fmt.Errorf("invalid number of neighbours %d", c.Neighbours)
	}
	for i, l := range c.Layers {
		if len(l) == 0 {
			return fmt.Errorf("edge convolution %d has no layers", i)
		}
		if l[len(l)-1] < spatialFeatures {
			return fmt.Errorf("edge convolution %d outputs %d features, need at least %d for the dynamic graph", i, l[len(l)-1], spatialFeatures)
		}
	}
	return nil
}
