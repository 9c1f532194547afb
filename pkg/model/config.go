package model

import (
	"encoding/gob"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"deepice/pkg/model/dynedge"
	"deepice/pkg/model/fourier"
)

func init() {
	gob.Register(NoFusion{})
	gob.Register(GraphFusion{})
}

// FusionMode selects whether pulse embeddings of a secondary graph encoder are fused
// into the transformer input. It is either NoFusion or GraphFusion.
type FusionMode interface {
	fusionMode()
}

// NoFusion feeds the transformer with the Fourier embedding only.
type NoFusion struct{}

// GraphFusion concatenates DynEdge pulse embeddings to a half width Fourier embedding.
// A nil Config selects dynedge.DefaultConfig.
type GraphFusion struct {
	Config *dynedge.Config
}

func (NoFusion) fusionMode()    {}
func (GraphFusion) fusionMode() {}

// Config holds the DeepIce hyper-parameters.
type Config struct {
	// Dim is the latent feature dimension
	Dim int

	// DimBase is the width of the sinusoidal feature embeddings
	DimBase int

	// Depth is the number of blocks of the final transformer stack
	Depth int

	// HeadSize is the size of every attention head
	HeadSize int

	// DepthRel is the number of blocks of the relative transformer stack
	DepthRel int

	// NRel is the number of leading relative blocks receiving the relative position bias
	NRel int

	// ScaledEmbedding enables the learned scale of the sinusoidal embeddings
	ScaledEmbedding bool

	// NumFeatures is the number of per-pulse input features (only known once the data is read)
	NumFeatures int

	Fusion FusionMode
}

// DefaultConfig returns the settings of the IceCube Kaggle competition solution.
func DefaultConfig() Config {
	return Config{
		Dim:         384,
		DimBase:     128,
		Depth:       12,
		HeadSize:    32,
		DepthRel:    4,
		NRel:        1,
		NumFeatures: NumPulseFeatures,
		Fusion:      NoFusion{},
	}
}

func (c Config) NumHeads() int {
	return c.Dim / c.HeadSize
}

// FourierSize is the share of the latent width filled by the Fourier embedding.
func (c Config) FourierSize() int {
	if _, ok := c.Fusion.(GraphFusion); ok {
		return c.Dim / 2
	}
	return c.Dim
}

// GraphConfig returns the graph encoder settings of a fused model.
func (c Config) GraphConfig() (dynedge.Config, bool) {
	f, ok := c.Fusion.(GraphFusion)
	if !ok {
		return dynedge.Config{}, false
	}
	if f.Config == nil {
		return dynedge.DefaultConfig(c.NumFeatures, c.Dim), true
	}
	return *f.Config, true
}

// RelBiasEnabled reports, for every relative block, whether it receives the relative bias.
func (c Config) RelBiasEnabled() []bool {
	enabled := make([]bool, c.DepthRel)
	for i := range enabled {
		enabled[i] = i < c.NRel
	}
	return enabled
}

// Validate checks the hyper-parameters for values no model can be built from. Whether
// the graph encoder output fits the latent width is left to the forward pass.
func (c Config) Validate() error {
	switch {
	case c.Dim <= 0 || c.DimBase <= 0 || c.HeadSize <= 0:
		return fmt.Errorf("widths must be positive: dim %d, dim base %d, head size %d", c.Dim, c.DimBase, c.HeadSize)
	case c.Depth < 0 || c.DepthRel < 0:
		return fmt.Errorf("depths must not be negative: depth %d, relative depth %d", c.Depth, c.DepthRel)
	case c.Dim%c.HeadSize != 0:
		return fmt.Errorf("dim %d is not a multiple of the head size %d", c.Dim, c.HeadSize)
	case c.HeadSize%2 != 0:
		return fmt.Errorf("head size %d must be even", c.HeadSize)
	case c.DimBase%4 != 0:
		return fmt.Errorf("dim base %d must be a multiple of 4", c.DimBase)
	case c.NRel < 0 || c.NRel > c.DepthRel:
		return fmt.Errorf("n rel %d out of range [0, %d]", c.NRel, c.DepthRel)
	case c.NumFeatures < fourier.NumInputs:
		return fmt.Errorf("model needs at least %d pulse features, got %d", fourier.NumInputs, c.NumFeatures)
	case c.Fusion == nil:
		return fmt.Errorf("fusion mode not set")
	}
	if g, ok := c.GraphConfig(); ok {
		return g.Validate()
	}
	return nil
}

// fileConfig is the YAML layout of a model configuration.
type fileConfig struct {
	Dim             int             `yaml:"dim"`
	DimBase         int             `yaml:"dim_base"`
	Depth           int             `yaml:"depth"`
	HeadSize        int             `yaml:"head_size"`
	DepthRel        int             `yaml:"depth_rel"`
	NRel            *int            `yaml:"n_rel"`
	ScaledEmbedding bool            `yaml:"scaled_emb"`
	Fusion          string          `yaml:"fusion"`
	DynEdge         *dynedge.Config `yaml:"dynedge"`
}

// ReadConfig reads a YAML model configuration. Missing values keep their defaults.
func ReadConfig(r io.Reader) (Config, error) {
	defaults := DefaultConfig()
	fc := fileConfig{
		Dim:      defaults.Dim,
		DimBase:  defaults.DimBase,
		Depth:    defaults.Depth,
		HeadSize: defaults.HeadSize,
		DepthRel: defaults.DepthRel,
		Fusion:   "none",
	}
	if err := yaml.NewDecoder(r).Decode(&fc); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("error decoding model config: %w", err)
	}

	c := defaults
	c.Dim = fc.Dim
	c.DimBase = fc.DimBase
	c.Depth = fc.Depth
	c.HeadSize = fc.HeadSize
	c.DepthRel = fc.DepthRel
	c.ScaledEmbedding = fc.ScaledEmbedding
	if fc.NRel != nil {
		c.NRel = *fc.NRel
	}
	fusion, err := ParseFusion(fc.Fusion)
	if err != nil {
		return Config{}, err
	}
	if g, ok := fusion.(GraphFusion); ok && fc.DynEdge != nil {
		g.Config = fc.DynEdge
		fusion = g
	}
	c.Fusion = fusion
	return c, nil
}

// ParseFusion maps a fusion name (none or dynedge) to a fusion mode with default settings.
func ParseFusion(name string) (FusionMode, error) {
	switch name {
	case "", "none":
		return NoFusion{}, nil
	case "dynedge":
		return GraphFusion{}, nil
	default:
		return nil, fmt.Errorf("unknown fusion mode %q", name)
	}
}
