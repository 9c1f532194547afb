package pkg

import (
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/rs/zerolog/log"

	"deepice/pkg/io"
	"deepice/pkg/model"
)

type InitParameters struct {
	RndSeed  uint64
	Pulsemap string
}

// InitModel builds a DeepIce model, initializes its weights and saves it to outputFileName.
func InitModel(outputFileName string, config model.Config, params InitParameters) error {
	metaData := model.NewMetadata(params.Pulsemap, model.DefaultColumns...)

	//Overwrite values that are only known from the data layout
	config.NumFeatures = metaData.FeatureCount()
	if err := config.Validate(); err != nil {
		return err
	}

	deepIce := model.New(config)
	deepIce.Init(rand.NewLockedRand(params.RndSeed))

	m := model.Model{
		MetaData: metaData,
		DeepIce:  deepIce,
	}
	if err := io.SaveModelFile(&m, outputFileName); err != nil {
		return err
	}
	log.Info().
		Int("Dim", config.Dim).
		Int("Depth", config.Depth).
		Int("DepthRel", config.DepthRel).
		Int("Heads", config.NumHeads()).
		Str("File", outputFileName).
		Msg("Model initialized")
	return nil
}
