package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deepice/pkg"
	"deepice/pkg/model"
)

func ConvertCommand() *cobra.Command {
	var params pkg.ConvertParameters

	var cmd = &cobra.Command{
		Use:   "convert -i inputDir [-i inputDir...] -o eventStore",
		Short: "Extracts the events of the event files found in the input directories into an event store",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Convert(params)
		},
	}

	cmd.Flags().StringSliceVarP(&params.Directories, "input", "i", nil, "directories to search for event files")
	cmd.Flags().StringVarP(&params.OutputFile, "output", "o", "", "name of the event store to write to")
	cmd.Flags().StringVarP(&params.GCDRescue, "gcd-rescue", "g", "", "geometry file used for folders without one")
	cmd.Flags().StringVarP(&params.Pulsemap, "pulsemap", "p", "SRTInIcePulses", "name of the pulse series to extract")
	cmd.Flags().StringVarP(&params.Mode, "mode", "", "inference", "extraction mode: inference or truth")
	cmd.Flags().StringSliceVarP(&params.Extensions, "ext", "", nil, "data file extensions (default .csv)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func InitCommand() *cobra.Command {
	var outputFile string
	var configFile string
	var fusion string
	var params pkg.InitParameters
	config := model.DefaultConfig()

	var cmd = &cobra.Command{
		Use:   "init -o outputFile [--config modelConfig]",
		Short: "Builds a DeepIce model with freshly initialized weights and saves it",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				f, err := os.Open(configFile)
				if err != nil {
					return fmt.Errorf("error opening model config %s: %w", configFile, err)
				}
				defer f.Close()
				if config, err = model.ReadConfig(f); err != nil {
					return err
				}
			} else {
				var err error
				if config.Fusion, err = model.ParseFusion(fusion); err != nil {
					return err
				}
			}
			return pkg.InitModel(outputFile, config, params)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to.")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML model configuration (overrides the model flags)")
	cmd.Flags().StringVarP(&params.Pulsemap, "pulsemap", "p", "SRTInIcePulses", "name of the pulse series the model reads")
	cmd.Flags().Uint64VarP(&params.RndSeed, "random-seed", "x", 42, "random seed")

	cmd.Flags().IntVarP(&config.Dim, "dim", "d", config.Dim, "latent feature dimension")
	cmd.Flags().IntVarP(&config.DimBase, "dim-base", "", config.DimBase, "base feature dimension")
	cmd.Flags().IntVarP(&config.Depth, "depth", "", config.Depth, "depth of the transformer")
	cmd.Flags().IntVarP(&config.HeadSize, "head-size", "", config.HeadSize, "size of the attention heads")
	cmd.Flags().IntVarP(&config.DepthRel, "depth-rel", "", config.DepthRel, "depth of the relative transformer")
	cmd.Flags().IntVarP(&config.NRel, "n-rel", "", config.NRel, "number of relative transformer layers receiving the relative bias")
	cmd.Flags().BoolVarP(&config.ScaledEmbedding, "scaled-emb", "", false, "scale the sinusoidal embeddings")
	cmd.Flags().StringVarP(&fusion, "fusion", "f", "none", "graph feature fusion: none or dynedge")

	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func EmbedCommand() *cobra.Command {
	var params pkg.EmbedParameters

	var cmd = &cobra.Command{
		Use:   "embed -m modelFile -i eventStore [-o outputFile]",
		Short: "Runs the provided model over the events of an event store and optionally writes the event embeddings",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Embed(params)
		},
	}

	cmd.Flags().StringVarP(&params.ModelFile, "model", "m", "", "name of model to run")
	cmd.Flags().StringVarP(&params.InputFile, "input", "i", "", "name of the event store")
	cmd.Flags().StringVarP(&params.OutputFile, "output", "o", "", "name of output file (optional)")
	cmd.Flags().IntVarP(&params.BatchSize, "batch-size", "b", 16, "batch size")
	cmd.Flags().IntVarP(&params.Sample, "sample", "s", 0, "embed a random sample of this many events (0 for all)")
	cmd.Flags().BoolVarP(&params.Shuffle, "shuffle", "", false, "embed the events in random order")
	cmd.Flags().Int64VarP(&params.RndSeed, "random-seed", "x", 42, "random seed for sampling and shuffling")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func main() {
	var logging LogOptions

	Main := &cobra.Command{
		Use: "deepice",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(os.Stderr)
		},
	}
	logging.AddFlags(Main)

	Main.AddCommand(ConvertCommand())
	Main.AddCommand(InitCommand())
	Main.AddCommand(EmbedCommand())

	if err := Main.Execute(); err != nil {
		os.Exit(1)
	}
}
