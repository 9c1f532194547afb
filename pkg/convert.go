package pkg

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"deepice/pkg/convert"
	"deepice/pkg/io"
)

type ConvertParameters struct {
	Directories []string
	OutputFile  string
	GCDRescue   string
	Pulsemap    string
	Mode        string
	Extensions  []string
}

// Convert extracts the events found below the input directories into the event store at
// OutputFile.
func Convert(p ConvertParameters) error {
	mode, err := convert.ParseMode(p.Mode)
	if err != nil {
		return err
	}
	store, err := io.OpenStore(p.OutputFile)
	if err != nil {
		return err
	}
	defer store.Close()

	c := convert.New(store, convert.OpenCSV(p.Pulsemap), convert.NewExtractor(mode, p.Pulsemap), p.GCDRescue)
	if len(p.Extensions) > 0 {
		c.Extensions = p.Extensions
	}
	stats, err := c.Convert(p.Directories)
	if err != nil {
		return fmt.Errorf("error converting %v: %w", p.Directories, err)
	}
	log.Info().
		Str("Run", stats.RunID).
		Int("Files", stats.Files).
		Int("Events", stats.Events).
		Int("Pulses", stats.Pulses).
		Msg("Conversion done")
	return nil
}
