package convert

import (
	"fmt"
	gio "io"

	"github.com/rs/zerolog/log"

	"deepice/pkg/io"
)

// Converter extracts the events of event files into an event store.
type Converter struct {
	Store      *io.Store
	Open       OpenFunc
	Extractor  *Extractor
	GCDRescue  string
	Extensions []string

	geometries map[string]Geometry
}

func New(store *io.Store, open OpenFunc, extractor *Extractor, gcdRescue string) *Converter {
	return &Converter{
		Store:      store,
		Open:       open,
		Extractor:  extractor,
		GCDRescue:  gcdRescue,
		Extensions: DefaultExtensions,
		geometries: map[string]Geometry{},
	}
}

// Stats summarizes a conversion.
type Stats struct {
	RunID  string
	Files  int
	Events int
	Pulses int
}

// Convert processes every data file found below the given directories.
func (c *Converter) Convert(directories []string) (Stats, error) {
	dataFiles, gcdFiles, err := FindFiles(directories, c.GCDRescue, c.Extensions)
	if err != nil {
		return Stats{}, err
	}
	if len(dataFiles) == 0 {
		log.Error().Strs("Directories", directories).Msg("No files found")
		return Stats{}, nil
	}

	runID, err := c.Store.BeginRun(fmt.Sprint(directories), string(c.Extractor.Mode))
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{RunID: runID}
	for i := range dataFiles {
		events, err := c.processFile(dataFiles[i], gcdFiles[i])
		if err != nil {
			return stats, fmt.Errorf("error converting %s: %w", dataFiles[i], err)
		}
		if err := c.Store.SaveEvents(runID, dataFiles[i], events); err != nil {
			return stats, err
		}
		stats.Files++
		stats.Events += len(events)
		for _, e := range events {
			stats.Pulses += len(e.Pulses)
		}
		log.Info().Str("File", dataFiles[i]).Int("Events", len(events)).Msg("Converted")
	}
	return stats, nil
}

func (c *Converter) processFile(dataFile, gcdFile string) ([]*io.Event, error) {
	geometry, err := c.geometry(gcdFile)
	if err != nil {
		return nil, err
	}
	c.Extractor.SetGeometry(geometry)

	frames, err := c.Open(dataFile)
	if err != nil {
		return nil, err
	}
	defer frames.Close()

	var events []*io.Event
	for {
		frame, err := frames.Next()
		if err == gio.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("File", dataFile).Msg("Skipping frame")
			continue
		}
		if frame.Type != PhysicsFrame {
			continue
		}
		event, err := c.Extractor.Extract(frame)
		if err != nil {
			log.Warn().Err(err).Str("File", dataFile).Msg("Skipping frame")
			continue
		}
		events = append(events, event)
	}

	if r, ok := frames.(interface{ Errors() []DataError }); ok {
		printDataErrors(dataFile, r.Errors())
	}
	return events, nil
}

func (c *Converter) geometry(gcdFile string) (Geometry, error) {
	if g, ok := c.geometries[gcdFile]; ok {
		return g, nil
	}
	g, err := LoadGeometry(gcdFile)
	if err != nil {
		return nil, err
	}
	c.geometries[gcdFile] = g
	return g, nil
}

func printDataErrors(file string, errors []DataError) {
	for _, err := range errors {
		log.Error().Str("File", file).Msgf("Error parsing data at line %d: %s", err.Line, err.Error)
	}
}
