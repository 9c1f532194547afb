package pkg

import (
	"fmt"
	gio "io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"deepice/pkg/io"
	"deepice/pkg/model"
)

type EmbedParameters struct {
	ModelFile  string
	InputFile  string
	OutputFile string
	BatchSize  int

	// Sample limits the run to a random subset of this many events (0 embeds all)
	Sample int

	// Shuffle embeds the events in random order
	Shuffle bool
	RndSeed int64
}

// Embed runs the model of ModelFile over the events of the store InputFile and optionally
// writes one row event_id,e0,...,e{dim-1} per event to OutputFile.
func Embed(p EmbedParameters) error {
	m, err := io.LoadModelFile(p.ModelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", p.ModelFile, err)
	}

	store, err := io.OpenStore(p.InputFile)
	if err != nil {
		return fmt.Errorf("error opening event store %s: %w", p.InputFile, err)
	}
	defer store.Close()

	events, err := store.Events(m.MetaData.Pulsemap)
	if err != nil {
		return fmt.Errorf("error loading events from %s: %w", p.InputFile, err)
	}
	if len(events) == 0 {
		log.Error().Str("Pulsemap", m.MetaData.Pulsemap).Msg("No events to embed")
		return nil
	}
	data, err := io.NewDataSet(events, p.BatchSize, m.MetaData.ColumnNames())
	if err != nil {
		return err
	}
	if data, err = selectEvents(data, p); err != nil {
		return err
	}

	outputWriter := gio.Discard
	if p.OutputFile != "" {
		outputFile, err := os.Create(p.OutputFile)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", p.OutputFile, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	}
	return embedInternal(m, data, outputWriter)
}

// selectEvents applies the sampling and ordering options to the data set.
func selectEvents(data *io.DataSet, p EmbedParameters) (*io.DataSet, error) {
	data.Rand = rand.New(rand.NewSource(p.RndSeed))
	if p.Sample > 0 && p.Sample < data.Size() {
		splits, err := data.RandomSplit(p.Sample)
		if err != nil {
			return nil, err
		}
		data = splits[0]
	}
	if p.Shuffle {
		data.ResetOrder(io.RandomOrder)
	}
	return data, nil
}

func embedInternal(m *model.Model, data *io.DataSet, outputWriter gio.Writer) error {
	fmt.Fprintln(outputWriter, header(m.DeepIce.Dim))

	var norms []float64
	for batch, i := data.Next(), 0; batch.Size() > 0; batch, i = data.Next(), i+1 {
		output, err := m.DeepIce.Forward(batch.Input)
		if err != nil {
			return fmt.Errorf("error embedding batch %d: %w", i, err)
		}
		for j, v := range model.Values(output) {
			fmt.Fprintln(outputWriter, row(batch.Events[j].ID, v))
			norms = append(norms, floats.Norm(v, 2))
		}
		log.Debug().Int("Batch", i).Int("Events", batch.Size()).Msg("Embedded")
	}

	mean, std := stat.MeanStdDev(norms, nil)
	if len(norms) < 2 {
		std = 0
	}
	log.Info().
		Int("Events", len(norms)).
		Float64("MeanNorm", mean).
		Float64("StdNorm", std).
		Msg("Embedding done")
	return nil
}

func header(dim int) string {
	columns := make([]string, dim+1)
	columns[0] = "event_id"
	for i := 0; i < dim; i++ {
		columns[i+1] = "e" + strconv.Itoa(i)
	}
	return strings.Join(columns, ",")
}

func row(id int64, values []float64) string {
	fields := make([]string, len(values)+1)
	fields[0] = strconv.FormatInt(id, 10)
	for i, v := range values {
		fields[i+1] = strconv.FormatFloat(v, 'g', 8, 64)
	}
	return strings.Join(fields, ",")
}
