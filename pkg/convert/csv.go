package convert

import (
	"encoding/csv"
	"errors"
	"fmt"
	gio "io"
	"math"
	"os"
	"strconv"

	"deepice/pkg/io"
)

type DataError struct {
	Line  int
	Error string
}

// Required and optional columns of a pulse table.
var (
	pulseColumns = []string{"event_id", "sensor_id", "time", "charge", "auxiliary"}
	truthColumns = []string{"azimuth", "zenith"}
)

// CSVReader reads a pulse table with one row per pulse, grouped by event:
// event_id,sensor_id,time,charge,auxiliary[,azimuth,zenith]. Every event becomes a
// physics frame holding a single pulse series.
type CSVReader struct {
	Pulsemap string

	file    *os.File
	reader  *csv.Reader
	columns map[string]int
	line    int
	pending []string
	split   map[int64]bool
	errors  []DataError
}

// OpenCSV returns an OpenFunc reading pulse tables into the given pulse series.
func OpenCSV(pulsemap string) OpenFunc {
	return func(path string) (FrameReader, error) {
		return NewCSVReader(path, pulsemap)
	}
}

func NewCSVReader(path, pulsemap string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	r := &CSVReader{
		Pulsemap: pulsemap,
		file:     f,
		columns:  map[string]int{},
	}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	for _, c := range pulseColumns {
		if _, ok := r.columns[c]; !ok {
			f.Close()
			return nil, fmt.Errorf("column %s not found in data header", c)
		}
	}

	// Events are streamed, so events whose rows are not contiguous are found upfront
	r.split = splitEvents(r.reader, r.columns["event_id"])
	if _, err := f.Seek(0, gio.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("error rewinding file: %w", err)
	}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// readHeader starts reading from the current file offset; the first line is the header.
func (r *CSVReader) readHeader() error {
	r.reader = csv.NewReader(r.file)
	header, err := r.reader.Read()
	if err != nil {
		return fmt.Errorf("error reading data header: %w", err)
	}
	r.line = 1
	for i, name := range header {
		r.columns[name] = i
	}
	return nil
}

// splitEvents returns the ids of events appearing in more than one block of rows.
// Unreadable rows are left to the main pass.
func splitEvents(reader *csv.Reader, column int) map[int64]bool {
	split := map[int64]bool{}
	seen := map[int64]bool{}
	var last int64
	first := true
	for {
		record, err := reader.Read()
		if err == gio.EOF {
			return split
		}
		if err != nil && !isParseError(err) {
			return split
		}
		if err != nil || column >= len(record) {
			continue
		}
		id, err := strconv.ParseInt(record[column], 10, 64)
		if err != nil {
			continue
		}
		if first || id != last {
			if seen[id] {
				split[id] = true
			}
			seen[id] = true
			last, first = id, false
		}
	}
}

// Errors returns the lines skipped so far because they could not be parsed.
func (r *CSVReader) Errors() []DataError {
	return r.errors
}

func (r *CSVReader) Close() error {
	return r.file.Close()
}

func (r *CSVReader) Next() (*Frame, error) {
	var frame *Frame
	for {
		record, err := r.nextRecord()
		if err == gio.EOF {
			if frame == nil {
				return nil, gio.EOF
			}
			return r.finish(frame)
		}
		if err != nil {
			r.dataError(err)
			continue
		}

		eventID, err := strconv.ParseInt(record[r.columns["event_id"]], 10, 64)
		if err != nil {
			r.dataError(fmt.Errorf("error parsing event_id: %w", err))
			continue
		}
		if frame != nil && eventID != frame.EventID {
			r.pending = record
			r.line--
			return r.finish(frame)
		}
		if frame == nil {
			frame = &Frame{Type: PhysicsFrame, EventID: eventID, Pulses: map[string][]RawPulse{r.Pulsemap: nil}}
			if truth, ok := r.parseTruth(record); ok {
				frame.Truth = truth
			}
		}

		pulse, err := r.parsePulse(record)
		if err != nil {
			r.dataError(err)
			continue
		}
		frame.Pulses[r.Pulsemap] = append(frame.Pulses[r.Pulsemap], pulse)
	}
}

func (r *CSVReader) nextRecord() ([]string, error) {
	r.line++
	if r.pending != nil {
		record := r.pending
		r.pending = nil
		return record, nil
	}
	record, err := r.reader.Read()
	if err != nil && err != gio.EOF && !isParseError(err) {
		// the rest of the file is unreadable
		r.dataError(err)
		return nil, gio.EOF
	}
	return record, err
}

func isParseError(err error) bool {
	var parseError *csv.ParseError
	return errors.As(err, &parseError)
}

// finish rejects every block of rows of an event that is not contiguous in the file.
func (r *CSVReader) finish(frame *Frame) (*Frame, error) {
	if r.split[frame.EventID] {
		return nil, fmt.Errorf("event %d is split across the file (line %d)", frame.EventID, r.line)
	}
	return frame, nil
}

func (r *CSVReader) dataError(err error) {
	r.errors = append(r.errors, DataError{Line: r.line, Error: err.Error()})
}

func (r *CSVReader) parsePulse(record []string) (RawPulse, error) {
	var p RawPulse
	var err error
	if p.SensorID, err = strconv.Atoi(record[r.columns["sensor_id"]]); err != nil {
		return p, fmt.Errorf("error parsing sensor_id: %w", err)
	}
	if p.Time, err = strconv.ParseFloat(record[r.columns["time"]], 64); err != nil {
		return p, fmt.Errorf("error parsing time: %w", err)
	}
	if p.Charge, err = strconv.ParseFloat(record[r.columns["charge"]], 64); err != nil {
		return p, fmt.Errorf("error parsing charge: %w", err)
	}
	if !(p.Charge > 0) || math.IsInf(p.Charge, 1) {
		return p, fmt.Errorf("invalid charge %v", p.Charge)
	}
	if math.IsNaN(p.Time) || math.IsInf(p.Time, 0) {
		return p, fmt.Errorf("invalid time %v", p.Time)
	}
	if p.Auxiliary, err = strconv.ParseBool(record[r.columns["auxiliary"]]); err != nil {
		return p, fmt.Errorf("error parsing auxiliary: %w", err)
	}
	return p, nil
}

func (r *CSVReader) parseTruth(record []string) (*io.Truth, bool) {
	values := make([]float64, len(truthColumns))
	for i, c := range truthColumns {
		index, ok := r.columns[c]
		if !ok {
			return nil, false
		}
		v, err := strconv.ParseFloat(record[index], 64)
		if err != nil {
			r.dataError(fmt.Errorf("error parsing %s: %w", c, err))
			return nil, false
		}
		values[i] = v
	}
	return &io.Truth{Azimuth: values[0], Zenith: values[1]}, true
}

// Geometry maps a sensor id to its position.
type Geometry map[int][3]float64

// LoadGeometry reads a sensor table sensor_id,x,y,z.
func LoadGeometry(path string) (Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening geometry file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading geometry file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("geometry file %s is empty", path)
	}
	columns := map[string]int{}
	for i, name := range records[0] {
		columns[name] = i
	}
	names := []string{"sensor_id", "x", "y", "z"}
	for _, c := range names {
		if _, ok := columns[c]; !ok {
			return nil, fmt.Errorf("column %s not found in geometry header", c)
		}
	}

	g := Geometry{}
	for line, record := range records[1:] {
		id, err := strconv.Atoi(record[columns["sensor_id"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: error parsing sensor_id: %w", line+2, err)
		}
		var pos [3]float64
		for i, c := range names[1:] {
			if pos[i], err = strconv.ParseFloat(record[columns[c]], 64); err != nil {
				return nil, fmt.Errorf("line %d: error parsing %s: %w", line+2, c, err)
			}
		}
		g[id] = pos
	}
	return g, nil
}
