package convert

import (
	"deepice/pkg/io"
)

type FrameType int

const (
	PhysicsFrame FrameType = iota
	OtherFrame
)

// RawPulse is a pulse as recorded by a sensor, before geometry is attached.
type RawPulse struct {
	SensorID  int
	Time      float64
	Charge    float64
	Auxiliary bool
}

// Frame is one record of an event file.
type Frame struct {
	Type    FrameType
	EventID int64

	// Pulses maps a pulse series name to its pulses
	Pulses map[string][]RawPulse
	Truth  *io.Truth
}

// FrameReader iterates over the frames of an event file. Next returns io.EOF once the file
// is exhausted; any other error concerns the current frame only and reading may go on.
type FrameReader interface {
	Next() (*Frame, error)
	Close() error
}

// OpenFunc opens an event file for reading.
type OpenFunc func(path string) (FrameReader, error)
