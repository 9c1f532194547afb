package convert

import (
	"fmt"

	"deepice/pkg/io"
)

// Mode selects what the extractor keeps from a frame.
type Mode string

const (
	// ModeInference keeps the pulses only
	ModeInference Mode = "inference"

	// ModeTruth keeps the pulses and the simulated direction
	ModeTruth Mode = "truth"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInference, ModeTruth:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q", s)
	}
}

// Extractor turns physics frames into events of one pulse series, placing every pulse at
// the position of its sensor.
type Extractor struct {
	Mode     Mode
	Pulsemap string
	geometry Geometry
}

func NewExtractor(mode Mode, pulsemap string) *Extractor {
	return &Extractor{Mode: mode, Pulsemap: pulsemap}
}

// SetGeometry sets the detector geometry of the frames extracted next.
func (x *Extractor) SetGeometry(g Geometry) {
	x.geometry = g
}

// Extract builds the event of a physics frame. Frames without the pulse series yield an
// event without pulses.
func (x *Extractor) Extract(f *Frame) (*io.Event, error) {
	if x.geometry == nil {
		return nil, fmt.Errorf("no geometry set")
	}
	raw := f.Pulses[x.Pulsemap]
	event := &io.Event{
		FrameID:  f.EventID,
		Pulsemap: x.Pulsemap,
		Pulses:   make([]io.Pulse, len(raw)),
	}
	for i, p := range raw {
		pos, ok := x.geometry[p.SensorID]
		if !ok {
			return nil, fmt.Errorf("event %d: unknown sensor %d", f.EventID, p.SensorID)
		}
		event.Pulses[i] = io.Pulse{
			SensorID:  p.SensorID,
			X:         pos[0],
			Y:         pos[1],
			Z:         pos[2],
			Time:      p.Time,
			Charge:    p.Charge,
			Auxiliary: p.Auxiliary,
		}
	}
	if x.Mode == ModeTruth {
		event.Truth = f.Truth
	}
	return event, nil
}
