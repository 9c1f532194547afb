package io

import (
	"fmt"
	"math"
)

// Pulse is one sensor reading, located at the position of its sensor.
type Pulse struct {
	SensorID  int
	X         float64
	Y         float64
	Z         float64
	Time      float64
	Charge    float64
	Auxiliary bool
}

// Truth holds the simulated direction of an event.
type Truth struct {
	Azimuth float64
	Zenith  float64
}

// Event is one detector event: a time ordered series of pulses.
type Event struct {
	// ID is assigned by the store
	ID int64

	// FrameID identifies the event within its source file
	FrameID  int64
	Pulsemap string
	Pulses   []Pulse
	Truth    *Truth
}

// Feature returns the standardized value of a named pulse column: positions in units of
// 500 m, time centred on 10 µs in units of 30 µs, log10 charge divided by 3 and the
// auxiliary flag as 0 or 1.
func (p Pulse) Feature(column string) (float64, error) {
	switch column {
	case "x":
		return p.X / 500, nil
	case "y":
		return p.Y / 500, nil
	case "z":
		return p.Z / 500, nil
	case "t":
		return (p.Time - 1e4) / 3e4, nil
	case "charge":
		if !(p.Charge > 0) || math.IsInf(p.Charge, 1) {
			return 0, fmt.Errorf("sensor %d: invalid charge %v", p.SensorID, p.Charge)
		}
		return math.Log10(p.Charge) / 3, nil
	case "auxiliary":
		if p.Auxiliary {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown pulse column %s", column)
	}
}

// Features returns the standardized feature rows of the event in the given column order.
func (e *Event) Features(columns []string) ([][]float64, error) {
	rows := make([][]float64, len(e.Pulses))
	for i, p := range e.Pulses {
		rows[i] = make([]float64, len(columns))
		for j, c := range columns {
			v, err := p.Feature(c)
			if err != nil {
				return nil, err
			}
			rows[i][j] = v
		}
	}
	return rows, nil
}
