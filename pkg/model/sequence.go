package model

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
)

// Pulse feature columns, in the order expected by the encoders.
const (
	FeatureX = iota
	FeatureY
	FeatureZ
	FeatureTime
	FeatureCharge
	FeatureAuxiliary

	NumPulseFeatures
)

// EventBatch is a flat table of pulses, each row assigned to one event of the batch.
type EventBatch struct {
	// Features holds one row of pulse features per pulse
	Features [][]float64

	// Batch maps each row of Features to the index of its event
	Batch []int

	// NumEvents is the number of events in the batch, including events without pulses
	NumEvents int
}

// NewEventBatch builds a batch from per-event pulse rows.
func NewEventBatch(events [][][]float64) *EventBatch {
	b := &EventBatch{NumEvents: len(events)}
	for e, pulses := range events {
		for _, p := range pulses {
			b.Features = append(b.Features, p)
			b.Batch = append(b.Batch, e)
		}
	}
	return b
}

// Padded is a batch of variable length sequences zero padded to a common length.
type Padded struct {
	Values    [][][]float64
	Mask      [][]bool
	Lengths   []int
	MaxLength int
	Width     int
}

// PackSequences converts the flat pulse rows of an event batch into a padded sequence layout.
// Pulses keep their input order within each event.
func PackSequences(b *EventBatch) (*Padded, error) {
	lengths, err := sequenceLengths(len(b.Features), b.Batch, b.NumEvents)
	if err != nil {
		return nil, err
	}
	width := 0
	if len(b.Features) > 0 {
		width = len(b.Features[0])
	}
	p := newPadded(lengths, width)
	pos := make([]int, b.NumEvents)
	for row, e := range b.Batch {
		if len(b.Features[row]) != width {
			return nil, fmt.Errorf("row %d has %d features, expected %d", row, len(b.Features[row]), width)
		}
		copy(p.Values[e][pos[e]], b.Features[row])
		pos[e]++
	}
	return p, nil
}

func newPadded(lengths []int, width int) *Padded {
	maxLength := 0
	for _, l := range lengths {
		if l > maxLength {
			maxLength = l
		}
	}
	p := &Padded{
		Values:    make([][][]float64, len(lengths)),
		Mask:      make([][]bool, len(lengths)),
		Lengths:   lengths,
		MaxLength: maxLength,
		Width:     width,
	}
	for e, l := range lengths {
		p.Values[e] = make([][]float64, maxLength)
		p.Mask[e] = make([]bool, maxLength)
		for i := range p.Values[e] {
			p.Values[e][i] = make([]float64, width)
			p.Mask[e][i] = i < l
		}
	}
	return p
}

// Extend pads every sequence up to maxLength. Shorter targets are ignored.
func (p *Padded) Extend(maxLength int) {
	if maxLength <= p.MaxLength {
		return
	}
	for e := range p.Values {
		for i := p.MaxLength; i < maxLength; i++ {
			p.Values[e] = append(p.Values[e], make([]float64, p.Width))
			p.Mask[e] = append(p.Mask[e], false)
		}
	}
	p.MaxLength = maxLength
}

// PackNodes arranges per-pulse graph embeddings in the same padded layout as PackSequences,
// padded to maxLength positions. Padding positions hold a zero vector of the node width.
func PackNodes(nodes []ag.Node, batch []int, numEvents, maxLength int) ([][]ag.Node, error) {
	lengths, err := sequenceLengths(len(nodes), batch, numEvents)
	if err != nil {
		return nil, err
	}
	for e, l := range lengths {
		if l > maxLength {
			return nil, fmt.Errorf("event %d has %d pulses, more than the padded length %d", e, l, maxLength)
		}
	}
	width := 0
	if len(nodes) > 0 {
		width = nodes[0].Value().Size()
	}
	out := make([][]ag.Node, numEvents)
	pos := make([]int, numEvents)
	for e := range out {
		out[e] = make([]ag.Node, maxLength)
	}
	for row, e := range batch {
		out[e][pos[e]] = nodes[row]
		pos[e]++
	}
	for e := range out {
		for i := pos[e]; i < maxLength; i++ {
			out[e][i] = ag.Var(mat.NewEmptyVecDense[float64](width))
		}
	}
	return out, nil
}

func sequenceLengths(rows int, batch []int, numEvents int) ([]int, error) {
	if len(batch) != rows {
		return nil, fmt.Errorf("batch assignment has %d entries for %d rows", len(batch), rows)
	}
	lengths := make([]int, numEvents)
	for row, e := range batch {
		if e < 0 || e >= numEvents {
			return nil, fmt.Errorf("row %d: batch index %d out of range [0, %d)", row, e, numEvents)
		}
		lengths[e]++
	}
	return lengths, nil
}

// AttentionBias turns a validity mask into an additive attention bias:
// 0 for valid positions and -Inf for padding.
func AttentionBias(mask []bool) []float64 {
	bias := make([]float64, len(mask))
	for i, valid := range mask {
		if !valid {
			bias[i] = math.Inf(-1)
		}
	}
	return bias
}

// prependValid extends a mask with one always valid leading position.
func prependValid(mask []bool) []bool {
	out := make([]bool, 0, len(mask)+1)
	out = append(out, true)
	return append(out, mask...)
}
