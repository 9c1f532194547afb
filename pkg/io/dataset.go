package io

import (
	"fmt"
	"math/rand"

	"deepice/pkg/model"
)

// DataBatch is a batch of events together with its model input.
type DataBatch struct {
	Events []*Event
	Input  *model.EventBatch
}

func (d DataBatch) Size() int {
	return len(d.Events)
}

type DataSet struct {
	Data         []*Event
	BatchSize    int
	Columns      []string
	Rand         *rand.Rand
	features     [][][]float64
	dataIndices  []int
	currentOrder []int
	currentIndex int
}

type DatasetOrder int

const (
	OriginalOrder DatasetOrder = iota
	RandomOrder
)

// NewDataSet prepares the standardized features of every event for the given columns.
func NewDataSet(data []*Event, batchSize int, columns []string) (*DataSet, error) {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	return newDataSet(data, batchSize, columns, dataIndices)
}

func newDataSet(data []*Event, batchSize int, columns []string, indices []int) (*DataSet, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}
	features := make([][][]float64, len(data))
	for i, e := range data {
		var err error
		if features[i], err = e.Features(columns); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
	}
	ds := &DataSet{
		Data:        data,
		BatchSize:   batchSize,
		Columns:     columns,
		Rand:        rand.New(rand.NewSource(42)),
		features:    features,
		dataIndices: indices,
	}
	ds.ResetOrder(OriginalOrder)
	return ds, nil
}

func (d *DataSet) ResetOrder(order DatasetOrder) {
	if d.currentOrder == nil {
		d.currentOrder = make([]int, len(d.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(d.currentOrder, d.dataIndices)
	case RandomOrder:
		ind := d.Rand.Perm(len(d.currentOrder))
		for i := range ind {
			d.currentOrder[i] = d.dataIndices[ind[i]]
		}
	}

	d.currentIndex = 0
}

// Next returns the next batch of at most BatchSize events; an empty batch once the
// data set is exhausted.
func (d *DataSet) Next() DataBatch {
	var batch DataBatch
	var rows [][][]float64
	for ; d.currentIndex < len(d.currentOrder) && len(batch.Events) < d.BatchSize; d.currentIndex++ {
		i := d.currentOrder[d.currentIndex]
		batch.Events = append(batch.Events, d.Data[i])
		rows = append(rows, d.features[i])
	}
	batch.Input = model.NewEventBatch(rows)
	return batch
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

// RandomSplit shuffles the data set and splits it into data sets of the given sizes.
func (d *DataSet) RandomSplit(sizes ...int) ([]*DataSet, error) {
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total > len(d.dataIndices) {
		return nil, fmt.Errorf("split sizes add up to %d, data set has %d events", total, len(d.dataIndices))
	}
	indices := make([]int, len(d.dataIndices))
	copy(indices, d.dataIndices)
	d.Rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	splits := make([]*DataSet, len(sizes))
	idx := 0
	for i := range sizes {
		splits[i] = &DataSet{
			Data:        d.Data,
			BatchSize:   d.BatchSize,
			Columns:     d.Columns,
			Rand:        d.Rand,
			features:    d.features,
			dataIndices: indices[idx : idx+sizes[i]],
		}
		splits[i].ResetOrder(OriginalOrder)
		idx += sizes[i]
	}
	return splits, nil
}
