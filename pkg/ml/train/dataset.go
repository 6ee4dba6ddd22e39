// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math/rand/v2"

	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset for a train.Loop provides the data, one batch at a time. A batch is a matrix of inputs and a matrix
// of labels with the same number of rows, one example per row.
//
// Loop.RunEpochs also uses Full to measure the loss over the whole dataset at the end of each epoch.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// and it is called by Loop.RunEpochs after every epoch.
	Reset()

	// Yield one batch of inputs and labels.
	//
	// If the error is io.EOF the epoch finished normally. Any other errors interrupt the training and are
	// returned to the user.
	//
	// The yielded matrices are owned by the caller.
	Yield() (inputs, labels *mat.Dense, err error)

	// Full returns all the examples, in their original order. The returned matrices must not be modified.
	Full() (inputs, labels *mat.Dense)
}

// InMemoryDataset serves batches from matrices held in memory.
//
// By default it yields the whole dataset as one batch, in the original order. Use BatchSize and Shuffle
// to configure it.
type InMemoryDataset struct {
	name           string
	inputs, labels *mat.Dense
	batchSize      int
	rng            *rand.Rand

	// order of the examples in the current epoch, nil before the first Yield of an epoch.
	order []int
	next  int
}

var _ Dataset = (*InMemoryDataset)(nil)

// NewInMemoryDataset creates a dataset over inputs and labels, which must have the same (non-zero) number of rows.
//
// The matrices are not copied: don't modify them while the dataset is in use.
func NewInMemoryDataset(name string, inputs, labels *mat.Dense) (*InMemoryDataset, error) {
	if inputs == nil || labels == nil || inputs.IsEmpty() || labels.IsEmpty() {
		return nil, errors.Errorf("dataset %q: inputs and labels must be non-empty", name)
	}
	inRows, _ := inputs.Dims()
	labelRows, _ := labels.Dims()
	if inRows != labelRows {
		return nil, errors.Errorf("dataset %q: %d examples of inputs, but %d examples of labels",
			name, inRows, labelRows)
	}
	return &InMemoryDataset{
		name:      name,
		inputs:    inputs,
		labels:    labels,
		batchSize: inRows,
	}, nil
}

// BatchSize sets the number of examples per batch. The last batch of an epoch may be smaller.
// A value <= 0 yields the whole dataset as one batch.
//
// It returns the dataset itself, so configuration calls can be cascaded.
func (ds *InMemoryDataset) BatchSize(batchSize int) *InMemoryDataset {
	if batchSize <= 0 || batchSize > ds.NumExamples() {
		batchSize = ds.NumExamples()
	}
	ds.batchSize = batchSize
	return ds
}

// Shuffle makes the dataset draw a fresh random permutation of the examples at the start of every epoch.
// If rng is nil, the examples are yielded in their original order.
//
// It returns the dataset itself, so configuration calls can be cascaded.
func (ds *InMemoryDataset) Shuffle(rng *rand.Rand) *InMemoryDataset {
	ds.rng = rng
	return ds
}

// Name implements Dataset.
func (ds *InMemoryDataset) Name() string { return ds.name }

// NumExamples in the dataset.
func (ds *InMemoryDataset) NumExamples() int {
	rows, _ := ds.inputs.Dims()
	return rows
}

// NumBatches per epoch.
func (ds *InMemoryDataset) NumBatches() int {
	return (ds.NumExamples() + ds.batchSize - 1) / ds.batchSize
}

// Reset implements Dataset.
func (ds *InMemoryDataset) Reset() {
	ds.order = nil
	ds.next = 0
}

// Yield implements Dataset: it yields contiguous batches of the current epoch's order of examples.
func (ds *InMemoryDataset) Yield() (inputs, labels *mat.Dense, err error) {
	if ds.order == nil {
		ds.startEpoch()
	}
	if ds.next >= len(ds.order) {
		return nil, nil, io.EOF
	}
	end := min(ds.next+ds.batchSize, len(ds.order))
	rows := ds.order[ds.next:end]
	ds.next = end
	return gatherRows(ds.inputs, rows), gatherRows(ds.labels, rows), nil
}

// Full implements Dataset.
func (ds *InMemoryDataset) Full() (inputs, labels *mat.Dense) {
	return ds.inputs, ds.labels
}

func (ds *InMemoryDataset) startEpoch() {
	ds.next = 0
	if ds.rng != nil {
		ds.order = ds.rng.Perm(ds.NumExamples())
		return
	}
	ds.order = xslices.Iota(0, ds.NumExamples())
}

// gatherRows returns a new matrix with the given rows of m.
func gatherRows(m *mat.Dense, rows []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for ii, row := range rows {
		out.SetRow(ii, m.RawRowView(row))
	}
	return out
}
