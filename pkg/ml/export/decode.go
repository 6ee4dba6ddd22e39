// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package export

import (
	"fmt"
	"strings"

	"github.com/feltnet/feltnet/pkg/core/calldata"
	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/pkg/errors"
)

// LayerSnapshot holds the decoded parameters of one layer.
type LayerSnapshot struct {
	Weights [][]float64
	Bias    []float64
	Tag     uint64
}

// Snapshot is a model decoded from its payload.
type Snapshot struct {
	Layers []LayerSnapshot
}

// Decode parses a model payload, reverting Export up to quantization error.
// Malformed payloads, including trailing elements, return an error wrapping calldata.ErrSyntax.
func Decode(codec *felt.Codec, payload string) (*Snapshot, error) {
	r, err := calldata.NewReader(codec, payload)
	if err != nil {
		return nil, err
	}
	numLayers, err := r.Count()
	if err != nil {
		return nil, errors.WithMessage(err, "reading the layer count")
	}
	snapshot := &Snapshot{Layers: make([]LayerSnapshot, numLayers)}
	for ii := range snapshot.Layers {
		layer := &snapshot.Layers[ii]
		if layer.Weights, err = r.Matrix(); err != nil {
			return nil, errors.WithMessagef(err, "layer #%d weights", ii)
		}
		if layer.Bias, err = r.Vector(); err != nil {
			return nil, errors.WithMessagef(err, "layer #%d bias", ii)
		}
		tag, err := r.Int()
		if err != nil {
			return nil, errors.WithMessagef(err, "layer #%d activation tag", ii)
		}
		layer.Tag = uint64(tag)
	}
	if err = r.Done(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// NumParams returns the number of weights and biases in the snapshot.
func (s *Snapshot) NumParams() int {
	total := 0
	for _, layer := range s.Layers {
		for _, row := range layer.Weights {
			total += len(row)
		}
		total += len(layer.Bias)
	}
	return total
}

// String summarizes the shapes of the layers.
func (s *Snapshot) String() string {
	parts := make([]string, len(s.Layers))
	for ii, layer := range s.Layers {
		cols := 0
		if len(layer.Weights) > 0 {
			cols = len(layer.Weights[0])
		}
		parts[ii] = fmt.Sprintf("[%d, %d]+%d (tag %d)", len(layer.Weights), cols, len(layer.Bias), layer.Tag)
	}
	return fmt.Sprintf("Snapshot{%s}", strings.Join(parts, ", "))
}
