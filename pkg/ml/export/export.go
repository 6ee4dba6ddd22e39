// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package export serializes the parameters of a trained network into the calldata payload read by the
// on-chain model:
//
//	model := layer_count ", " layer (", " layer)*
//	layer := matrix ", " vector ", " tag
//
// where matrix holds the weights ([inputDim, outputDim], row by row), vector holds the bias and tag
// identifies the activation.
//
// The tag is lossy: every layer is exported with TagRelu, whatever its activation. The on-chain model only
// implements that activation, so a network trained with other activations will not produce the same
// outputs on-chain.
package export

import (
	"github.com/feltnet/feltnet/pkg/core/calldata"
	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/feltnet/feltnet/pkg/ml/activations"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// TagRelu is the activation tag written for every layer.
const TagRelu uint64 = 0

// ErrUnsupportedLayer is returned when a layer doesn't expose its parameters.
var ErrUnsupportedLayer = errors.New("layer can't be exported")

// Parameterized is implemented by layers that can be exported, like nn.Dense.
type Parameterized interface {
	// Weights shaped [inputDim, outputDim].
	Weights() *mat.Dense
	Bias() []float64
}

// ActivationTag returns the tag written for a layer with the given activation: always TagRelu.
func ActivationTag(activations.Type) uint64 {
	return TagRelu
}

// Export renders the payload of a built network.
func Export(codec *felt.Codec, net *nn.Sequential) (string, error) {
	b, err := build(codec, net)
	if err != nil {
		return "", err
	}
	return b.Text()
}

// ExportFelts returns the payload of a built network as field elements, for RPC clients that take
// them directly.
func ExportFelts(codec *felt.Codec, net *nn.Sequential) ([]felt.Element, error) {
	b, err := build(codec, net)
	if err != nil {
		return nil, err
	}
	return b.Felts()
}

// ExportLayers renders the payload of the given layers, in order.
func ExportLayers(codec *felt.Codec, layers ...Parameterized) (string, error) {
	b := calldata.NewBuilder(codec).Int(len(layers))
	for ii, layer := range layers {
		if err := appendLayer(b, layer); err != nil {
			return "", errors.WithMessagef(err, "exporting layer #%d", ii)
		}
	}
	return b.Text()
}

func build(codec *felt.Codec, net *nn.Sequential) (*calldata.Builder, error) {
	if !net.Built() {
		return nil, errors.Wrap(nn.ErrNotBuilt, "exporting network")
	}
	layers := net.Layers()
	b := calldata.NewBuilder(codec).Int(len(layers))
	for ii, layer := range layers {
		p, ok := layer.(Parameterized)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedLayer, "layer #%d of type %T", ii, layer)
		}
		if err := appendLayer(b, p); err != nil {
			return nil, errors.WithMessagef(err, "exporting layer #%d", ii)
		}
	}
	klog.V(1).Infof("exported %d layers as %d field elements", len(layers), b.Len())
	return b, nil
}

// appendLayer writes weights, bias and the activation tag of one layer.
func appendLayer(b *calldata.Builder, layer Parameterized) error {
	activation := activations.TypeRelu
	if withActivation, ok := layer.(interface{ Activation() activations.Type }); ok {
		activation = withActivation.Activation()
	}
	weights := layer.Weights()
	if weights == nil {
		return errors.Wrap(nn.ErrNotBuilt, "layer has no weights")
	}
	b.Dense(weights).Vector(layer.Bias()).Element(felt.ElementFromUint64(ActivationTag(activation)))
	return b.Err()
}
