// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math/rand/v2"

	"github.com/feltnet/feltnet/pkg/ml/activations"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// InitialWeightScale multiplies the standard normal values used to initialize the weights.
const InitialWeightScale = 0.01

// Dense performs a dense (linear) transformation followed by an activation:
//
//	y = activation(x @ weights + bias)
//
// weights has shape [inputDim, outputDim] and bias has outputDim values.
type Dense struct {
	inputDim, outputDim int
	activationName      string
	activation          activations.Type

	weights *mat.Dense
	bias    []float64
	built   bool

	// Values cached by Forward for Backward.
	x, z *mat.Dense
}

var _ Layer = (*Dense)(nil)

// NewDense creates a dense layer whose input dimension is given by the previous layer.
// The activation name is resolved when the layer is built.
func NewDense(outputDim int, activation string) *Dense {
	return &Dense{outputDim: outputDim, activationName: activation}
}

// NewDenseWithInput creates a dense layer with an explicit input dimension, as required for the first layer of
// a network.
func NewDenseWithInput(inputDim, outputDim int, activation string) *Dense {
	return &Dense{inputDim: inputDim, outputDim: outputDim, activationName: activation}
}

// Build implements Layer. It initializes the weights with N(0, 1)·InitialWeightScale and the bias with zeros.
func (d *Dense) Build(inputDim int, rng *rand.Rand) error {
	if d.inputDim != 0 && d.inputDim != inputDim {
		return errors.Wrapf(ErrShape, "dense layer configured with input dimension %d, but its input has dimension %d",
			d.inputDim, inputDim)
	}
	if inputDim <= 0 || d.outputDim <= 0 {
		return errors.Wrapf(ErrShape, "dense layer dimensions must be positive, got input %d and output %d",
			inputDim, d.outputDim)
	}
	activation, err := activations.FromName(d.activationName)
	if err != nil {
		return err
	}
	weights := mat.NewDense(inputDim, d.outputDim, nil)
	weights.Apply(func(_, _ int, _ float64) float64 { return rng.NormFloat64() * InitialWeightScale }, weights)

	d.inputDim = inputDim
	d.activation = activation
	d.weights = weights
	d.bias = make([]float64, d.outputDim)
	d.x, d.z = nil, nil
	d.built = true
	klog.V(1).Infof("built dense layer [%d, %d] with %s activation", inputDim, d.outputDim, activation)
	return nil
}

// Built implements Layer.
func (d *Dense) Built() bool { return d.built }

// InputDim implements Layer.
func (d *Dense) InputDim() int { return d.inputDim }

// OutputDim implements Layer.
func (d *Dense) OutputDim() int { return d.outputDim }

// NumParams implements Layer: inputDim*outputDim weights plus outputDim biases.
func (d *Dense) NumParams() int {
	return d.inputDim*d.outputDim + d.outputDim
}

// ActivationName returns the activation name the layer was configured with.
func (d *Dense) ActivationName() string { return d.activationName }

// Activation returns the activation resolved by Build.
func (d *Dense) Activation() activations.Type { return d.activation }

// Weights returns a copy of the weights, shaped [inputDim, outputDim]. It is nil before Build.
func (d *Dense) Weights() *mat.Dense {
	if !d.built {
		return nil
	}
	return mat.DenseCopyOf(d.weights)
}

// Bias returns a copy of the bias. It is nil before Build.
func (d *Dense) Bias() []float64 {
	if !d.built {
		return nil
	}
	return append([]float64(nil), d.bias...)
}

// SetParameters replaces the weights and the bias of a built layer, for instance when restoring a checkpoint.
func (d *Dense) SetParameters(weights mat.Matrix, bias []float64) error {
	if !d.built {
		return errors.Wrap(ErrNotBuilt, "Dense.SetParameters")
	}
	rows, cols := weights.Dims()
	if rows != d.inputDim || cols != d.outputDim || len(bias) != d.outputDim {
		return errors.Wrapf(ErrShape, "dense layer [%d, %d] can't take weights [%d, %d] and %d biases",
			d.inputDim, d.outputDim, rows, cols, len(bias))
	}
	d.weights = mat.DenseCopyOf(weights)
	d.bias = append([]float64(nil), bias...)
	return nil
}

// Forward implements Layer.
func (d *Dense) Forward(x *mat.Dense) (*mat.Dense, error) {
	if !d.built {
		return nil, errors.Wrap(ErrNotBuilt, "Dense.Forward")
	}
	if _, cols := x.Dims(); cols != d.inputDim {
		return nil, errors.Wrapf(ErrShape, "dense layer expects %d input features, got %d", d.inputDim, cols)
	}
	rows, _ := x.Dims()
	z := mat.NewDense(rows, d.outputDim, nil)
	z.Mul(x, d.weights)
	for row := range rows {
		floats.Add(z.RawRowView(row), d.bias)
	}
	d.x = mat.DenseCopyOf(x)
	d.z = z
	return activations.Apply(d.activation, z), nil
}

// Backward implements Layer:
//
//	dZ = dY ⊙ activation'(Z)
//	dW = Xᵀ·dZ / m
//	db = Σ_rows(dZ) / m
//	dX = dZ·Wᵀ
//
// dX is computed with the weights before the update W -= learningRate·dW, b -= learningRate·db.
func (d *Dense) Backward(dY *mat.Dense, learningRate float64) (*mat.Dense, error) {
	if !d.built {
		return nil, errors.Wrap(ErrNotBuilt, "Dense.Backward")
	}
	if d.z == nil {
		return nil, errors.New("Dense.Backward called without a previous Forward")
	}
	m, cols := dY.Dims()
	if zRows, zCols := d.z.Dims(); m != zRows || cols != zCols {
		return nil, errors.Wrapf(ErrShape, "gradient has shape [%d, %d], but the last output had shape [%d, %d]",
			m, cols, zRows, zCols)
	}

	var dZ mat.Dense
	dZ.MulElem(dY, activations.Derivative(d.activation, d.z))

	var dW mat.Dense
	dW.Mul(d.x.T(), &dZ)
	dW.Scale(1/float64(m), &dW)

	db := make([]float64, d.outputDim)
	column := make([]float64, m)
	for col := range db {
		db[col] = floats.Sum(mat.Col(column, col, &dZ)) / float64(m)
	}

	dX := mat.NewDense(m, d.inputDim, nil)
	dX.Mul(&dZ, d.weights.T())

	dW.Scale(learningRate, &dW)
	d.weights.Sub(d.weights, &dW)
	floats.AddScaled(d.bias, -learningRate, db)
	return dX, nil
}
