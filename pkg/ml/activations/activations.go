// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package activations implements the activation functions supported by dense layers, and their derivatives,
// operating row-wise on gonum matrices (one example per row).
//
// The set of activations is closed: Type enumerates them, and FromName converts a (case-insensitive) name to
// its Type, so layers resolve their activation once when they are built.
package activations

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeRelu -> "relu"), and can be converted back from
// string with FromName or TypeString.
type Type int

const (
	// TypeRelu returns max(z, 0). Its derivative is 1 where z > 0 and 0 elsewhere.
	TypeRelu Type = iota

	// TypeSigmoid is the logistic function 1/(1+e^{-z}).
	TypeSigmoid

	// TypeSoftmax normalizes each row into a probability distribution.
	//
	// Its derivative is NOT implemented: Derivative returns a matrix of ones, so a softmax layer back-propagates
	// the upstream gradient unchanged. This only gives the correct gradient for a softmax output layer trained
	// with cross-entropy; in any other position it silently trains with a wrong gradient.
	// See HasDerivative.
	TypeSoftmax
)

//go:generate go tool enumer -type=Type -trimprefix=Type -transform=snake -values -text -json -output=gen_type_enumer.go activations.go

// ErrUnknown is returned when an activation name is not recognized.
var ErrUnknown = errors.New("unknown activation")

// FromName converts the name of an activation to its type. Names are case-insensitive ("ReLU", "relu").
//
// It returns an error wrapping ErrUnknown if the name is not valid.
func FromName(name string) (Type, error) {
	t, err := TypeString(name)
	if err != nil {
		return 0, errors.Wrapf(ErrUnknown, "activation %q: valid values are %v", name, TypeStrings())
	}
	return t, nil
}

// MustFromName is like FromName, but panics with a helpful message if name is invalid.
func MustFromName(name string) Type {
	t, err := FromName(name)
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return t
}

// HasDerivative reports whether Derivative returns the true derivative of the activation.
// It is false for TypeSoftmax, whose derivative is a placeholder of ones.
func (t Type) HasDerivative() bool {
	return t != TypeSoftmax
}

// Apply returns a new matrix with activation applied to z.
func Apply(activation Type, z mat.Matrix) *mat.Dense {
	var out mat.Dense
	switch activation {
	case TypeRelu:
		out.Apply(func(_, _ int, v float64) float64 { return max(v, 0) }, z)
	case TypeSigmoid:
		out.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) }, z)
	case TypeSoftmax:
		out.CloneFrom(z)
		rows, _ := out.Dims()
		for row := range rows {
			softmaxInPlace(out.RawRowView(row))
		}
	default:
		exceptions.Panicf("Apply got invalid activation value %d: options are %v", activation, TypeValues())
	}
	return &out
}

// Derivative returns a new matrix with the derivative of the activation evaluated element-wise at z,
// the pre-activation values of a layer.
func Derivative(activation Type, z mat.Matrix) *mat.Dense {
	var out mat.Dense
	switch activation {
	case TypeRelu:
		out.Apply(func(_, _ int, v float64) float64 {
			if v > 0 {
				return 1
			}
			return 0
		}, z)
	case TypeSigmoid:
		out.Apply(func(_, _ int, v float64) float64 {
			s := sigmoid(v)
			return s * (1 - s)
		}, z)
	case TypeSoftmax:
		// Placeholder: see TypeSoftmax.
		out.Apply(func(_, _ int, _ float64) float64 { return 1 }, z)
	default:
		exceptions.Panicf("Derivative got invalid activation value %d: options are %v", activation, TypeValues())
	}
	return &out
}

// Relu returns max(z, 0), element-wise.
func Relu(z mat.Matrix) *mat.Dense { return Apply(TypeRelu, z) }

// Sigmoid returns 1/(1+e^{-z}), element-wise.
func Sigmoid(z mat.Matrix) *mat.Dense { return Apply(TypeSigmoid, z) }

// Softmax returns exp(z)/sum(exp(z)) for each row of z.
func Softmax(z mat.Matrix) *mat.Dense { return Apply(TypeSoftmax, z) }

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// softmaxInPlace shifts the row by its maximum before exponentiating, which doesn't change the result
// but keeps exp from overflowing.
func softmaxInPlace(row []float64) {
	floats.AddConst(-floats.Max(row), row)
	for ii, v := range row {
		row[ii] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(row), row)
}
