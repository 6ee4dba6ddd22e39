// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package nn implements a small feed-forward network trained with plain gradient descent on gonum matrices.
//
// Layers are stacked in a Sequential, which builds them (resolving each layer's input dimension from its
// predecessor), runs forward and backward passes and trains them with a train.Loop:
//
//	net := nn.NewSequential(nn.SGD{LearningRate: 0.01},
//		nn.NewDenseWithInput(4, 5, "relu"),
//		nn.NewDense(5, "relu"),
//		nn.NewDense(3, "relu"),
//	).WithRand(rng)
//	if err := net.Build(); err != nil { ... }
//	losses, err := net.Train(x, y, 30, 32, true)
//
// Matrices hold one example per row.
package nn

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned when matrix dimensions don't match what a layer or network expects.
	ErrShape = errors.New("shape mismatch")

	// ErrNotBuilt is returned when using a layer or network before building it.
	ErrNotBuilt = errors.New("not built")
)

// Layer is one stage of a Sequential network.
//
// A layer starts unbuilt, and Build allocates its parameters. Forward caches what the following Backward
// call needs, so Backward must be called right after Forward on the same batch.
type Layer interface {
	// Build allocates the parameters for the given input dimension, drawing random values from rng.
	Build(inputDim int, rng *rand.Rand) error

	// Built reports whether Build succeeded.
	Built() bool

	// InputDim is the configured input dimension. It is 0 if not configured and not yet built.
	InputDim() int

	// OutputDim is the dimension of the output of the layer.
	OutputDim() int

	// Forward computes the layer output for inputs with one example per row.
	Forward(x *mat.Dense) (*mat.Dense, error)

	// Backward receives the gradient of the loss with respect to the output of the last Forward call,
	// updates the parameters with the given learning rate and returns the gradient with respect to its input.
	Backward(dY *mat.Dense, learningRate float64) (*mat.Dense, error)

	// NumParams returns the number of scalar parameters.
	NumParams() int
}

// SGD is plain stochastic gradient descent: it holds only the learning rate.
type SGD struct {
	LearningRate float64
}
