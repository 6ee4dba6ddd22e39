// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math/rand/v2"
	"slices"

	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Sequential is a stack of layers, each one feeding the next.
type Sequential struct {
	layers    []Layer
	optimizer SGD
	rng       *rand.Rand
	built     bool
}

var _ train.Model = (*Sequential)(nil)

// NewSequential creates an unbuilt network. The first layer must have an explicit input dimension.
func NewSequential(optimizer SGD, layers ...Layer) *Sequential {
	return &Sequential{
		layers:    layers,
		optimizer: optimizer,
	}
}

// WithRand sets the random source used to initialize the parameters and to shuffle the examples when
// training. If not set, a randomly seeded one is used.
//
// It returns the network itself, so configuration calls can be cascaded.
func (s *Sequential) WithRand(rng *rand.Rand) *Sequential {
	s.rng = rng
	return s
}

// Rand returns the random source of the network.
func (s *Sequential) Rand() *rand.Rand {
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s.rng
}

// Optimizer returns the optimizer configuration.
func (s *Sequential) Optimizer() SGD { return s.optimizer }

// Layers returns the layers of the network, in order.
func (s *Sequential) Layers() []Layer { return slices.Clone(s.layers) }

// Built reports whether Build succeeded.
func (s *Sequential) Built() bool { return s.built }

// InputDim of the network, the input dimension of its first layer.
func (s *Sequential) InputDim() int {
	if len(s.layers) == 0 {
		return 0
	}
	return s.layers[0].InputDim()
}

// OutputDim of the network, the output dimension of its last layer.
func (s *Sequential) OutputDim() int {
	if len(s.layers) == 0 {
		return 0
	}
	return s.layers[len(s.layers)-1].OutputDim()
}

// Build builds every layer in order, giving each one the output dimension of its predecessor as input
// dimension.
func (s *Sequential) Build() error {
	s.built = false
	if len(s.layers) == 0 {
		return errors.Wrap(ErrShape, "network has no layers")
	}
	inputDim := s.layers[0].InputDim()
	if inputDim <= 0 {
		return errors.Wrap(ErrShape, "the first layer of the network needs an explicit input dimension")
	}
	rng := s.Rand()
	for ii, layer := range s.layers {
		if err := layer.Build(inputDim, rng); err != nil {
			return errors.WithMessagef(err, "building layer #%d", ii)
		}
		inputDim = layer.OutputDim()
	}
	s.built = true
	klog.V(1).Infof("built network with %d layers and %d parameters", len(s.layers), s.NumParams())
	return nil
}

// NumParams returns the total number of scalar parameters of the layers.
func (s *Sequential) NumParams() int {
	return xslices.Sum(xslices.Map(s.layers, Layer.NumParams))
}

// Forward runs the inputs (one example per row) through every layer and returns the output of the last one.
// Layers cache their inputs, to be used by the following Backward.
func (s *Sequential) Forward(x *mat.Dense) (*mat.Dense, error) {
	if !s.built {
		return nil, errors.Wrap(ErrNotBuilt, "Sequential.Forward")
	}
	var err error
	for ii, layer := range s.layers {
		x, err = layer.Forward(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "forward of layer #%d", ii)
		}
	}
	return x, nil
}

// Backward propagates the gradient of the loss with respect to the network output through the layers,
// in reverse order, updating their parameters.
func (s *Sequential) Backward(dY *mat.Dense) error {
	if !s.built {
		return errors.Wrap(ErrNotBuilt, "Sequential.Backward")
	}
	var err error
	for ii := len(s.layers) - 1; ii >= 0; ii-- {
		dY, err = s.layers[ii].Backward(dY, s.optimizer.LearningRate)
		if err != nil {
			return errors.WithMessagef(err, "backward of layer #%d", ii)
		}
	}
	return nil
}

// TrainStep implements train.Model: it runs forward on the batch, back-propagates the gradient of the
// squared error (prediction - labels) and returns the mean squared error of the batch before the update.
func (s *Sequential) TrainStep(inputs, labels *mat.Dense) (float64, error) {
	predictions, err := s.Forward(inputs)
	if err != nil {
		return 0, err
	}
	if err = checkSameDims(predictions, labels); err != nil {
		return 0, err
	}
	loss := MeanSquaredError(predictions, labels)
	var dY mat.Dense
	dY.Sub(predictions, labels)
	if err = s.Backward(&dY); err != nil {
		return 0, err
	}
	return loss, nil
}

// Evaluate implements train.Model: it returns the mean squared error of the predictions for inputs.
func (s *Sequential) Evaluate(inputs, labels *mat.Dense) (float64, error) {
	predictions, err := s.Forward(inputs)
	if err != nil {
		return 0, err
	}
	if err = checkSameDims(predictions, labels); err != nil {
		return 0, err
	}
	return MeanSquaredError(predictions, labels), nil
}

// NewDataset returns a training dataset over x and y, shuffled with the network random source.
func (s *Sequential) NewDataset(x, y *mat.Dense, batchSize int) (*train.InMemoryDataset, error) {
	if !s.built {
		return nil, errors.Wrap(ErrNotBuilt, "Sequential.NewDataset")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if x == nil || y == nil || x.IsEmpty() || y.IsEmpty() {
		return nil, errors.Wrap(ErrShape, "missing inputs or labels")
	}
	xRows, _ := x.Dims()
	if yRows, _ := y.Dims(); xRows != yRows {
		return nil, errors.Wrapf(ErrShape, "%d examples of inputs, but %d examples of labels", xRows, yRows)
	}
	if _, cols := x.Dims(); cols != s.InputDim() {
		return nil, errors.Wrapf(ErrShape, "network takes %d input features, got %d", s.InputDim(), cols)
	}
	if _, cols := y.Dims(); cols != s.OutputDim() {
		return nil, errors.Wrapf(ErrShape, "network outputs %d values, labels have %d", s.OutputDim(), cols)
	}
	ds, err := train.NewInMemoryDataset("train", x, y)
	if err != nil {
		return nil, errors.WithMessage(err, "Sequential.NewDataset")
	}
	return ds.BatchSize(batchSize).Shuffle(s.Rand()), nil
}

// Train runs epochs of gradient descent over x and y: each epoch shuffles the examples, trains on
// contiguous batches of batchSize examples and then measures the mean squared error over the whole dataset.
//
// It returns the per-epoch losses. If verbose, the loss is logged every train.LossLogPeriod epochs.
func (s *Sequential) Train(x, y *mat.Dense, epochs, batchSize int, verbose bool) ([]float64, error) {
	ds, err := s.NewDataset(x, y, batchSize)
	if err != nil {
		return nil, err
	}
	loop := train.NewLoop(s)
	if verbose {
		train.LogLossEveryNEpochs(loop, train.LossLogPeriod)
	}
	return loop.RunEpochs(ds, epochs)
}

// MeanSquaredError returns mean((predictions - targets)²) over all elements. Both must have the same shape.
func MeanSquaredError(predictions, targets mat.Matrix) float64 {
	rows, cols := predictions.Dims()
	diff, t := make([]float64, cols), make([]float64, cols)
	var sum float64
	for row := range rows {
		floats.Sub(mat.Row(diff, row, predictions), mat.Row(t, row, targets))
		sum += floats.Dot(diff, diff)
	}
	return sum / float64(rows*cols)
}

func checkSameDims(predictions, labels *mat.Dense) error {
	pRows, pCols := predictions.Dims()
	lRows, lCols := labels.Dims()
	if pRows != lRows || pCols != lCols {
		return errors.Wrapf(ErrShape, "predictions have shape [%d, %d], labels have shape [%d, %d]",
			pRows, pCols, lRows, lCols)
	}
	return nil
}
