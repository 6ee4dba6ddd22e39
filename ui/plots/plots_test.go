// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/feltnet/feltnet/pkg/ml/data"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLossPlot(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"loss.png", "loss.svg", filepath.Join("sub", "loss.png")} {
		filePath := filepath.Join(dir, name)
		require.NoError(t, SaveLossPlot([]float64{0.5, 0.3, math.NaN(), 0.2}, filePath))
		fi, err := os.Stat(filePath)
		require.NoError(t, err)
		assert.Positive(t, fi.Size(), name)
	}
	assert.Error(t, SaveLossPlot(nil, filepath.Join(dir, "empty.png")))
	assert.Error(t, SaveLossPlot([]float64{math.Inf(1)}, filepath.Join(dir, "inf.png")))
}

func TestLossPlotRange(t *testing.T) {
	p, err := newLossPlot([]float64{0.5, 0.3, math.NaN(), 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Y.Min)
	assert.Equal(t, 0.5, p.Y.Max)

	p, err = newLossPlot([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Y.Min)
	assert.Equal(t, 1.0, p.Y.Max, "flat line still gets a visible range")
}

func TestAttachPointsWriter(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	x, y := data.TwoBlobs(20, rng)
	net := nn.NewSequential(nn.SGD{LearningRate: 0.5},
		nn.NewDenseWithInput(2, 3, "sigmoid"),
		nn.NewDense(2, "sigmoid"),
	).WithRand(rng)
	require.NoError(t, net.Build())
	ds, err := net.NewDataset(x, y, 5)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "run")
	loop := train.NewLoop(net)
	filePath, err := AttachPointsWriter(loop, dir)
	require.NoError(t, err)
	losses, err := loop.RunEpochs(ds, 3)
	require.NoError(t, err)
	// A second run appends to the same file.
	more, err := loop.RunEpochs(ds, 2)
	require.NoError(t, err)

	points, err := LoadPoints(filePath)
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.Equal(t, append(losses, more...), Losses(points))
	assert.Equal(t, []int{1, 2, 3, 1, 2}, []int{points[0].Epoch, points[1].Epoch, points[2].Epoch, points[3].Epoch, points[4].Epoch})
	assert.Equal(t, loop.RunID.String(), points[0].RunID)

	_, err = LoadPoints(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPointsWriterClosesOnAbort(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	x, y := data.TwoBlobs(8, rng)
	net := nn.NewSequential(nn.SGD{LearningRate: 0.5}, nn.NewDenseWithInput(2, 2, "sigmoid")).WithRand(rng)
	require.NoError(t, net.Build())
	ds, err := net.NewDataset(x, y, 4)
	require.NoError(t, err)

	loop := train.NewLoop(net)
	w, err := attachPointsWriter(loop, t.TempDir())
	require.NoError(t, err)
	loop.OnEpoch("fail", 200, func(loop *train.Loop, _ float64) error {
		assert.NotNil(t, w.f, "file is open while training")
		if loop.Epoch == 1 {
			return errors.New("interrupted")
		}
		return nil
	})
	_, err = loop.RunEpochs(ds, 3)
	require.Error(t, err)
	assert.Nil(t, w.f)

	points, err := LoadPoints(w.filePath)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}
