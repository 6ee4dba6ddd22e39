// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/feltnet/feltnet/pkg/ml/data"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newNetwork(t *testing.T) *nn.Sequential {
	net := nn.NewSequential(nn.SGD{LearningRate: 0.5},
		nn.NewDenseWithInput(2, 5, "relu"),
		nn.NewDense(2, "sigmoid"),
	).WithRand(rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, net.Build())
	return net
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "1.50m", FormatDuration(90*time.Second))
	assert.Equal(t, "12.25µs", FormatDuration(12250*time.Nanosecond))
	assert.Equal(t, "800ns", FormatDuration(800))
}

func TestAccuracy(t *testing.T) {
	predictions := mat.NewDense(3, 2, []float64{0.9, 0.1, 0.2, 0.8, 0.6, 0.4})
	labels := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 1})
	accuracy, err := Accuracy(predictions, labels)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, accuracy, 1e-12)

	_, err = Accuracy(predictions, mat.NewDense(3, 3, nil))
	assert.True(t, errors.Is(err, nn.ErrShape))
}

func TestModelSummary(t *testing.T) {
	summary := ModelSummary(newNetwork(t))
	for _, want := range []string{"Activation", "[2, 5]", "[5, 2]", "relu", "sigmoid", "15", "12", "27", "Total"} {
		assert.Contains(t, summary, want)
	}
}

func TestReportEval(t *testing.T) {
	net := newNetwork(t)
	x, y := data.TwoBlobs(10, rand.New(rand.NewPCG(1, 1)))
	var buf bytes.Buffer
	require.NoError(t, ReportEval(&buf, net, EvalSet{Name: "test", Inputs: x, Labels: y}))
	assert.True(t, strings.HasPrefix(buf.String(), "Results on test:\n"), buf.String())
	assert.Contains(t, buf.String(), "Accuracy (acc): ")

	err := ReportEval(&buf, net, EvalSet{Name: "bad", Inputs: mat.NewDense(1, 3, nil), Labels: y})
	assert.True(t, errors.Is(err, nn.ErrShape))
}

func TestProgressBar(t *testing.T) {
	for _, terminal := range []bool{false, true} {
		net := newNetwork(t)
		x, y := data.TwoBlobs(20, rand.New(rand.NewPCG(2, 2)))
		ds, err := net.NewDataset(x, y, 5)
		require.NoError(t, err)
		loop := train.NewLoop(net)
		var buf bytes.Buffer
		pBar := attachProgressBar(loop, &buf, terminal, func() (string, string) { return "Extra", "42" })
		_, err = loop.RunEpochs(ds, 3)
		require.NoError(t, err)
		assert.Equal(t, 12, pBar.numSteps)
		assert.Equal(t, 12, pBar.lastStepReported)
		assert.NotEmpty(t, buf.String())
		if terminal {
			assert.Contains(t, buf.String(), "Extra")
			assert.Contains(t, buf.String(), "Batch loss")
		}
	}
}

func TestProgressBarStopsOnAbort(t *testing.T) {
	for _, terminal := range []bool{false, true} {
		net := newNetwork(t)
		x, y := data.TwoBlobs(20, rand.New(rand.NewPCG(3, 3)))
		ds, err := net.NewDataset(x, y, 5)
		require.NoError(t, err)
		loop := train.NewLoop(net)
		var buf bytes.Buffer
		pBar := attachProgressBar(loop, &buf, terminal)
		loop.OnEpoch("fail", 10, func(*train.Loop, float64) error { return errors.New("interrupted") })
		_, err = loop.RunEpochs(ds, 3)
		require.Error(t, err)
		assert.Nil(t, pBar.updates, "drawing goroutine stopped")
		if terminal {
			assert.True(t, strings.HasSuffix(buf.String(), "\n"))
		}
	}
}
