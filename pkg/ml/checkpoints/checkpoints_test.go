// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package checkpoints

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newNetwork(t *testing.T, seed uint64, activations ...string) *nn.Sequential {
	if len(activations) == 0 {
		activations = []string{"relu", "sigmoid"}
	}
	net := nn.NewSequential(nn.SGD{LearningRate: 0.1},
		nn.NewDenseWithInput(3, 4, activations[0]),
		nn.NewDense(2, activations[1]),
	).WithRand(rand.New(rand.NewPCG(seed, seed)))
	require.NoError(t, net.Build())
	return net
}

func denseLayers(net *nn.Sequential) []*nn.Dense {
	var layers []*nn.Dense
	for _, layer := range net.Layers() {
		layers = append(layers, layer.(*nn.Dense))
	}
	return layers
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	src := newNetwork(t, 1)
	handler, err := Build(src).Dir(dir).Keep(-1).Done()
	require.NoError(t, err)
	require.NoError(t, handler.Save(3))
	require.NoError(t, handler.Save(7))

	list, err := handler.ListCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoint-n0000000-epoch-000003", "checkpoint-n0000001-epoch-000007"}, list)

	dst := newNetwork(t, 2)
	assert.NotEqual(t, denseLayers(src)[0].Weights().RawMatrix().Data, denseLayers(dst)[0].Weights().RawMatrix().Data)
	loader, err := Build(dst).Dir(dir).Done()
	require.NoError(t, err)
	epoch, found, err := loader.LoadLatest()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7, epoch)
	for ii, layer := range denseLayers(dst) {
		want := denseLayers(src)[ii]
		assert.True(t, mat.Equal(want.Weights(), layer.Weights()), "layer #%d weights", ii)
		assert.Equal(t, want.Bias(), layer.Bias(), "layer #%d bias", ii)
	}

	// A new handler continues the numbering.
	require.NoError(t, loader.Save(8))
	list, err = loader.ListCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, "checkpoint-n0000002-epoch-000008", list[len(list)-1])
}

func TestLoadLatestEmpty(t *testing.T) {
	handler, err := Build(newNetwork(t, 1)).Dir(filepath.Join(t.TempDir(), "new")).Done()
	require.NoError(t, err)
	_, found, err := handler.LoadLatest()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeep(t *testing.T) {
	dir := t.TempDir()
	handler, err := Build(newNetwork(t, 1)).Dir(dir).Keep(2).Done()
	require.NoError(t, err)
	for epoch := 1; epoch <= 5; epoch++ {
		require.NoError(t, handler.Save(epoch))
	}
	list, err := handler.ListCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoint-n0000003-epoch-000004", "checkpoint-n0000004-epoch-000005"}, list)

	// Unrelated files are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))
	require.NoError(t, handler.Save(6))
	_, err = os.Stat(filepath.Join(dir, "notes.json"))
	assert.NoError(t, err)
}

func TestOnEpochFn(t *testing.T) {
	dir := t.TempDir()
	net := newNetwork(t, 1)
	handler, err := Build(net).Dir(dir).Keep(-1).Done()
	require.NoError(t, err)

	x := mat.NewDense(4, 3, []float64{0, 0, 1, 0, 1, 0, 1, 0, 0, 1, 1, 1})
	y := mat.NewDense(4, 2, []float64{0, 1, 1, 0, 1, 0, 0, 1})
	ds, err := net.NewDataset(x, y, 2)
	require.NoError(t, err)
	loop := train.NewLoop(net)
	train.EveryNEpochs(loop, 2, "checkpointing", 100, handler.OnEpochFn)
	losses, err := loop.RunEpochs(ds, 4)
	require.NoError(t, err)

	list, err := handler.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, list, 2)
	contents, err := os.ReadFile(filepath.Join(dir, list[1]+JsonNameSuffix))
	require.NoError(t, err)
	var data serializedData
	require.NoError(t, json.Unmarshal(contents, &data))
	assert.Equal(t, loop.RunID, data.RunID)
	assert.Equal(t, 3, data.Epoch, "saved after epochs 1 and 3")
	require.NotNil(t, data.Loss)
	assert.Equal(t, losses[2], *data.Loss)
	require.Len(t, data.Layers, 2)
	assert.Equal(t, "relu", data.Layers[0].Activation)
	assert.Equal(t, "sigmoid", data.Layers[1].Activation)
	assert.Len(t, data.Layers[0].Weights, 3)
	assert.Len(t, data.Layers[0].Weights[0], 4)
	assert.Len(t, data.Layers[1].Bias, 2)
}

func TestErrors(t *testing.T) {
	_, err := Build(nil).Dir(t.TempDir()).Done()
	assert.Error(t, err)
	_, err = Build(newNetwork(t, 1)).Done()
	assert.Error(t, err, "directory not set")
	_, err = Build(newNetwork(t, 1)).Dir(t.TempDir()).Keep(0).Done()
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = Build(newNetwork(t, 1)).Dir(file).Done()
	assert.Error(t, err, "directory is a regular file")

	unbuilt := nn.NewSequential(nn.SGD{LearningRate: 0.1}, nn.NewDenseWithInput(3, 4, "relu"))
	handler, err := Build(unbuilt).Dir(t.TempDir()).Done()
	require.NoError(t, err)
	assert.True(t, errors.Is(handler.Save(1), nn.ErrNotBuilt))

	// Loading into a different architecture fails and leaves the network untouched.
	dir := t.TempDir()
	saver, err := Build(newNetwork(t, 1)).Dir(dir).Done()
	require.NoError(t, err)
	require.NoError(t, saver.Save(1))
	other := newNetwork(t, 2, "relu", "softmax")
	before := denseLayers(other)[0].Weights()
	loader, err := Build(other).Dir(dir).Done()
	require.NoError(t, err)
	_, _, err = loader.LoadLatest()
	assert.True(t, errors.Is(err, ErrIncompatible), "got %v", err)
	assert.True(t, mat.Equal(before, denseLayers(other)[0].Weights()))

	_, err = saver.Load("checkpoint-n0000099-epoch-000001")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}
