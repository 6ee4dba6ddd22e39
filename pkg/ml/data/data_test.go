// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const starsCSV = `alpha,delta,class,redshift
135.6,32.4,GALAXY,0.63
144.8,31.2,QSO,1.42
142.1,35.6,STAR,0
338.7,-0.4,GALAXY,0.77
`

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.csv")
	require.NoError(t, os.WriteFile(path, []byte(starsCSV), 0o600))
	table, err := LoadCSV(path, "class")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "delta", "redshift"}, table.FeatureNames)
	assert.Equal(t, []string{"GALAXY", "QSO", "STAR", "GALAXY"}, table.Labels)
	rows, cols := table.Features.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float64{142.1, 35.6, 0}, table.Features.RawRowView(2))

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), "class")
	assert.Error(t, err)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(starsCSV), "label")
	assert.Error(t, err, "missing label column")

	_, err = ReadCSV(strings.NewReader("name,class\nvega,STAR\n"), "class")
	assert.Error(t, err, "non-numeric feature")

	_, err = ReadCSV(strings.NewReader("class\nSTAR\n"), "class")
	assert.Error(t, err, "no features")
}

func TestStandardize(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	z, scaler := Standardize(x)
	assert.Equal(t, []float64{2.5, 5}, scaler.Mean)
	assert.InDelta(t, math.Sqrt(1.25), scaler.StdDev[0], 1e-12, "population standard deviation")
	assert.Equal(t, 0.0, scaler.StdDev[1])
	assert.InDelta(t, -1.5/math.Sqrt(1.25), z.At(0, 0), 1e-12)
	assert.InDelta(t, 1.5/math.Sqrt(1.25), z.At(3, 0), 1e-12)
	for row := range 4 {
		assert.Equal(t, 0.0, z.At(row, 1), "constant column is only centered")
	}

	// Transform applies the fitted statistics to new data.
	other := scaler.Transform(mat.NewDense(1, 2, []float64{2.5, 6}))
	assert.Equal(t, []float64{0, 1}, other.RawRowView(0))
}

func TestOneHot(t *testing.T) {
	encoded, classes, err := OneHot([]string{"STAR", "GALAXY", "QSO", "GALAXY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GALAXY", "QSO", "STAR"}, classes)
	assert.Equal(t, []float64{
		0, 0, 1,
		1, 0, 0,
		0, 1, 0,
		1, 0, 0,
	}, encoded.RawMatrix().Data)

	_, _, err = OneHot(nil)
	assert.Error(t, err)
}

func TestSplitAndSample(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	x, y := TwoBlobs(10, rng)
	trainX, trainY, testX, testY, err := Split(x, y, 0.2, rng)
	require.NoError(t, err)
	trainRows, _ := trainX.Dims()
	testRows, _ := testX.Dims()
	assert.Equal(t, 8, trainRows)
	assert.Equal(t, 2, testRows)
	labelRows, _ := trainY.Dims()
	assert.Equal(t, 8, labelRows)
	labelRows, _ = testY.Dims()
	assert.Equal(t, 2, labelRows)

	// Every example ends up in exactly one of the sets.
	var total float64
	for _, m := range []*mat.Dense{trainX, testX} {
		total += mat.Sum(m)
	}
	assert.InDelta(t, mat.Sum(x), total, 1e-9)

	_, _, _, _, err = Split(x, y, 1, rng)
	assert.Error(t, err)
	_, _, _, _, err = Split(x, mat.NewDense(3, 2, nil), 0.2, rng)
	assert.Error(t, err)

	sampleX, sampleY, err := Sample(x, y, 5, rng)
	require.NoError(t, err)
	rows, cols := sampleX.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 2, cols)
	rows, _ = sampleY.Dims()
	assert.Equal(t, 5, rows)
	_, _, err = Sample(x, y, 11, rng)
	assert.Error(t, err)
}

func TestTwoBlobs(t *testing.T) {
	x, y := TwoBlobs(200, rand.New(rand.NewPCG(1, 2)))
	var sums [2][2]float64
	for row := range 200 {
		class := 0
		if y.At(row, 1) == 1 {
			class = 1
		}
		assert.Equal(t, 1.0, y.At(row, 0)+y.At(row, 1))
		sums[class][0] += x.At(row, 0)
		sums[class][1] += x.At(row, 1)
	}
	assert.InDelta(t, -1, sums[0][0]/100, 0.2)
	assert.InDelta(t, 1, sums[1][1]/100, 0.2)
}
