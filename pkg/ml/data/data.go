// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package data prepares tabular datasets for training a network: CSV loading, feature standardization,
// one-hot labels, train/test split and sampling.
//
// It is a thin collaborator for the command line tool: the core packages don't depend on it.
package data

import (
	"io"
	"math"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// SamplePool is the number of leading rows Sample draws its examples from.
const SamplePool = 1000

// Table holds a dataset loaded from a CSV file: numeric features, one example per row, and the raw labels.
type Table struct {
	FeatureNames []string
	Features     *mat.Dense
	Labels       []string
}

// LoadCSV reads a CSV file with a header line. The labelColumn holds the class of each row, every other
// column must be numeric.
func LoadCSV(path, labelColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dataset %q", path)
	}
	defer func() { _ = f.Close() }()
	table, err := ReadCSV(f, labelColumn)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading dataset %q", path)
	}
	klog.V(1).Infof("loaded %d rows with %d features from %q", len(table.Labels), len(table.FeatureNames), path)
	return table, nil
}

// ReadCSV is like LoadCSV, but reads the CSV contents from r.
func ReadCSV(r io.Reader, labelColumn string) (*Table, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.WithTypes(map[string]series.Type{
		labelColumn: series.String,
	}))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "parsing CSV")
	}
	if !slices.Contains(df.Names(), labelColumn) {
		return nil, errors.Errorf("label column %q not found in %v", labelColumn, df.Names())
	}
	labels := df.Col(labelColumn).Records()
	features := df.Drop(labelColumn)
	if features.Ncol() == 0 || features.Nrow() == 0 {
		return nil, errors.Errorf("no features or no rows: got %d columns and %d rows", features.Ncol(), features.Nrow())
	}

	table := &Table{
		FeatureNames: features.Names(),
		Features:     mat.NewDense(features.Nrow(), features.Ncol(), nil),
		Labels:       labels,
	}
	for colIdx, name := range table.FeatureNames {
		col := features.Col(name)
		if col.Type() == series.String {
			return nil, errors.Errorf("feature column %q is not numeric", name)
		}
		for rowIdx, value := range col.Float() {
			if math.IsNaN(value) {
				return nil, errors.Errorf("feature column %q has a missing value in row %d", name, rowIdx+1)
			}
			table.Features.Set(rowIdx, colIdx, value)
		}
	}
	return table, nil
}

// Scaler holds the per-feature mean and (population) standard deviation used to standardize features.
type Scaler struct {
	Mean, StdDev []float64
}

// FitScaler computes the mean and population standard deviation of each column of x.
func FitScaler(x mat.Matrix) *Scaler {
	_, cols := x.Dims()
	s := &Scaler{Mean: make([]float64, cols), StdDev: make([]float64, cols)}
	for col := range cols {
		values := mat.Col(nil, col, x)
		s.Mean[col], s.StdDev[col] = stat.PopMeanStdDev(values, nil)
	}
	return s
}

// Transform returns (x - mean) / stddev, column by column. Constant columns are only centered.
func (s *Scaler) Transform(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, col int, v float64) float64 {
		v -= s.Mean[col]
		if s.StdDev[col] > 0 {
			v /= s.StdDev[col]
		}
		return v
	}, x)
	return &out
}

// Standardize returns the z-scores of each column of x, using the population standard deviation,
// along with the Scaler fitted on x.
func Standardize(x mat.Matrix) (*mat.Dense, *Scaler) {
	s := FitScaler(x)
	return s.Transform(x), s
}

// OneHot encodes the labels as rows of a [len(labels), numClasses] matrix. Classes are the distinct labels
// in sorted order, and they are returned as well.
func OneHot(labels []string) (*mat.Dense, []string, error) {
	if len(labels) == 0 {
		return nil, nil, errors.New("no labels to encode")
	}
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	encoded := mat.NewDense(len(labels), len(classes), nil)
	for row, label := range labels {
		idx, _ := slices.BinarySearch(classes, label)
		encoded.Set(row, idx, 1)
	}
	return encoded, classes, nil
}

// Split shuffles the examples and returns the train and test sets, the test set holding
// ceil(testFraction * numExamples) of them.
func Split(x, y *mat.Dense, testFraction float64, rng *rand.Rand) (trainX, trainY, testX, testY *mat.Dense, err error) {
	n, err := numExamples(x, y)
	if err != nil {
		return
	}
	if testFraction <= 0 || testFraction >= 1 {
		err = errors.Errorf("test fraction must be in (0, 1), got %g", testFraction)
		return
	}
	numTest := int(math.Ceil(testFraction * float64(n)))
	if numTest >= n {
		err = errors.Errorf("splitting %d examples with test fraction %g leaves no training examples", n, testFraction)
		return
	}
	perm := rng.Perm(n)
	testRows, trainRows := perm[:numTest], perm[numTest:]
	return gatherRows(x, trainRows), gatherRows(y, trainRows), gatherRows(x, testRows), gatherRows(y, testRows), nil
}

// Sample returns n distinct examples drawn from the first SamplePool rows.
func Sample(x, y *mat.Dense, n int, rng *rand.Rand) (sampleX, sampleY *mat.Dense, err error) {
	total, err := numExamples(x, y)
	if err != nil {
		return nil, nil, err
	}
	pool := min(total, SamplePool)
	if n <= 0 || n > pool {
		return nil, nil, errors.Errorf("can't sample %d examples out of %d", n, pool)
	}
	rows := rng.Perm(pool)[:n]
	return gatherRows(x, rows), gatherRows(y, rows), nil
}

// TwoBlobs generates n examples of two Gaussian blobs in 2D, centered at (-1, -1) and (1, 1) with standard
// deviation 0.5. Labels are one-hot encoded, with 2 columns.
func TwoBlobs(n int, rng *rand.Rand) (x, y *mat.Dense) {
	x = mat.NewDense(n, 2, nil)
	y = mat.NewDense(n, 2, nil)
	for row := range n {
		class := row % 2
		center := float64(2*class - 1)
		x.Set(row, 0, center+0.5*rng.NormFloat64())
		x.Set(row, 1, center+0.5*rng.NormFloat64())
		y.Set(row, class, 1)
	}
	return
}

func numExamples(x, y *mat.Dense) (int, error) {
	if x == nil || y == nil {
		return 0, errors.New("missing inputs or labels")
	}
	n, _ := x.Dims()
	if labelRows, _ := y.Dims(); labelRows != n {
		return 0, errors.Errorf("inputs have %d rows, labels have %d", n, labelRows)
	}
	return n, nil
}

func gatherRows(m *mat.Dense, rows []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for ii, row := range rows {
		out.SetRow(ii, m.RawRowView(row))
	}
	return out
}
