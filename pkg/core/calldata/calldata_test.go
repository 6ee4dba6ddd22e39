// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package calldata_test

import (
	"math/big"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/feltnet/feltnet/pkg/core/calldata"
	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func negative(q int64) string {
	return new(big.Int).Sub(felt.Modulus, big.NewInt(q)).String()
}

func TestEncodeVector(t *testing.T) {
	codec := felt.Default()
	got, err := calldata.EncodeVector(codec, []float64{1, -2, 0.5})
	require.NoError(t, err)
	assert.Equal(t, "3, 1000000, "+negative(2_000_000)+", 500000", got)

	got, err = calldata.EncodeVector(codec, []float64{0})
	require.NoError(t, err)
	assert.Equal(t, "1, 0", got)

	_, err = calldata.EncodeVector(codec, nil)
	assert.True(t, errors.Is(err, calldata.ErrShape))
}

func TestEncodeMatrix(t *testing.T) {
	codec := felt.Default()
	got, err := calldata.EncodeMatrix(codec, [][]float64{{1, -2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, "2, 2, 1000000, "+negative(2_000_000)+", 2, 3000000, 4000000", got)

	_, err = calldata.EncodeMatrix(codec, [][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, calldata.ErrShape))
	_, err = calldata.EncodeMatrix(codec, nil)
	assert.True(t, errors.Is(err, calldata.ErrShape))
	_, err = calldata.EncodeMatrix(codec, [][]float64{{}, {}})
	assert.True(t, errors.Is(err, calldata.ErrShape))

	_, err = calldata.EncodeMatrix(codec, [][]float64{{1}, {1e40}})
	assert.True(t, errors.Is(err, felt.ErrRange))
}

func TestEncodeDense(t *testing.T) {
	codec := felt.Default()
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	fromDense, err := calldata.EncodeDense(codec, m)
	require.NoError(t, err)
	fromRows, err := calldata.EncodeMatrix(codec, [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, fromRows, fromDense)

	transposed, err := calldata.EncodeDense(codec, m.T())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(transposed, "3, 2, 1000000, 4000000, 2, "), transposed)
}

func TestLengthPrefixes(t *testing.T) {
	codec := felt.Default()
	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		rows, cols := 1+rng.IntN(8), 1+rng.IntN(8)
		m := make([][]float64, rows)
		for ii := range m {
			m[ii] = make([]float64, cols)
			for jj := range m[ii] {
				m[ii][jj] = rng.NormFloat64() * 100
			}
		}
		text, err := calldata.EncodeMatrix(codec, m)
		require.NoError(t, err)
		parts := strings.Split(text, calldata.Separator)
		require.Len(t, parts, 1+rows*(1+cols))
		assert.Equal(t, strconv.Itoa(rows), parts[0])
		for ii := 0; ii < rows; ii++ {
			assert.Equal(t, strconv.Itoa(cols), parts[1+ii*(1+cols)])
		}

		text, err = calldata.EncodeVector(codec, m[0])
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(cols), strings.Split(text, calldata.Separator)[0])

		decoded, err := calldata.DecodeMatrix(codec, mustEncodeMatrix(t, codec, m))
		require.NoError(t, err)
		require.Len(t, decoded, rows)
		for ii := range m {
			for jj := range m[ii] {
				assert.InDelta(t, m[ii][jj], decoded[ii][jj], 2e-6)
			}
		}
	}
}

func mustEncodeMatrix(t *testing.T, codec *felt.Codec, m [][]float64) string {
	text, err := calldata.EncodeMatrix(codec, m)
	require.NoError(t, err)
	return text
}

func TestBuilder(t *testing.T) {
	codec := felt.Default()
	b := calldata.NewBuilder(codec).Int(2).Vector([]float64{0.25}).Matrix([][]float64{{-1}}).Int(0)
	felts, err := b.Felts()
	require.NoError(t, err)
	assert.Equal(t, 7, b.Len())
	assert.Equal(t, "2, 1, 250000, 1, 1, "+negative(1_000_000)+", 0", calldata.Join(felts))
	assert.Equal(t, calldata.Join(felts), b.String())

	b = calldata.NewBuilder(codec).Int(1).Vector(nil).Int(3)
	require.Error(t, b.Err())
	assert.True(t, errors.Is(b.Err(), calldata.ErrShape))
	assert.Equal(t, "", b.String())
	_, err = b.Felts()
	assert.Error(t, err)

	assert.Error(t, calldata.NewBuilder(codec).Int(-1).Err())
}

func TestReader(t *testing.T) {
	codec := felt.Default()
	payload := "2, 2, 1000000, " + negative(2_000_000) + ", 1, 500000 ,7"
	r, err := calldata.NewReader(codec, payload)
	require.NoError(t, err)
	assert.Equal(t, 7, r.Remaining())

	n, err := r.Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	v, err := r.Vector()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, v)
	v, err = r.Vector()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, v)
	tag, err := r.Int()
	require.NoError(t, err)
	assert.Equal(t, 7, tag)
	require.NoError(t, r.Done())

	_, err = r.Element()
	assert.True(t, errors.Is(err, calldata.ErrSyntax))
}

func TestReaderErrors(t *testing.T) {
	codec := felt.Default()
	for _, payload := range []string{
		"2, 1, 5",                   // Truncated vector.
		"1, x",                      // Not a number.
		"-1, 5",                     // Negative literal.
		"0",                         // Empty vector.
		"2, 2, 1, 2, 1, 3",          // Ragged matrix.
		"1, " + felt.ModulusDecimal, // Element not reduced.
	} {
		_, err := calldata.DecodeMatrix(codec, payload)
		assert.True(t, errors.Is(err, calldata.ErrSyntax), "payload %q: %v", payload, err)
	}

	_, err := calldata.DecodeVector(codec, "1, 5, 6")
	assert.True(t, errors.Is(err, calldata.ErrSyntax), "trailing elements")

	r, err := calldata.NewReader(codec, "  ")
	require.NoError(t, err)
	assert.Zero(t, r.Remaining())
}

func TestCairoLiterals(t *testing.T) {
	codec := felt.Default()
	got, err := calldata.CairoVectorLiteral(codec, []float64{1, 0.5})
	require.NoError(t, err)
	assert.Equal(t, "array![1000000, 500000].span()", got)

	got, err = calldata.CairoMatrixLiteral(codec, [][]float64{{1, 2}, {3, -1}})
	require.NoError(t, err)
	assert.Equal(t, "array![array![1000000, 2000000].span(), array![3000000, "+negative(1_000_000)+"].span()].span()", got)

	_, err = calldata.CairoMatrixLiteral(codec, [][]float64{{1}, {2, 3}})
	assert.True(t, errors.Is(err, calldata.ErrShape))
}
