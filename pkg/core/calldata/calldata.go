// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package calldata renders vectors and matrices of reals as length-prefixed sequences of field elements, the
// textual form consumed by contract-call encoders.
//
// A vector is rendered as its element count followed by its encoded elements, and a matrix as its row count
// followed by each row rendered as a vector:
//
//	vector := elem_count ", " field_int (", " field_int)*
//	matrix := row_count ", " vector (", " vector)*
//
// The whole payload is therefore a flat list of decimal field elements joined by ", ", which Builder
// accumulates and Reader parses back.
package calldata

import (
	"strings"

	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned for empty or non-rectangular tensors.
	ErrShape = errors.New("invalid tensor shape")

	// ErrSyntax is returned by Reader when a payload doesn't follow the calldata grammar.
	ErrSyntax = errors.New("malformed calldata")
)

// Separator joins the elements of a payload.
const Separator = ", "

// Builder accumulates a flat sequence of field elements.
//
// Errors are sticky: after the first failure further calls are ignored, and the error is reported by Err,
// String and Felts.
type Builder struct {
	codec *felt.Codec
	felts []felt.Element
	err   error
}

// NewBuilder creates an empty Builder that encodes reals with codec.
func NewBuilder(codec *felt.Codec) *Builder {
	return &Builder{codec: codec}
}

func (b *Builder) setError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error that happened while building, if any.
func (b *Builder) Err() error {
	return b.err
}

// Int appends a non-negative integer (a count or a tag) as a field element.
func (b *Builder) Int(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		b.setError(errors.Errorf("calldata counts and tags must be non-negative, got %d", n))
		return b
	}
	b.felts = append(b.felts, felt.ElementFromUint64(uint64(n)))
	return b
}

// Element appends an already encoded element.
func (b *Builder) Element(e felt.Element) *Builder {
	if b.err == nil {
		b.felts = append(b.felts, e)
	}
	return b
}

// Vector appends the element count of v followed by its encoded values.
func (b *Builder) Vector(v []float64) *Builder {
	if b.err != nil {
		return b
	}
	if len(v) == 0 {
		b.setError(errors.Wrap(ErrShape, "cannot encode an empty vector"))
		return b
	}
	elems, err := b.codec.EncodeVector(v)
	if err != nil {
		b.setError(err)
		return b
	}
	b.Int(len(v))
	b.felts = append(b.felts, elems...)
	return b
}

// Matrix appends the row count of m followed by each row as a vector.
func (b *Builder) Matrix(m [][]float64) *Builder {
	if b.err != nil {
		return b
	}
	if err := checkRectangular(m); err != nil {
		b.setError(err)
		return b
	}
	b.Int(len(m))
	for ii, row := range m {
		b.Vector(row)
		if b.err != nil {
			b.err = errors.WithMessagef(b.err, "row #%d", ii)
			return b
		}
	}
	return b
}

// Dense appends a gonum matrix, in row-major order.
func (b *Builder) Dense(m mat.Matrix) *Builder {
	return b.Matrix(DenseRows(m))
}

// Len returns the number of field elements accumulated so far.
func (b *Builder) Len() int {
	return len(b.felts)
}

// Felts returns the accumulated field elements.
func (b *Builder) Felts() ([]felt.Element, error) {
	if b.err != nil {
		return nil, b.err
	}
	return append([]felt.Element(nil), b.felts...), nil
}

// String returns the payload text, or the empty string if an error occurred.
func (b *Builder) String() string {
	if b.err != nil {
		return ""
	}
	return Join(b.felts)
}

// Text returns the payload text and the first error, if any.
func (b *Builder) Text() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return Join(b.felts), nil
}

// Join renders elements as decimal integers joined by Separator.
func Join(felts []felt.Element) string {
	var sb strings.Builder
	for ii, e := range felts {
		if ii > 0 {
			sb.WriteString(Separator)
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

// EncodeVector renders "<n>, <e0>, ..., <e_{n-1}>".
func EncodeVector(codec *felt.Codec, v []float64) (string, error) {
	return NewBuilder(codec).Vector(v).Text()
}

// EncodeMatrix renders "<rows>, <row0>, <row1>, ...", each row rendered with EncodeVector.
func EncodeMatrix(codec *felt.Codec, m [][]float64) (string, error) {
	return NewBuilder(codec).Matrix(m).Text()
}

// EncodeDense is EncodeMatrix for gonum matrices.
func EncodeDense(codec *felt.Codec, m mat.Matrix) (string, error) {
	return NewBuilder(codec).Dense(m).Text()
}

// DenseRows copies a gonum matrix into a row-major [][]float64.
func DenseRows(m mat.Matrix) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for ii := range out {
		out[ii] = make([]float64, cols)
		mat.Row(out[ii], ii, m)
	}
	return out
}

func checkRectangular(m [][]float64) error {
	if len(m) == 0 {
		return errors.Wrap(ErrShape, "cannot encode a matrix with no rows")
	}
	for ii, row := range m {
		if len(row) != len(m[0]) {
			return errors.Wrapf(ErrShape, "matrix is not rectangular: row #%d has %d columns, row #0 has %d",
				ii, len(row), len(m[0]))
		}
	}
	return nil
}
