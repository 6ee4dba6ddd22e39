// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package calldata

import (
	"math"
	"strings"

	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/pkg/errors"
)

// Reader consumes a payload produced by Builder, in order.
type Reader struct {
	codec *felt.Codec
	felts []felt.Element
	pos   int
}

// NewReader tokenizes payload (decimal elements separated by commas, spaces are ignored) and returns a
// Reader positioned at its first element.
func NewReader(codec *felt.Codec, payload string) (*Reader, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return &Reader{codec: codec}, nil
	}
	parts := strings.Split(payload, ",")
	felts := make([]felt.Element, len(parts))
	for ii, part := range parts {
		e, err := codec.ParseElement(part)
		if err != nil {
			return nil, errors.Wrapf(ErrSyntax, "token #%d (%q): %v", ii, strings.TrimSpace(part), err)
		}
		felts[ii] = e
	}
	return &Reader{codec: codec, felts: felts}, nil
}

// NewFeltsReader returns a Reader over already parsed elements.
func NewFeltsReader(codec *felt.Codec, felts []felt.Element) *Reader {
	return &Reader{codec: codec, felts: felts}
}

// Remaining returns the number of elements not yet consumed.
func (r *Reader) Remaining() int {
	return len(r.felts) - r.pos
}

// Position returns the index of the next element to be consumed.
func (r *Reader) Position() int {
	return r.pos
}

// Element consumes the next element.
func (r *Reader) Element() (felt.Element, error) {
	if r.pos >= len(r.felts) {
		return felt.Element{}, errors.Wrapf(ErrSyntax, "unexpected end of payload after %d elements", len(r.felts))
	}
	e := r.felts[r.pos]
	r.pos++
	return e, nil
}

// Int consumes the next element as a count or tag.
func (r *Reader) Int() (int, error) {
	pos := r.pos
	e, err := r.Element()
	if err != nil {
		return 0, err
	}
	v, ok := e.Uint64()
	if !ok || v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrSyntax, "element #%d (%s) is not a valid count", pos, e)
	}
	return int(v), nil
}

// Count consumes a length prefix that must be positive and not larger than the remaining elements.
func (r *Reader) Count() (int, error) {
	pos := r.pos
	n, err := r.Int()
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > r.Remaining() {
		return 0, errors.Wrapf(ErrSyntax, "element #%d: length prefix %d invalid with %d elements left", pos, n, r.Remaining())
	}
	return n, nil
}

// Vector consumes a length-prefixed vector and decodes its values.
func (r *Reader) Vector() ([]float64, error) {
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	v := make([]float64, n)
	for ii := range v {
		e, err := r.Element()
		if err != nil {
			return nil, err
		}
		v[ii] = r.codec.Decode(e)
	}
	return v, nil
}

// Matrix consumes a row-count prefixed matrix. Rows must all have the same length.
func (r *Reader) Matrix() ([][]float64, error) {
	rows, err := r.Count()
	if err != nil {
		return nil, err
	}
	m := make([][]float64, rows)
	for ii := range m {
		m[ii], err = r.Vector()
		if err != nil {
			return nil, errors.WithMessagef(err, "row #%d", ii)
		}
		if len(m[ii]) != len(m[0]) {
			return nil, errors.Wrapf(ErrSyntax, "row #%d has %d columns, row #0 has %d", ii, len(m[ii]), len(m[0]))
		}
	}
	return m, nil
}

// Done returns an error if there are elements left.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return errors.Wrapf(ErrSyntax, "%d trailing elements after position %d", r.Remaining(), r.pos)
	}
	return nil
}

// DecodeVector parses a payload holding exactly one vector.
func DecodeVector(codec *felt.Codec, payload string) ([]float64, error) {
	r, err := NewReader(codec, payload)
	if err != nil {
		return nil, err
	}
	v, err := r.Vector()
	if err != nil {
		return nil, err
	}
	return v, r.Done()
}

// DecodeMatrix parses a payload holding exactly one matrix.
func DecodeMatrix(codec *felt.Codec, payload string) ([][]float64, error) {
	r, err := NewReader(codec, payload)
	if err != nil {
		return nil, err
	}
	m, err := r.Matrix()
	if err != nil {
		return nil, err
	}
	return m, r.Done()
}
