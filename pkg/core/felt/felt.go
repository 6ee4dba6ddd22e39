// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package felt implements the fixed-point codec between real numbers and elements of a prime field.
//
// A real x is quantized to q = trunc(x * S), with S = 10^scaleDigits, and stored as the field element q if
// q >= 0, or P + q if q < 0 ("ring wraparound"). Decoding interprets every element greater than the
// signed-range threshold T as a wrapped negative value.
//
// The scheme is only correct for |q| <= T: values in (T, P) are reserved for negative numbers, so
// Codec.Encode refuses (with ErrRange) any value whose quantum does not fit, instead of wrapping it.
//
// Truncation works on the shortest decimal form of x, not on the float64 product x*S: this differs from a
// binary cast like int64(x*S) when the product lands just below an integer (0.000249*1e6 is
// 248.99999999999997, which a cast truncates to 248, while Quantize returns 249).
//
// The default codec uses the Stark field order as P, the maximum signed 128-bit integer as T and 6 decimal
// digits of precision (S = 1e6):
//
//	codec := felt.Default()
//	e, err := codec.Encode(-2.5)   // e == P - 2_500_000
//	x := codec.Decode(e)           // x == -2.5
package felt

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned when a codec is configured with inconsistent constants.
	ErrConfiguration = errors.New("invalid field codec configuration")

	// ErrRange is returned when a value cannot be represented: its quantum is larger in magnitude than the
	// signed-range threshold, or an element is not in [0, P).
	ErrRange = errors.New("value out of the representable range")

	// ErrNotFinite is returned when encoding NaN or ±Inf.
	ErrNotFinite = errors.New("value is not finite")

	// ErrShape is returned for non-rectangular matrices.
	ErrShape = errors.New("invalid tensor shape")
)

const (
	// ModulusDecimal is the Stark field order, 2^251 + 17*2^192 + 1.
	ModulusDecimal = "3618502788666131213697322783095070105623107215331596699973092056135872020481"

	// DefaultScaleDigits is the number of decimal digits kept by the default codec: S = 1e6.
	DefaultScaleDigits = 6

	// MaxScaleDigits bounds the scale, so that S is exactly representable as a float64.
	MaxScaleDigits = 18
)

var (
	// Modulus is the field order P used by Default.
	Modulus = mustParseDecimal(ModulusDecimal)

	// SignedThreshold is T = 2^127 - 1, the largest quantum interpreted as non-negative by Default.
	SignedThreshold = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

	defaultCodec = must1(NewCodec(Modulus, SignedThreshold, DefaultScaleDigits))
)

func mustParseDecimal(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		exceptions.Panicf("felt: invalid decimal constant %q", s)
	}
	return v
}

func must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Codec converts between float64 values and field elements. It is immutable and safe for concurrent use.
type Codec struct {
	modulus, threshold *big.Int
	scaleDigits        int
	scale              float64
}

// Default returns the codec for the Stark field with T = 2^127-1 and S = 1e6.
func Default() *Codec {
	return defaultCodec
}

// NewCodec creates a codec for the field of order modulus, with the given signed-range threshold and
// number of decimal digits of precision.
//
// The modulus must be prime, the threshold positive and small enough (2*T < P) for the non-negative range
// [0, T] and the wrapped negative range [P-T, P) not to overlap.
func NewCodec(modulus, threshold *big.Int, scaleDigits int) (*Codec, error) {
	if modulus == nil || threshold == nil {
		return nil, errors.Wrap(ErrConfiguration, "modulus and threshold must be given")
	}
	if modulus.Sign() <= 0 || !modulus.ProbablyPrime(20) {
		return nil, errors.Wrapf(ErrConfiguration, "modulus %s is not a prime", modulus)
	}
	if threshold.Sign() <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "threshold %s must be positive", threshold)
	}
	if new(big.Int).Lsh(threshold, 1).Cmp(modulus) >= 0 {
		return nil, errors.Wrapf(ErrConfiguration,
			"threshold %s too large for modulus %s: positive and negative ranges overlap", threshold, modulus)
	}
	if scaleDigits < 0 || scaleDigits > MaxScaleDigits {
		return nil, errors.Wrapf(ErrConfiguration, "scale digits must be in [0, %d], got %d", MaxScaleDigits, scaleDigits)
	}
	return &Codec{
		modulus:     new(big.Int).Set(modulus),
		threshold:   new(big.Int).Set(threshold),
		scaleDigits: scaleDigits,
		scale:       math.Pow10(scaleDigits),
	}, nil
}

// Modulus returns a copy of the field order P.
func (c *Codec) Modulus() *big.Int { return new(big.Int).Set(c.modulus) }

// Threshold returns a copy of the signed-range threshold T.
func (c *Codec) Threshold() *big.Int { return new(big.Int).Set(c.threshold) }

// Scale returns S.
func (c *Codec) Scale() float64 { return c.scale }

// ScaleDigits returns the number of decimal digits of S.
func (c *Codec) ScaleDigits() int { return c.scaleDigits }

// MaxMagnitude returns T/S, the magnitude bound of encodable reals.
func (c *Codec) MaxMagnitude() float64 {
	t, _ := new(big.Float).SetInt(c.threshold).Float64()
	return t / c.scale
}

// Quantize returns the signed quantum trunc(x * S).
//
// Truncation is toward zero and is applied to the shortest decimal representation of x, so 0.000249
// quantizes to 249 (and not to 248, as truncating the binary product 0.000249 * 1e6 would).
func (c *Codec) Quantize(x float64) (*big.Int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, errors.Wrapf(ErrNotFinite, "cannot quantize %v", x)
	}
	digits := strconv.FormatFloat(x, 'f', -1, 64)
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	intPart, fracPart, _ := strings.Cut(digits, ".")
	if len(fracPart) > c.scaleDigits {
		fracPart = fracPart[:c.scaleDigits]
	} else {
		fracPart += strings.Repeat("0", c.scaleDigits-len(fracPart))
	}
	q, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, errors.Errorf("failed to quantize %v: unexpected decimal form %q", x, digits)
	}
	if negative {
		q.Neg(q)
	}
	if q.CmpAbs(c.threshold) > 0 {
		return nil, errors.Wrapf(ErrRange, "quantum of %g has magnitude above threshold %s (max |x| is %g)",
			x, c.threshold, c.MaxMagnitude())
	}
	return q, nil
}

// Encode converts x to a field element: q if q >= 0, P + q otherwise, with q = Quantize(x).
func (c *Codec) Encode(x float64) (Element, error) {
	q, err := c.Quantize(x)
	if err != nil {
		return Element{}, err
	}
	return c.FromQuantized(q)
}

// FromQuantized wraps a signed quantum into the field. It returns ErrRange if |q| > T.
func (c *Codec) FromQuantized(q *big.Int) (Element, error) {
	if q.CmpAbs(c.threshold) > 0 {
		return Element{}, errors.Wrapf(ErrRange, "quantum %s has magnitude above threshold %s", q, c.threshold)
	}
	v := new(big.Int).Set(q)
	if v.Sign() < 0 {
		v.Add(v, c.modulus)
	}
	return Element{v: v}, nil
}

// DecodeQuantized returns the signed quantum represented by e: e - P if e > T, e otherwise.
//
// It panics if e is not reduced modulo P.
func (c *Codec) DecodeQuantized(e Element) *big.Int {
	v := e.value()
	if v.Cmp(c.modulus) >= 0 {
		exceptions.Panicf("felt: element %s is not reduced modulo %s", v, c.modulus)
	}
	q := new(big.Int).Set(v)
	if q.Cmp(c.threshold) > 0 {
		q.Sub(q, c.modulus)
	}
	return q
}

// Decode converts a field element back to a real: (e - P) / S if e > T, e / S otherwise.
//
// It panics if e is not reduced modulo P.
func (c *Codec) Decode(e Element) float64 {
	q, _ := new(big.Float).SetInt(c.DecodeQuantized(e)).Float64()
	return q / c.scale
}

// EncodeVector encodes each value of v, in order.
func (c *Codec) EncodeVector(v []float64) ([]Element, error) {
	elems := make([]Element, len(v))
	for ii, x := range v {
		var err error
		elems[ii], err = c.Encode(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "element #%d", ii)
		}
	}
	return elems, nil
}

// EncodeMatrix encodes a row-major rectangular matrix.
func (c *Codec) EncodeMatrix(m [][]float64) ([][]Element, error) {
	rows := make([][]Element, len(m))
	for ii, row := range m {
		if len(row) != len(m[0]) {
			return nil, errors.Wrapf(ErrShape, "row #%d has %d columns, row #0 has %d", ii, len(row), len(m[0]))
		}
		var err error
		rows[ii], err = c.EncodeVector(row)
		if err != nil {
			return nil, errors.WithMessagef(err, "row #%d", ii)
		}
	}
	return rows, nil
}

// DecodeVector decodes each element of elems, in order.
func (c *Codec) DecodeVector(elems []Element) []float64 {
	v := make([]float64, len(elems))
	for ii, e := range elems {
		v[ii] = c.Decode(e)
	}
	return v
}

// DecodeMatrix decodes every row of m.
func (c *Codec) DecodeMatrix(m [][]Element) [][]float64 {
	rows := make([][]float64, len(m))
	for ii, row := range m {
		rows[ii] = c.DecodeVector(row)
	}
	return rows
}
