// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package felt

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// Element is an immutable element of the field [0, P) of the default modulus.
//
// The zero value is the element 0.
type Element struct {
	v *big.Int
}

var bigZero = new(big.Int)

func (e Element) value() *big.Int {
	if e.v == nil {
		return bigZero
	}
	return e.v
}

// NewElement creates an element from v, which must be in [0, P) of the default modulus.
func NewElement(v *big.Int) (Element, error) {
	return Default().Element(v)
}

// ElementFromUint64 creates a small element.
func ElementFromUint64(v uint64) Element {
	return Element{v: new(big.Int).SetUint64(v)}
}

// ParseElement parses the decimal representation of an element of the default field.
func ParseElement(s string) (Element, error) {
	return Default().ParseElement(s)
}

// ParseHexElement parses the hexadecimal representation of an element of the default field, with or
// without the "0x" prefix.
func ParseHexElement(s string) (Element, error) {
	v, err := FromHex(s)
	if err != nil {
		return Element{}, err
	}
	return NewElement(v)
}

// Element creates an element from v, which must be in [0, P).
func (c *Codec) Element(v *big.Int) (Element, error) {
	if v.Sign() < 0 || v.Cmp(c.modulus) >= 0 {
		return Element{}, errors.Wrapf(ErrRange, "%s is not an element of the field of order %s", v, c.modulus)
	}
	return Element{v: new(big.Int).Set(v)}, nil
}

// ParseElement parses the decimal representation of an element.
func (c *Codec) ParseElement(s string) (Element, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Element{}, errors.Errorf("invalid decimal field element %q", s)
	}
	return c.Element(v)
}

// BigInt returns a copy of the element's value.
func (e Element) BigInt() *big.Int {
	return new(big.Int).Set(e.value())
}

// Uint64 returns the value if it fits in an uint64.
func (e Element) Uint64() (uint64, bool) {
	v := e.value()
	return v.Uint64(), v.IsUint64()
}

// Cmp compares two elements as integers.
func (e Element) Cmp(other Element) int {
	return e.value().Cmp(other.value())
}

// Equal reports whether both elements hold the same value.
func (e Element) Equal(other Element) bool {
	return e.Cmp(other) == 0
}

// String returns the decimal representation, the form used in calldata payloads.
func (e Element) String() string {
	return e.value().String()
}

// Hex returns the "0x" prefixed lowercase hexadecimal representation.
func (e Element) Hex() string {
	return ToHex(e.value())
}

// MarshalText implements encoding.TextMarshaler with the decimal form.
func (e Element) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting decimal or "0x" prefixed hexadecimal.
func (e *Element) UnmarshalText(text []byte) error {
	s := string(text)
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		*e, err = ParseHexElement(s)
	} else {
		*e, err = ParseElement(s)
	}
	return err
}

// ToHex formats a non-negative integer as "0x" followed by lowercase hexadecimal digits.
func ToHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

// FromHex parses a non-negative hexadecimal integer, with or without the "0x" prefix.
// No modular reduction is applied.
func FromHex(s string) (*big.Int, error) {
	digits := strings.TrimSpace(s)
	digits = strings.TrimPrefix(strings.TrimPrefix(digits, "0x"), "0X")
	if digits == "" || strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		return nil, errors.Errorf("invalid hexadecimal integer %q", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, errors.Errorf("invalid hexadecimal integer %q", s)
	}
	return v, nil
}
