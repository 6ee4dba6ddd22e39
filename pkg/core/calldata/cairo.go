// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package calldata

import (
	"strings"

	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/pkg/errors"
)

// CairoVectorLiteral renders v as a Cairo span literal of field elements, e.g. "array![1000000, 500000].span()".
// It is handy to embed fixtures in contract tests.
func CairoVectorLiteral(codec *felt.Codec, v []float64) (string, error) {
	elems, err := codec.EncodeVector(v)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeCairoSpan(&sb, elems)
	return sb.String(), nil
}

// CairoMatrixLiteral renders m as a span of row spans:
//
//	array![array![1000000, 2000000].span(), array![3000000, 4000000].span()].span()
func CairoMatrixLiteral(codec *felt.Codec, m [][]float64) (string, error) {
	if err := checkRectangular(m); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("array![")
	for ii, row := range m {
		elems, err := codec.EncodeVector(row)
		if err != nil {
			return "", errors.WithMessagef(err, "row #%d", ii)
		}
		if ii > 0 {
			sb.WriteString(Separator)
		}
		writeCairoSpan(&sb, elems)
	}
	sb.WriteString("].span()")
	return sb.String(), nil
}

func writeCairoSpan(sb *strings.Builder, elems []felt.Element) {
	sb.WriteString("array![")
	sb.WriteString(Join(elems))
	sb.WriteString("].span()")
}
