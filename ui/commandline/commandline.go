// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line: a progress bar
// for the training loop, a summary of the network and evaluation reports.
package commandline

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EvalSet is a named set of examples to evaluate a network on.
type EvalSet struct {
	Name           string
	Inputs, Labels *mat.Dense
}

// ReportEval writes the mean squared error and the accuracy (matching arg-max of predictions and
// one-hot labels) of the network on each of the given sets.
func ReportEval(w io.Writer, net *nn.Sequential, sets ...EvalSet) error {
	for _, set := range sets {
		predictions, err := net.Forward(set.Inputs)
		if err != nil {
			return errors.WithMessagef(err, "evaluating on %s", set.Name)
		}
		accuracy, err := Accuracy(predictions, set.Labels)
		if err != nil {
			return errors.WithMessagef(err, "evaluating on %s", set.Name)
		}
		_, err = fmt.Fprintf(w, "Results on %s:\n\tMean Squared Error (mse): %.6g\n\tAccuracy (acc): %.2f%%\n",
			set.Name, nn.MeanSquaredError(predictions, set.Labels), 100*accuracy)
		if err != nil {
			return err
		}
	}
	return nil
}

// Accuracy returns the fraction of rows where the predictions and the labels have their largest value
// in the same column.
func Accuracy(predictions, labels mat.Matrix) (float64, error) {
	rows, cols := predictions.Dims()
	labelRows, labelCols := labels.Dims()
	if rows != labelRows || cols != labelCols {
		return 0, errors.Wrapf(nn.ErrShape, "predictions have shape [%d, %d], labels have shape [%d, %d]",
			rows, cols, labelRows, labelCols)
	}
	if rows == 0 {
		return 0, nil
	}
	pRow, lRow := make([]float64, cols), make([]float64, cols)
	correct := 0
	for row := range rows {
		if xslices.ArgMax(mat.Row(pRow, row, predictions)) == xslices.ArgMax(mat.Row(lRow, row, labels)) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)

// ModelSummary returns a table with the shape, activation and number of parameters of each layer of a
// built network.
func ModelSummary(net *nn.Sequential) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers("#", "Layer", "Shape", "Activation", "Parameters").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 0 || col == 4:
				return rightAlignedStyle
			}
			return normalStyle
		})
	for ii, layer := range net.Layers() {
		activation := "-"
		if named, ok := layer.(interface{ ActivationName() string }); ok {
			activation = named.ActivationName()
		}
		table.Row(strconv.Itoa(ii), fmt.Sprintf("%T", layer),
			fmt.Sprintf("[%d, %d]", layer.InputDim(), layer.OutputDim()),
			activation, humanize.Comma(int64(layer.NumParams())))
	}
	table.Row("", "Total", "", "", humanize.Comma(int64(net.NumParams())))
	return table.String()
}
