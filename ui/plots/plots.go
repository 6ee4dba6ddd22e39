// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package plots records the loss of a training run and draws it.
//
// Points are appended to a file (one JSON object per line) as the training progresses, so a run can
// be plotted again later with LoadPoints and SaveLossPlot.
package plots

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/feltnet/feltnet/pkg/support/fsutil"
	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// TrainingPlotFileName is the default file name within a checkpoint directory to store
// plot points collected during training.
const TrainingPlotFileName = "training_plot_points.json"

// Point is the loss measured at the end of one epoch.
type Point struct {
	// RunID of the train.Loop that produced the point.
	RunID string

	// Epoch, counted from 1.
	Epoch int

	// Loss over the full dataset.
	Loss float64
}

// LoadPoints parses all plot points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plots file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plots file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// Losses returns the losses of the points, in order.
func Losses(points []Point) []float64 {
	return xslices.Map(points, func(p Point) float64 { return p.Loss })
}

// pointsWriter appends points to a file as the loop runs.
type pointsWriter struct {
	filePath string
	f        *os.File
	enc      *json.Encoder
}

func (w *pointsWriter) onEpoch(loop *train.Loop, epochLoss float64) error {
	if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
		klog.Warningf("not recording non-finite loss %g of epoch %d", epochLoss, loop.Epoch+1)
		return nil
	}
	if w.f == nil {
		var err error
		w.f, err = os.OpenFile(w.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.FilePermMode)
		if err != nil {
			return errors.Wrapf(err, "failed to open plots file %q for append", w.filePath)
		}
		w.enc = json.NewEncoder(w.f)
	}
	point := Point{RunID: loop.RunID.String(), Epoch: loop.Epoch + 1, Loss: epochLoss}
	return errors.Wrapf(w.enc.Encode(point), "failed to encode point %+v", point)
}

func (w *pointsWriter) onEnd(_ *train.Loop, _ []float64) error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f, w.enc = nil, nil
	return errors.Wrapf(err, "closing plots file %q", w.filePath)
}

func (w *pointsWriter) onAbort(loop *train.Loop, _ error) {
	if err := w.onEnd(loop, nil); err != nil {
		klog.Warningf("%v", err)
	}
}

// PlotPointsName is the name of the hooks attached by AttachPointsWriter.
const PlotPointsName = "feltnet.ui.plots.points"

// AttachPointsWriter appends the loss of every epoch run by loop to the file TrainingPlotFileName in dir,
// creating dir if needed.
func AttachPointsWriter(loop *train.Loop, dir string) (filePath string, err error) {
	w, err := attachPointsWriter(loop, dir)
	if err != nil {
		return "", err
	}
	return w.filePath, nil
}

func attachPointsWriter(loop *train.Loop, dir string) (*pointsWriter, error) {
	dir, err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	w := &pointsWriter{filePath: filepath.Join(dir, TrainingPlotFileName)}
	loop.OnEpoch(PlotPointsName, 100, w.onEpoch)
	loop.OnEnd(PlotPointsName, 100, w.onEnd)
	loop.OnAbort(PlotPointsName, 100, w.onAbort)
	return w, nil
}

// PlotSize is the size of the images saved by SaveLossPlot.
var PlotSize = struct{ Width, Height vg.Length }{8 * vg.Inch, 4 * vg.Inch}

// SaveLossPlot draws the per-epoch losses as a line and saves it to filePath. The image format is taken
// from the file extension (".png", ".svg", ".pdf", ...).
func SaveLossPlot(losses []float64, filePath string) error {
	p, err := newLossPlot(losses)
	if err != nil {
		return err
	}
	filePath, err = fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	if _, err = fsutil.EnsureDir(filepath.Dir(filePath)); err != nil {
		return err
	}
	if err = p.Save(PlotSize.Width, PlotSize.Height, filePath); err != nil {
		return errors.Wrapf(err, "saving loss plot to %q", filePath)
	}
	klog.V(1).Infof("saved loss plot of %d epochs to %q", len(losses), filePath)
	return nil
}

// newLossPlot plots the finite losses against their epoch. The y-axis starts at 0 unless a loss is negative.
func newLossPlot(losses []float64) (*plot.Plot, error) {
	if len(losses) == 0 {
		return nil, errors.New("no losses to plot")
	}
	xys := make(plotter.XYs, 0, len(losses))
	for ii, loss := range losses {
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(ii + 1), Y: loss})
	}
	if len(xys) == 0 {
		return nil, errors.New("no finite losses to plot")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "mean squared error"
	p.Add(plotter.NewGrid())
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, errors.Wrap(err, "creating loss line")
	}
	p.Add(line)

	ys := xslices.Map(xys, func(xy plotter.XY) float64 { return xy.Y })
	p.Y.Min = min(0, xslices.Min(ys))
	p.Y.Max = xslices.Max(ys)
	if p.Y.Max <= p.Y.Min {
		p.Y.Max = p.Y.Min + 1
	}
	return p, nil
}
