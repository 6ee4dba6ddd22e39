// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	out              io.Writer
	numSteps         int
	lastStepReported int
	lastEpochLoss    float64
	bar              *progressbar.ProgressBar

	// Rich and asynchronous display of the stats table, only when writing to a terminal.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// Write implements io.Writer for the enclosed progressbar.ProgressBar, erasing what is left of the
// previous print on terminals.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	n, err = pBar.out.Write(data)
	if err != nil || pBar.termenv == nil {
		return n, err
	}
	_, err = pBar.out.Write([]byte("\033[J"))
	return n, err
}

// stepsInRun returns the number of steps the loop will run, or a guess if it is not known.
func stepsInRun(loop *train.Loop, ds train.Dataset) int {
	if batched, ok := ds.(interface{ NumBatches() int }); ok {
		return batched.NumBatches() * loop.NumEpochs
	}
	if loop.EndStep >= 0 {
		return loop.EndStep - loop.StartStep
	}
	return 1000 // Guess for now.
}

func (pBar *progressBar) onStart(loop *train.Loop, ds train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.lastEpochLoss = -1
	pBar.numSteps = stepsInRun(loop, ds)
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription(fmt.Sprintf("Training %q:", ds.Name())),
		progressbar.OptionUseANSICodes(pBar.termenv != nil),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	if pBar.termenv != nil {
		pBar.isFirstOutput = true
		pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
		pBar.asyncUpdatesDone.Add(1)
		go pBar.drawUpdates()
	}
	return nil
}

func (pBar *progressBar) onStep(loop *train.Loop, batchLoss float64) error {
	if pBar.bar.IsFinished() {
		return nil
	}
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}
	pBar.lastStepReported = loop.LoopStep + 1
	if pBar.updates == nil {
		return pBar.bar.Add(amount)
	}

	update := progressBarUpdate{amount: amount, metrics: [][2]string{
		{"Step", fmt.Sprintf("%s of %s", humanize.Comma(int64(loop.LoopStep+1)), humanize.Comma(int64(loop.StartStep+pBar.numSteps)))},
		{"Epoch", fmt.Sprintf("%d of %d", loop.Epoch+1, loop.NumEpochs)},
		{"Median train step duration", FormatDuration(loop.MedianTrainStepDuration())},
		{"Batch loss", fmt.Sprintf("%.6g", batchLoss)},
	}}
	if pBar.lastEpochLoss >= 0 {
		update.metrics = append(update.metrics, [2]string{"Epoch loss", fmt.Sprintf("%.6g", pBar.lastEpochLoss)})
	}
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		update.metrics = append(update.metrics, [2]string{name, value})
	}
	pBar.updates <- update
	return nil
}

func (pBar *progressBar) onEpoch(_ *train.Loop, epochLoss float64) error {
	pBar.lastEpochLoss = epochLoss
	return nil
}

// stopUpdates closes the updates channel and waits for drawUpdates to finish. It's safe to call more than once.
func (pBar *progressBar) stopUpdates() {
	if pBar.updates != nil {
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		pBar.updates = nil
	}
	if pBar.termenv != nil {
		pBar.termenv.ShowCursor()
	}
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	pBar.stopUpdates()
	_, err := fmt.Fprintln(pBar.out)
	return err
}

func (pBar *progressBar) onAbort(_ *train.Loop, _ error) {
	pBar.stopUpdates()
	_, _ = fmt.Fprintln(pBar.out)
}

// drawUpdates asynchronously draws the stats table and the progress bar: this is handy if the training is faster
// than the terminal.
func (pBar *progressBar) drawUpdates() {
	defer pBar.asyncUpdatesDone.Done()
	numLinesPrinted := 0
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		for _, metric := range update.metrics {
			pBar.statsTable.Row(metric[0], metric[1])
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			pBar.termenv.CursorPrevLine(numLinesPrinted)
		}
		pBar.isFirstOutput = false

		table := pBar.statsStyle.Render(pBar.statsTable.String())
		_, _ = fmt.Fprintln(pBar.out, table)
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.out)
		numLinesPrinted = lipgloss.Height(table) + 1
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// ProgressBarName is the name of the hooks attached by AttachProgressBar.
const ProgressBarName = "feltnet.ui.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type progressBarUpdate struct {
	amount  int
	metrics [][2]string
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run, it will display a progress bar with progression and losses.
//
// When standard output is a terminal, a table with the stats is redrawn above the bar.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	attachProgressBar(loop, os.Stdout, isTerminal(os.Stdout), extraMetrics...)
}

func attachProgressBar(loop *train.Loop, out io.Writer, terminal bool, extraMetrics ...ExtraMetricFn) *progressBar {
	pBar := &progressBar{
		out:            out,
		extraMetricFns: extraMetrics,
	}
	if terminal {
		pBar.termenv = termenv.NewOutput(out)
		pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
		pBar.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			})
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	loop.OnStep(ProgressBarName, 0, pBar.onStep)
	loop.OnEpoch(ProgressBarName, 0, pBar.onEpoch)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
	loop.OnAbort(ProgressBarName, 0, pBar.onAbort)
	return pBar
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
