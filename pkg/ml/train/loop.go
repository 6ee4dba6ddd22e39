// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds the training loop, the datasets it consumes and the hooks that can be attached to it.
package train

import (
	"io"
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Model is what a Loop trains.
type Model interface {
	// TrainStep runs one update on a batch and returns the loss of the batch, measured before the update.
	TrainStep(inputs, labels *mat.Dense) (loss float64, err error)

	// Evaluate returns the loss over the given examples, without changing the model.
	Evaluate(inputs, labels *mat.Dense) (loss float64, err error)
}

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, ds Dataset) error

// OnStepFn is the type of OnStep hooks. It receives the loss of the batch just trained.
type OnStepFn func(loop *Loop, batchLoss float64) error

// OnEpochFn is the type of OnEpoch hooks. It receives the loss over the full dataset at the end of the epoch.
type OnEpochFn func(loop *Loop, epochLoss float64) error

// OnEndFn is the type of OnEnd hooks. It receives the per-epoch losses.
type OnEndFn func(loop *Loop, losses []float64) error

// OnAbortFn is the type of OnAbort hooks. It receives the error that interrupted the run.
// It may be called after some or none of the OnStart hooks ran, so it must be safe to call at any point.
type OnAbortFn func(loop *Loop, err error)

// Loop will run a training loop, invoking Model.TrainStep every step, and calling the appropriate hooks.
//
// By itself it doesn't do much, but one can attach functionality to it, like
// checkpointing, plotting tools, progress bars, etc.
//
// The public attributes are meant for reading only, don't change them -- behavior
// can be undefined.
type Loop struct {
	// Model being trained.
	Model Model

	// RunID identifies the loop, it is stored along checkpoints.
	RunID uuid.UUID

	// LoopStep currently being executed, counted over all runs of this loop.
	LoopStep int

	// StartStep is the value of LoopStep at the start of a run.
	StartStep int

	// EndStep is one-past the last step to be executed. It is -1 during the first epoch, and afterward it is
	// extrapolated from the number of steps of the previous epochs.
	EndStep int

	// Epoch currently being executed, starting from 0.
	Epoch int

	// NumEpochs requested in the current run.
	NumEpochs int

	// Losses collected at the end of each epoch of the current run, measured over the full dataset.
	Losses []float64

	// SharedData allows for cross-tools to publish and consume information. Keys (strings)
	// and semantics/type of their values are not specified by loop.
	SharedData map[string]any

	// TrainStepDurations collected during the current run.
	TrainStepDurations []time.Duration

	// Registered hooks.
	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEpoch *priorityHooks[*hookWithName[OnEpochFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
	onAbort *priorityHooks[*hookWithName[OnAbortFn]]
}

// NewLoop creates a new training loop for model.
func NewLoop(model Model) *Loop {
	return &Loop{
		Model:      model,
		RunID:      uuid.New(),
		EndStep:    -1,
		SharedData: make(map[string]any),
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:     newPriorityHooks[*hookWithName[OnStepFn]](),
		onEpoch:    newPriorityHooks[*hookWithName[OnEpochFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
		onAbort:    newPriorityHooks[*hookWithName[OnAbortFn]](),
	}
}

// start of loop: it calls the appropriate hooks.
func (loop *Loop) start(ds Dataset) error {
	for hook := range loop.onStart.All() {
		err := hook.fn(loop, ds)
		if err != nil {
			return errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	}
	return nil
}

// step trains one batch and calls the OnStep hooks.
// It also checks for NaN loss, and returns an error accordingly.
func (loop *Loop) step(inputs, labels *mat.Dense) error {
	startTime := time.Now()
	batchLoss, err := loop.Model.TrainStep(inputs, labels)
	loop.TrainStepDurations = append(loop.TrainStepDurations, time.Since(startTime))
	if err != nil {
		return err
	}

	for hook := range loop.onStep.All() {
		err := hook.fn(loop, batchLoss)
		if err != nil {
			return errors.WithMessagef(err, "train.Loop.OnStep(hook %q)", hook.name)
		}
	}

	if math.IsNaN(batchLoss) {
		return errors.Errorf("batch loss is NaN, training interrupted")
	}
	if math.IsInf(batchLoss, 0) {
		return errors.Errorf("batch loss is infinity (%f), training interrupted", batchLoss)
	}
	return nil
}

// endEpoch measures the loss over the full dataset and calls the OnEpoch hooks.
func (loop *Loop) endEpoch(ds Dataset) error {
	inputs, labels := ds.Full()
	loss, err := loop.Model.Evaluate(inputs, labels)
	if err != nil {
		return errors.WithMessagef(err, "evaluating dataset %q", ds.Name())
	}
	loop.Losses = append(loop.Losses, loss)
	for hook := range loop.onEpoch.All() {
		if err := hook.fn(loop, loss); err != nil {
			return errors.WithMessagef(err, "OnEpoch(hook %q)", hook.name)
		}
	}
	return nil
}

// end of loop: it calls the appropriate hooks.
func (loop *Loop) end() error {
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop, loop.Losses); err != nil {
			return errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	}
	return nil
}

// abort calls the OnAbort hooks, so they can release what was acquired during the run.
func (loop *Loop) abort(err error) {
	klog.V(1).Infof("train.Loop %s aborted: %v", loop.RunID, err)
	for hook := range loop.onAbort.All() {
		hook.fn(loop, err)
	}
}

// RunEpochs trains over the dataset for the given number of epochs, and returns the loss measured over the
// full dataset (Dataset.Full) at the end of each epoch.
//
// StartStep is adjusted to the current LoopStep, so it can be called multiple times, and it will simply
// pick up where it left of last time. Loop.Epoch is set to the current running epoch.
// Dataset.Reset is called after each epoch (including the last). If it returns an error after the
// OnStart hooks were reached, the OnAbort hooks are called.
func (loop *Loop) RunEpochs(ds Dataset, epochs int) (losses []float64, err error) {
	if epochs < 0 {
		return nil, errors.Errorf("Loop.RunEpochs(%d): number of epochs cannot be negative", epochs)
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = -1
	loop.NumEpochs = epochs
	loop.Losses = make([]float64, 0, epochs)
	loop.TrainStepDurations = nil
	klog.V(1).Infof("train.Loop %s: %d epochs over dataset %q", loop.RunID, epochs, ds.Name())
	defer func() {
		if err != nil {
			loop.abort(err)
		}
	}()

	err = loop.start(ds)
	if err != nil {
		return nil, err
	}
	for loop.Epoch = 0; loop.Epoch < epochs; loop.Epoch++ {
		yieldsPerEpoch := 0
		for {
			inputs, labels, err := ds.Yield()
			if err != nil {
				if err == io.EOF {
					// End of epoch: estimate new last step.
					loop.EndStep = loop.LoopStep + yieldsPerEpoch*(epochs-loop.Epoch-1)
					break
				}
				return nil, errors.WithMessagef(err, "Loop.RunEpochs(epoch %d of %d): failed reading from Dataset",
					loop.Epoch, epochs)
			}
			yieldsPerEpoch++
			if err = loop.step(inputs, labels); err != nil {
				return nil, errors.WithMessagef(err, "Loop.RunEpochs(%d): failed TrainStep (LoopStep=%d, Epoch=%d)",
					epochs, loop.LoopStep, loop.Epoch)
			}
			loop.LoopStep++
		}
		if yieldsPerEpoch == 0 {
			return nil, errors.Errorf("Loop.RunEpochs(%d): dataset %q yielded no batches in epoch %d",
				epochs, ds.Name(), loop.Epoch)
		}
		if err = loop.endEpoch(ds); err != nil {
			return nil, errors.WithMessagef(err, "Loop.RunEpochs(%d): end of epoch %d", epochs, loop.Epoch)
		}
		ds.Reset()
	}
	err = loop.end()
	if err != nil {
		return nil, errors.WithMessagef(err, "Loop.RunEpochs(%d): failed end (LoopStep=%d)", epochs, loop.LoopStep)
	}
	return slices.Clone(loop.Losses), nil
}

// MedianTrainStepDuration returns the median duration of each training step. It returns 1 millisecond
// if no training step was recorded (to avoid potential division by 0).
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		return time.Millisecond
	}
	times := slices.Clone(loop.TrainStepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook with given priority and name (for error reporting) to each step of a loop.
// The function `fn` is called after each `Model.TrainStep`.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEpoch adds a hook with given priority and name (for error reporting) to the end of each epoch,
// after the full dataset loss is measured.
func (loop *Loop) OnEpoch(name string, priority Priority, fn OnEpochFn) {
	loop.onEpoch.Add(priority, &hookWithName[OnEpochFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop,
// after the last epoch.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// OnAbort adds a hook with given priority and name to be called when a run returns an error. The OnEnd
// hooks are not called in that case, unless it was one of them that failed.
func (loop *Loop) OnAbort(name string, priority Priority, fn OnAbortFn) {
	loop.onAbort.Add(priority, &hookWithName[OnAbortFn]{name: name, fn: fn})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
