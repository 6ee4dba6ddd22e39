// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

type everyNSteps struct {
	n, count int
	fn       OnStepFn
}

func (eN *everyNSteps) onStep(loop *Loop, batchLoss float64) error {
	eN.count++
	if eN.count%eN.n != 0 {
		return nil
	}
	return eN.fn(loop, batchLoss)
}

// EveryNSteps registers a OnStep hook on the loop that is called every N times.
//
// Notice that it does not call `fn` at the last step (except by coincidence).
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNSteps(n=%d): n must be > 0", n)
	}
	eN := &everyNSteps{n: n, fn: fn}
	fullName := fmt.Sprintf("EveryNSteps(%d): %s", n, name)
	loop.OnStep(fullName, priority, eN.onStep)
}

// EveryNEpochs registers a OnEpoch hook on the loop that is called on the first epoch and then
// every N epochs (epochs 0, n, 2n, ... counting from 0).
func EveryNEpochs(loop *Loop, n int, name string, priority Priority, fn OnEpochFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNEpochs(n=%d): n must be > 0", n)
	}
	fullName := fmt.Sprintf("EveryNEpochs(%d): %s", n, name)
	loop.OnEpoch(fullName, priority, func(loop *Loop, epochLoss float64) error {
		if loop.Epoch%n != 0 {
			return nil
		}
		return fn(loop, epochLoss)
	})
}

type periodicCallback struct {
	last    time.Time
	period  time.Duration
	started bool
	fn      OnStepFn
}

func (p *periodicCallback) onStep(loop *Loop, batchLoss float64) error {
	if !p.started {
		// Start the clock.
		p.started = true
		p.last = time.Now()
		return nil
	}
	if time.Since(p.last) < p.period {
		return nil
	}
	err := p.fn(loop, batchLoss)
	p.last = time.Now()
	return err
}

// PeriodicCallback registers an `OnStep` hook on the loop that is called every period of time.
// The period counts after the execution of `fn`, so the time to run it is discounted.
//
// If callOnEnd is set, it will also call `fn` at the end of the loop, with the loss of the last epoch.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnStepFn) {
	p := &periodicCallback{
		period: period,
		fn:     fn,
	}
	fullName := fmt.Sprintf("PeriodicCallback(%s): %s", period, name)
	loop.OnStep(fullName, priority, p.onStep)
	if callOnEnd {
		loop.OnEnd(fullName, priority, func(loop *Loop, losses []float64) error {
			if len(losses) == 0 {
				return nil
			}
			return p.fn(loop, losses[len(losses)-1])
		})
	}
}

// LossLogPeriod is the number of epochs between loss log lines of LogLossEveryNEpochs, when used by
// the verbose training of a network.
const LossLogPeriod = 10

// LogLossEveryNEpochs logs "Epoch <n>, Loss: <loss>" with klog for the first epoch and every n epochs after
// that (epochs are numbered from 1 in the message).
func LogLossEveryNEpochs(loop *Loop, n int) {
	EveryNEpochs(loop, n, "log loss", 0, func(loop *Loop, epochLoss float64) error {
		klog.Infof("Epoch %d, Loss: %v", loop.Epoch+1, epochLoss)
		return nil
	})
}
