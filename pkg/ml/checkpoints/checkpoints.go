// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints saves the parameters of a network to JSON files as it trains, and restores them.
//
// The main object is the Handler, created by calling Build, followed by the various options and finally
// Config.Done:
//
//	handler, err := checkpoints.Build(net).Dir(*flagCheckpoint).Keep(3).Done()
//	must.M(err)
//	loop := train.NewLoop(net)
//	train.EveryNEpochs(loop, 10, "checkpointing", 100, handler.OnEpochFn)
//
// Each checkpoint is one file named "checkpoint-n<count>-epoch-<epoch>.json", holding for every layer its
// activation name, weights and bias, plus the id of the training run that produced it.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/feltnet/feltnet/pkg/core/calldata"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/feltnet/feltnet/pkg/support/fsutil"
	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

const (
	baseNamePrefix = "checkpoint-"

	// JsonNameSuffix for the files returned by Handler.ListCheckpoints.
	JsonNameSuffix = ".json"
)

// ErrIncompatible is returned when a checkpoint doesn't match the architecture of the network it's loaded into.
var ErrIncompatible = errors.New("checkpoint incompatible with network")

// ErrNotFound is returned by Load when there is no checkpoint with the given name.
var ErrNotFound = errors.New("checkpoint not found")

// Restorable is implemented by layers whose parameters can be checkpointed, like nn.Dense.
type Restorable interface {
	nn.Layer
	ActivationName() string
	Weights() *mat.Dense
	Bias() []float64
	SetParameters(weights mat.Matrix, bias []float64) error
}

// Config for the Handler to be created. This is created with Build and configured with the various methods.
// Once finished, call Done.
type Config struct {
	net  *nn.Sequential
	err  error
	dir  string
	keep int
}

// Build a configuration for a checkpoints Handler of the given network.
func Build(net *nn.Sequential) *Config {
	c := &Config{net: net, keep: 1}
	if net == nil {
		c.setError(errors.New("checkpoints.Build() requires a network"))
	}
	return c
}

// setError keeps the first error.
func (c *Config) setError(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Dir sets the directory where to save and load the checkpoints. It's created if it doesn't exist,
// and a leading "~" is replaced by the home directory.
func (c *Config) Dir(dir string) *Config {
	if c.err != nil {
		return c
	}
	var err error
	c.dir, err = fsutil.EnsureDir(dir)
	if err != nil {
		c.setError(errors.WithMessage(err, "checkpoint directory"))
	}
	return c
}

// Keep configures the number of checkpoint files to keep. If set to -1, older checkpoints are never erased.
// The default is 1.
func (c *Config) Keep(n int) *Config {
	if n == 0 || n < -1 {
		c.setError(errors.Errorf("Keep(%d): it must be positive or -1 to keep every checkpoint", n))
		return c
	}
	c.keep = n
	return c
}

// Done creates a Handler with the current configuration. It returns an error if the configuration is
// invalid or if the directory wasn't set.
func (c *Config) Done() (*Handler, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.dir == "" {
		return nil, errors.New("directory for checkpoints not configured")
	}
	h := &Handler{config: c, runID: uuid.New()}
	list, err := h.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	h.checkpointsCount = maxCheckpointCount(list) + 1
	return h, nil
}

// Handler saves and loads the checkpoints of one network.
type Handler struct {
	config           *Config
	checkpointsCount int
	runID            uuid.UUID
}

// serializedLayer is the JSON form of one layer.
type serializedLayer struct {
	Activation string      `json:"activation"`
	InputDim   int         `json:"input_dim"`
	OutputDim  int         `json:"output_dim"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

// serializedData is the contents of a checkpoint file.
type serializedData struct {
	RunID  uuid.UUID         `json:"run_id"`
	Epoch  int               `json:"epoch"`
	Loss   *float64          `json:"loss,omitempty"`
	Saved  time.Time         `json:"saved"`
	Layers []serializedLayer `json:"layers"`
}

// String implements fmt.Stringer.
func (h *Handler) String() string {
	return fmt.Sprintf("checkpoints.Handler(%q)", h.config.dir)
}

// Dir returns the directory holding the checkpoints.
func (h *Handler) Dir() string { return h.config.dir }

// RunID is the id written in the checkpoints. It's taken from the training loop by OnEpochFn.
func (h *Handler) RunID() uuid.UUID { return h.runID }

// Save writes a checkpoint of the current parameters of the network, labeled with the given epoch,
// and then removes the excess checkpoints.
func (h *Handler) Save(epoch int) error {
	return h.save(epoch, nil)
}

// OnEpochFn implements train.OnEpochFn, saving a checkpoint with the epoch loss, labeled with the number of
// epochs completed. Use it with train.EveryNEpochs or Loop.OnEpoch.
func (h *Handler) OnEpochFn(loop *train.Loop, epochLoss float64) error {
	h.runID = loop.RunID
	var loss *float64
	if !math.IsNaN(epochLoss) && !math.IsInf(epochLoss, 0) {
		loss = &epochLoss
	}
	return h.save(loop.Epoch+1, loss)
}

func (h *Handler) save(epoch int, loss *float64) error {
	net := h.config.net
	if !net.Built() {
		return errors.Wrapf(nn.ErrNotBuilt, "%s saving", h)
	}
	data := serializedData{RunID: h.runID, Epoch: epoch, Loss: loss, Saved: time.Now()}
	for ii, layer := range net.Layers() {
		r, ok := layer.(Restorable)
		if !ok {
			return errors.Errorf("%s: layer #%d of type %T can't be checkpointed", h, ii, layer)
		}
		data.Layers = append(data.Layers, serializedLayer{
			Activation: r.ActivationName(),
			InputDim:   r.InputDim(),
			OutputDim:  r.OutputDim(),
			Weights:    calldata.DenseRows(r.Weights()),
			Bias:       r.Bias(),
		})
	}

	baseName := fmt.Sprintf("%sn%07d-epoch-%06d", baseNamePrefix, h.checkpointsCount, epoch)
	h.checkpointsCount++
	fileName := filepath.Join(h.config.dir, baseName+JsonNameSuffix)
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to create checkpoint file %s", h, fileName)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "\t")
	if err = enc.Encode(&data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "%s: failed to write checkpoint file %s", h, fileName)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "%s: failed to close checkpoint file %s", h, fileName)
	}
	klog.V(1).Infof("saved checkpoint %s", fileName)
	if err = h.keepNCheckpoints(); err != nil {
		klog.Warningf("%v", err)
	}
	return nil
}

// ListCheckpoints returns the base names of the checkpoints in the directory, older first.
// The file names are these base names suffixed with JsonNameSuffix.
func (h *Handler) ListCheckpoints() (checkpoints []string, err error) {
	entries, err := os.ReadDir(h.config.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "%s listing checkpoints", h)
	}
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(fileName, baseNamePrefix) || !strings.HasSuffix(fileName, JsonNameSuffix) {
			continue
		}
		checkpoints = append(checkpoints, strings.TrimSuffix(fileName, JsonNameSuffix))
	}
	slices.Sort(checkpoints)
	return checkpoints, nil
}

var checkpointCountRegex = regexp.MustCompile(`^checkpoint-n(\d+)-`)

// maxCheckpointCount returns the largest count in the given checkpoint names, or -1 if there are none.
func maxCheckpointCount(checkpoints []string) int {
	maxID := -1
	for _, name := range checkpoints {
		matches := checkpointCountRegex.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		if id, err := strconv.Atoi(matches[1]); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID
}

// LoadLatest restores the parameters of the most recent checkpoint into the network, which must be built
// with the same architecture. It returns the epoch of the checkpoint, and found=false if there are no
// checkpoints.
func (h *Handler) LoadLatest() (epoch int, found bool, err error) {
	list, err := h.ListCheckpoints()
	if err != nil || len(list) == 0 {
		return 0, false, err
	}
	epoch, err = h.Load(xslices.Last(list))
	return epoch, err == nil, err
}

// Load restores the parameters of the checkpoint with the given base name (as returned by ListCheckpoints)
// into the network, and returns its epoch.
func (h *Handler) Load(baseName string) (epoch int, err error) {
	net := h.config.net
	if !net.Built() {
		return 0, errors.Wrapf(nn.ErrNotBuilt, "%s loading %s", h, baseName)
	}
	fileName := filepath.Join(h.config.dir, baseName+JsonNameSuffix)
	exists, err := fsutil.FileExists(fileName)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.Wrapf(ErrNotFound, "%s: no checkpoint %q", h, baseName)
	}
	contents, err := os.ReadFile(fileName)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: failed to read checkpoint", h)
	}
	var data serializedData
	if err = json.Unmarshal(contents, &data); err != nil {
		return 0, errors.Wrapf(err, "%s: failed to parse checkpoint %s", h, fileName)
	}
	layers := net.Layers()
	if len(layers) != len(data.Layers) {
		return 0, errors.Wrapf(ErrIncompatible, "%s has %d layers, network has %d", fileName, len(data.Layers), len(layers))
	}
	// Validate everything before changing any layer.
	restorables := make([]Restorable, len(layers))
	for ii, layer := range layers {
		r, ok := layer.(Restorable)
		saved := data.Layers[ii]
		switch {
		case !ok:
			return 0, errors.Wrapf(ErrIncompatible, "layer #%d of type %T can't be restored", ii, layer)
		case !strings.EqualFold(r.ActivationName(), saved.Activation):
			return 0, errors.Wrapf(ErrIncompatible, "layer #%d has activation %q, checkpoint has %q",
				ii, r.ActivationName(), saved.Activation)
		case r.InputDim() != saved.InputDim || r.OutputDim() != saved.OutputDim:
			return 0, errors.Wrapf(ErrIncompatible, "layer #%d is [%d, %d], checkpoint has [%d, %d]",
				ii, r.InputDim(), r.OutputDim(), saved.InputDim, saved.OutputDim)
		case len(saved.Weights) != saved.InputDim || len(saved.Bias) != saved.OutputDim:
			return 0, errors.Wrapf(ErrIncompatible, "layer #%d has %d weight rows and %d biases, expected %d and %d",
				ii, len(saved.Weights), len(saved.Bias), saved.InputDim, saved.OutputDim)
		}
		for row, values := range saved.Weights {
			if len(values) != saved.OutputDim {
				return 0, errors.Wrapf(ErrIncompatible, "layer #%d weight row %d has %d values", ii, row, len(values))
			}
		}
		restorables[ii] = r
	}
	for ii, r := range restorables {
		saved := data.Layers[ii]
		weights := mat.NewDense(saved.InputDim, saved.OutputDim, nil)
		for row, values := range saved.Weights {
			weights.SetRow(row, values)
		}
		if err = r.SetParameters(weights, saved.Bias); err != nil {
			return 0, errors.WithMessagef(err, "%s restoring layer #%d", h, ii)
		}
	}
	klog.V(1).Infof("loaded checkpoint %s (epoch %d, run %s)", fileName, data.Epoch, data.RunID)
	return data.Epoch, nil
}

// keepNCheckpoints removes the oldest checkpoints in excess of the configured number.
func (h *Handler) keepNCheckpoints() error {
	if h.config.keep < 0 {
		return nil
	}
	list, err := h.ListCheckpoints()
	if err != nil {
		return errors.WithMessagef(err, "%s failed to list saved checkpoints", h)
	}
	if len(list) <= h.config.keep {
		return nil
	}
	for _, baseName := range list[:len(list)-h.config.keep] {
		fileName := filepath.Join(h.config.dir, baseName+JsonNameSuffix)
		if err = os.Remove(fileName); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "%s failed to remove excess checkpoint file %q", h, fileName)
		}
	}
	return nil
}
