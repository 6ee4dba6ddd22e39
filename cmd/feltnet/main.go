// Copyright 2026 The feltnet Authors. SPDX-License-Identifier: Apache-2.0

// feltnet trains a small feed-forward network and exports its parameters as field elements for an
// on-chain model.
//
// Train on a CSV file (one numeric feature per column plus a class column), print the payload and save it:
//
//	feltnet -data=stars.csv -label=class -hidden=5,5 -epochs=30 -payload=model.txt -plot=loss.png
//
// Without -data it trains on a generated two-class toy dataset. To inspect a saved payload:
//
//	feltnet -decode=model.txt
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/feltnet/feltnet/pkg/core/calldata"
	"github.com/feltnet/feltnet/pkg/core/felt"
	"github.com/feltnet/feltnet/pkg/ml/activations"
	"github.com/feltnet/feltnet/pkg/ml/checkpoints"
	"github.com/feltnet/feltnet/pkg/ml/data"
	"github.com/feltnet/feltnet/pkg/ml/export"
	"github.com/feltnet/feltnet/pkg/ml/nn"
	"github.com/feltnet/feltnet/pkg/ml/train"
	"github.com/feltnet/feltnet/pkg/support/fsutil"
	"github.com/feltnet/feltnet/pkg/support/xslices"
	"github.com/feltnet/feltnet/ui/commandline"
	"github.com/feltnet/feltnet/ui/plots"
	"github.com/janpfeifer/must"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

var (
	flagData     = flag.String("data", "", "CSV file with a header line to train on. If empty, a toy dataset is generated.")
	flagLabel    = flag.String("label", "class", "Name of the CSV column holding the class of each example.")
	flagExamples = flag.Int("examples", 1000, "Number of examples of the generated toy dataset.")
	flagTest     = flag.Float64("test", 0.2, "Fraction of the examples held out for evaluation.")
	flagSeed     = flag.Uint64("seed", 42, "Seed for initialization, shuffling and splitting.")

	flagHidden = xslices.Flag("hidden", []int{5, 5}, "Comma-separated sizes of the hidden layers.",
		xslices.ParseInt)
	flagActivation       = flag.String("activation", "ReLU", "Activation of the hidden layers: ReLU, Sigmoid or Softmax.")
	flagOutputActivation = flag.String("output_activation", "ReLU", "Activation of the output layer.")

	flagLearningRate = flag.Float64("lr", 0.01, "Learning rate.")
	flagEpochs       = flag.Int("epochs", 30, "Number of epochs to train.")
	flagBatchSize    = flag.Int("batch", 1000, "Batch size.")
	flagVerbose      = flag.Bool("verbose", true, "Log the loss every 10 epochs.")
	flagProgress     = flag.Bool("progress", false, "Display a progress bar while training.")

	flagCheckpoint      = flag.String("checkpoint", "", "Directory to save checkpoints and the loss points to.")
	flagCheckpointKeep  = flag.Int("checkpoint_keep", 3, "Number of checkpoints to keep, -1 to keep all.")
	flagCheckpointEvery = flag.Int("checkpoint_every", 10, "Save a checkpoint every this number of epochs.")
	flagRestore         = flag.Bool("restore", false, "Restore the latest checkpoint before training.")

	flagPayload     = flag.String("payload", "", "File to write the exported model payload to.")
	flagSampleSize  = flag.Int("sample", 5, "Print a Cairo literal with this number of test examples. 0 disables it.")
	flagPlot        = flag.String("plot", "", "File to save the plot of the loss to (.png, .svg or .pdf).")
	flagDecode      = flag.String("decode", "", "Decode the payload in this file and print the parameters, instead of training.")
	flagScaleDigits = flag.Int("scale_digits", 6, "Number of decimal digits kept by the fixed-point encoding.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	codec := must.M1(felt.NewCodec(felt.Modulus, felt.SignedThreshold, *flagScaleDigits))
	if *flagDecode != "" {
		decode(codec, *flagDecode)
		return
	}
	trainAndExport(codec)
}

// loadData returns the standardized features and the one-hot labels.
func loadData(rng *rand.Rand) (x, y *mat.Dense) {
	if *flagData == "" {
		x, y = data.TwoBlobs(*flagExamples, rng)
		fmt.Printf("Generated %s examples of two classes.\n", humanize.Comma(int64(*flagExamples)))
		return
	}
	table := must.M1(data.LoadCSV(fsutil.MustReplaceTildeInDir(*flagData), *flagLabel))
	x, _ = data.Standardize(table.Features)
	y, classes, err := data.OneHot(table.Labels)
	must.M(err)
	fmt.Printf("Loaded %s examples with %d features and classes %v.\n",
		humanize.Comma(int64(len(table.Labels))), len(table.FeatureNames), classes)
	return
}

func buildNetwork(numFeatures, numClasses int, rng *rand.Rand) *nn.Sequential {
	sizes := append(append([]int{}, *flagHidden...), numClasses)
	layers := make([]nn.Layer, len(sizes))
	for ii, size := range sizes {
		activation := *flagActivation
		if ii == len(sizes)-1 {
			activation = *flagOutputActivation
		}
		if ii == 0 {
			layers[ii] = nn.NewDenseWithInput(numFeatures, size, activation)
		} else {
			layers[ii] = nn.NewDense(size, activation)
		}
	}
	net := nn.NewSequential(nn.SGD{LearningRate: *flagLearningRate}, layers...).WithRand(rng)
	must.M(net.Build())
	for ii, layer := range layers {
		if activation := layer.(*nn.Dense).Activation(); activation != activations.TypeRelu {
			klog.Warningf("layer #%d uses %s, but it is exported with the ReLU tag: the on-chain model will "+
				"produce different outputs", ii, activation)
		}
	}
	return net
}

func trainAndExport(codec *felt.Codec) {
	rng := rand.New(rand.NewPCG(*flagSeed, *flagSeed))
	x, y := loadData(rng)
	trainX, trainY, testX, testY, err := data.Split(x, y, *flagTest, rng)
	must.M(err)
	_, numFeatures := x.Dims()
	_, numClasses := y.Dims()
	net := buildNetwork(numFeatures, numClasses, rng)
	fmt.Println(commandline.ModelSummary(net))

	ds := must.M1(net.NewDataset(trainX, trainY, *flagBatchSize))
	loop := train.NewLoop(net)
	if *flagVerbose {
		train.LogLossEveryNEpochs(loop, train.LossLogPeriod)
	}
	if *flagProgress {
		commandline.AttachProgressBar(loop)
	}
	var handler *checkpoints.Handler
	if *flagCheckpoint != "" {
		handler = must.M1(checkpoints.Build(net).Dir(*flagCheckpoint).Keep(*flagCheckpointKeep).Done())
		if *flagRestore {
			epoch, found, err := handler.LoadLatest()
			must.M(err)
			if found {
				fmt.Printf("Restored checkpoint of epoch %d from %s.\n", epoch, handler.Dir())
			}
		}
		train.EveryNEpochs(loop, *flagCheckpointEvery, "checkpointing", 100, handler.OnEpochFn)
		_ = must.M1(plots.AttachPointsWriter(loop, handler.Dir()))
	}

	losses := must.M1(loop.RunEpochs(ds, *flagEpochs))
	if handler != nil && *flagEpochs > 0 && (*flagEpochs-1)%*flagCheckpointEvery != 0 {
		must.M(handler.Save(*flagEpochs))
	}
	must.M(commandline.ReportEval(os.Stdout, net,
		commandline.EvalSet{Name: "train", Inputs: trainX, Labels: trainY},
		commandline.EvalSet{Name: "test", Inputs: testX, Labels: testY}))
	if *flagPlot != "" && len(losses) > 0 {
		must.M(plots.SaveLossPlot(losses, *flagPlot))
		fmt.Printf("Loss plot saved to %s.\n", *flagPlot)
	}

	felts := must.M1(export.ExportFelts(codec, net))
	payload := calldata.Join(felts)
	fmt.Printf("\nModel payload (%s field elements):\n%s\n", humanize.Comma(int64(len(felts))), payload)
	if *flagPayload != "" {
		filePath := must.M1(fsutil.WriteFile(*flagPayload, []byte(payload+"\n")))
		fmt.Printf("Payload written to %s.\n", filePath)
	}

	if *flagSampleSize > 0 {
		sampleX, _, err := data.Sample(testX, testY, *flagSampleSize, rng)
		must.M(err)
		literal := must.M1(calldata.CairoMatrixLiteral(codec, calldata.DenseRows(sampleX)))
		fmt.Printf("\nSample of %d test examples as a Cairo literal:\n%s\n", *flagSampleSize, literal)
	}
}

func decode(codec *felt.Codec, filePath string) {
	contents := must.M1(os.ReadFile(fsutil.MustReplaceTildeInDir(filePath)))
	snapshot := must.M1(export.Decode(codec, strings.TrimSpace(string(contents))))
	fmt.Printf("%s\n%s parameters\n", snapshot, humanize.Comma(int64(snapshot.NumParams())))
	for ii, layer := range snapshot.Layers {
		fmt.Printf("\nLayer #%d (activation tag %d):\n", ii, layer.Tag)
		for _, row := range layer.Weights {
			fmt.Printf("\t%s\n", formatRow(row))
		}
		fmt.Printf("bias:\t%s\n", formatRow(layer.Bias))
	}
}

func formatRow(values []float64) string {
	return strings.Join(xslices.Map(values, func(v float64) string { return fmt.Sprintf("%9.6f", v) }), " ")
}
