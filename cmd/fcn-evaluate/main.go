package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	fcneval "github.com/jamesainslie/go-fcneval"
)

const vizFile = "viz_evaluate.png"

func main() {
	modelFile, deconv, err := parseArgs(os.Args[1:], os.Stderr)
	if err == nil {
		err = checkModelFile(modelFile)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "Usage: fcn-evaluate MODEL_FILE [--deconv | --nodeconv]")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, modelFile, deconv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, modelFile string, deconv bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fmt.Printf("==> Loading model file: %s\n", modelFile)
	ev, err := fcneval.New(modelFile,
		fcneval.WithDeconv(deconv),
		fcneval.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() { _ = ev.Close() }() // Cleanup error ignored in CLI

	fmt.Printf("==> Evaluating with VOC2011ClassSeg %s\n", fcneval.Split)
	res, err := ev.Run(ctx)
	if err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}

	if err := fcneval.WriteReport(os.Stdout, res.Summary); err != nil {
		return err
	}
	return fcneval.SaveVisualization(vizFile, res.Visualization)
}

// checkModelFile rejects a missing model file before anything is loaded.
func checkModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("model file not found: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("model file is a directory: %s", path)
	}
	return nil
}

// parseArgs accepts the flags before or after the model file.
func parseArgs(args []string, stderr io.Writer) (modelFile string, deconv bool, err error) {
	fs := flag.NewFlagSet("fcn-evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	withDeconv := fs.Bool("deconv", false, "Use the graph with a learned upsampling layer")
	noDeconv := fs.Bool("nodeconv", false, "Use the graph with fixed bilinear upsampling (default)")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return "", false, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	if *withDeconv && *noDeconv {
		return "", false, errors.New("--deconv and --nodeconv are mutually exclusive")
	}
	switch len(positional) {
	case 0:
		return "", false, errors.New("MODEL_FILE is required")
	case 1:
		return positional[0], *withDeconv, nil
	default:
		return "", false, fmt.Errorf("unexpected arguments: %v", positional[1:])
	}
}
