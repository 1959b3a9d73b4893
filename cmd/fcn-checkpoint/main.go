package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jamesainslie/go-fcneval/checkpoint"
)

const usage = `Usage:
  fcn-checkpoint inspect FILE
  fcn-checkpoint wrap IN OUT     store the state under "model_state_dict"
  fcn-checkpoint unwrap IN OUT   store the state at the top level

The encoding of OUT follows its extension: .json for JSON, binary otherwise.`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command\n%s", usage)
	}

	switch cmd := args[0]; cmd {
	case "inspect":
		if len(args) != 2 {
			return fmt.Errorf("inspect takes one file\n%s", usage)
		}
		return inspect(args[1], stdout)

	case "wrap", "unwrap":
		if len(args) != 3 {
			return fmt.Errorf("%s takes IN and OUT\n%s", cmd, usage)
		}
		format := checkpoint.FormatKeyed
		if cmd == "unwrap" {
			format = checkpoint.FormatFlat
		}
		return rewrite(args[1], args[2], format)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func inspect(path string, w io.Writer) error {
	ck, err := checkpoint.Load(path)
	if err != nil {
		return err
	}

	var params int64
	for _, t := range ck.State {
		params += t.Len()
	}
	fmt.Fprintf(w, "Format: %s\n", ck.Format)
	fmt.Fprintf(w, "Tensors: %d (%d parameters)\n", len(ck.State), params)

	if len(ck.Meta) > 0 {
		keys := make([]string, 0, len(ck.Meta))
		for k := range ck.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Metadata:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, ck.Meta[k])
		}
	}

	fmt.Fprintln(w, "State:")
	for _, name := range ck.State.Names() {
		fmt.Fprintf(w, "  %-24s %v\n", name, ck.State[name].Shape)
	}
	return nil
}

func rewrite(in, out string, format checkpoint.Format) error {
	ck, err := checkpoint.Load(in)
	if err != nil {
		return err
	}
	ck.Format = format
	if format == checkpoint.FormatFlat {
		ck.Meta = nil
	}
	return checkpoint.Save(out, ck)
}
