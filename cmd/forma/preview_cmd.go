package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Fabrica-Labs/forma/core/pkg/manifest"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
)

func runPreviewCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "Usage: forma preview <manifest> <patch>")
		return 2
	}

	raw, err := manifest.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	current := manifest.Normalize(raw)

	body, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	env, issues, err := patch.DecodeEnvelope(body)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	var result *patch.Result
	if len(issues) > 0 {
		result = &patch.Result{Errors: issues, Warnings: nil}
	} else {
		result = patch.Preview(current, env)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if !result.OK {
		return 1
	}
	return 0
}
