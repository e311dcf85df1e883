package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/manifest"
)

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	moduleID := fs.String("module", "", "expected module id (defaults to the manifest's own)")
	asJSON := fs.Bool("json", false, "emit the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: forma validate [-module id] [-json] <manifest>")
		return 2
	}

	raw, err := manifest.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	m := manifest.Normalize(raw)
	errs, warns := manifest.Validate(m, *moduleID)

	if *asJSON {
		out := map[string]any{
			"ok":       len(errs) == 0,
			"errors":   errs,
			"warnings": warns,
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	} else {
		printIssues(stdout, "error", errs)
		printIssues(stdout, "warning", warns)
		if len(errs) == 0 {
			fmt.Fprintln(stdout, "ok")
		}
	}
	if len(errs) > 0 {
		return 1
	}
	return 0
}

func runNormalizeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: forma normalize <manifest>")
		return 2
	}

	raw, err := manifest.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest.Normalize(raw)); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runHashCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	normalized := fs.Bool("normalized", false, "hash the normalized form instead of the raw file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: forma hash [-normalized] <manifest>")
		return 2
	}

	m, err := manifest.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *normalized {
		m = manifest.Normalize(m)
	}
	hash, err := canonical.Hash(m)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}

func printIssues(w io.Writer, kind string, issues []issue.Issue) {
	for _, it := range issues {
		if it.Path != "" {
			fmt.Fprintf(w, "%s %s at %s: %s\n", kind, it.Code, it.Path, it.Message)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", kind, it.Code, it.Message)
		}
	}
}
