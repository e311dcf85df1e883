// Command forma is the manifest toolbox: validate, normalize, and hash
// manifest files, preview patches, and initialize the backing store.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Split out for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "normalize":
		return runNormalizeCmd(args[2:], stdout, stderr)
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "preview":
		return runPreviewCmd(args[2:], stdout, stderr)
	case "initdb":
		return runInitDBCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: forma <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  validate   <manifest>           validate a manifest file (JSON or YAML)")
	fmt.Fprintln(w, "  normalize  <manifest>           print the normalized manifest as JSON")
	fmt.Fprintln(w, "  hash       <manifest>           print the canonical content hash")
	fmt.Fprintln(w, "  preview    <manifest> <patch>   run a patch preview against a manifest")
	fmt.Fprintln(w, "  initdb     -driver -dsn         create the store schema")
	fmt.Fprintln(w, "  help                            show this help")
}
