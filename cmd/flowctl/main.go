// Command flowctl is the kernel's CLI boundary: run a workflow document
// to completion in-process, or serve the HTTP control plane over it.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

type cli struct {
	Run   runCmd   `cmd:"" help:"Load and execute a workflow file to completion."`
	Serve serveCmd `cmd:"" help:"Start the HTTP control plane."`

	Version kong.VersionFlag `help:"Show the flowctl version and exit." short:"V"`
}

func main() {
	var c cli
	parser := kong.Must(&c,
		kong.Name("flowctl"),
		kong.Description("Agentic workflow kernel command-line interface."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "flowctl:", err)
		os.Exit(1)
	}
}
