// xsknic drives network devices through AF_XDP sockets behind a
// generic NIC operation set.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/virthw/xsknic/cmd/xsknic/cli"
)

func main() {
	var root cli.CLI
	parser, err := kong.New(&root, cli.KongOptions()...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}
	if err := ctx.Run(&root); err != nil {
		fmt.Fprintf(os.Stderr, "xsknic: %v\n", err)
		os.Exit(1)
	}
}
