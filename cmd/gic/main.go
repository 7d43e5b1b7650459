// Command gic replays a source git repository's history into a fresh
// destination repository, commit by commit, letting an operator pause,
// skip, or patch individual commits along the way and resume an
// interrupted run later.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("gic"),
		kong.Description("gic - replay a git repository's history into a new repository, interactively"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&app.Globals); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
