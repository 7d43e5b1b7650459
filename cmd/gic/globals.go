package main

import (
	"fmt"
	"os"
)

// Globals carries flags shared by every gic invocation.
type Globals struct {
	Verbose bool `short:"V" name:"verbose" help:"Make the operation more talkative."`
	Quiet   bool `short:"q" name:"quiet" help:"Suppress the progress bar."`
}

// DbgPrint writes a diagnostic line to stderr when -V/--verbose is set.
func (g *Globals) DbgPrint(format string, a ...any) {
	if !g.Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", a...)
}
