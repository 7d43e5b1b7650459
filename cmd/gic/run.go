package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/laerreal/gic/internal/executor"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/internal/graph"
	"github.com/laerreal/gic/internal/obslog"
	"github.com/laerreal/gic/internal/planner"
	"github.com/laerreal/gic/internal/progress"
	"github.com/laerreal/gic/internal/state"
	"github.com/laerreal/gic/modules/cache"
	"github.com/laerreal/gic/modules/sourcegit"
)

// App is the full command-line surface, one field per flag.
type App struct {
	Globals

	Source      string   `arg:"" name:"source" help:"Source repository path."`
	Destination string   `short:"d" name:"destination" help:"Destination repository path (must be creatable). Omitted: dry run."`
	ResultState string   `short:"r" name:"result-state" help:"Write the constructed plan to this file and continue running."`
	MainStream  string   `short:"m" name:"main-stream" help:"SHA of any commit whose history defines the main stream."`
	Breaks      []string `short:"b" name:"break" help:"Pause after this commit (repeatable)."`
	Skips       []string `short:"s" name:"skip" help:"Drop this commit (repeatable)."`
	Heads       []string `short:"H" name:"head" help:"Restrict the plan to ancestors of refs/heads/<name> (repeatable)."`
	TagRefs     []string `short:"t" name:"tag" help:"Restrict the plan to ancestors of refs/tags/<name> (repeatable)."`
	Insertions  []string `short:"i" name:"insert-before" help:"SHA1:PATCHFILE to apply immediately before SHA1 (repeatable)."`
	Git         string   `short:"g" name:"git" default:"git" help:"Alternative git binary."`
	LogFile     string   `name:"log-file" help:"Write subprocess stdout/stderr as CSV rows to this file instead of the terminal."`
	StateFile   string   `name:"state-file" hidden:"" help:"Override the default .gic-state.toml resume-file path."`
	Cache       string   `short:"c" name:"cache" help:"Directory of SHA1-named format-patch files used to auto-resolve merge/cherry-pick conflicts."`
	FromCache   bool     `name:"from-cache" help:"Require every conflict to be resolved from --cache, interrupting only on a cache miss (requires --cache)."`
}

// Run is the kong entry point: plan (or resume) and execute.
func (c *App) Run(g *Globals) error {
	log := logrus.New()
	if g.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	repo := sourcegit.NewCLIRepo(c.Git, c.Source)
	gitVersion, err := repo.GitVersion()
	if err != nil {
		return fmt.Errorf("gic: reading source git version: %w", err)
	}

	if c.Destination == "" {
		fmt.Fprintln(os.Stderr, "gic: no destination specified, dry run")
		ctx := gitctx.New(repo, "", c.Git, gitVersion, log)
		gr, err := c.buildGraph(ctx)
		if err != nil {
			return fmt.Errorf("gic: %w", err)
		}
		fmt.Fprintf(os.Stderr, "gic: %d commits reachable from the selected refs\n", len(gr.Nodes))
		return nil
	}

	dst, err := filepath.Abs(c.Destination)
	if err != nil {
		return fmt.Errorf("gic: resolving destination path: %w", err)
	}

	// The resume file lives in the launch directory, never inside the
	// destination: the plan's own preamble removes and recreates dst.
	statePath := c.StateFile
	if statePath == "" {
		statePath = state.DefaultFileName
	}

	ctx := gitctx.New(repo, dst, c.Git, gitVersion, log)

	if c.FromCache && c.Cache == "" {
		return fmt.Errorf("gic: --from-cache requires --cache")
	}
	if c.Cache != "" {
		index, err := cache.Load(c.Cache, log)
		if err != nil {
			return fmt.Errorf("gic: loading --cache: %w", err)
		}
		ctx.CachePath = c.Cache
		ctx.Cache = index
		ctx.FromCache = c.FromCache
	}

	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("gic: opening log file: %w", err)
		}
		defer f.Close()
		ctx.ObsLog = obslog.New(f)
	}

	// The graph is rebuilt on every startup, resumed or not: restored
	// cloned-SHA state only means anything once it is re-attached to
	// the source repository's commit descriptors.
	gr, err := c.buildGraph(ctx)
	if err != nil {
		return fmt.Errorf("gic: %w", err)
	}

	resumed, err := state.Restore(statePath, ctx)
	if err != nil {
		// A corrupt state file is reported and then ignored: the run
		// falls back to planning from scratch.
		log.Warnf("ignoring unreadable state file %s: %v", statePath, err)
		resumed = false
	}

	if !resumed {
		if err := c.plan(ctx, gr); err != nil {
			return fmt.Errorf("gic: planning: %w", err)
		}
		if c.ResultState != "" {
			if err := state.Save(c.ResultState, state.Snapshot(ctx)); err != nil {
				return fmt.Errorf("gic: writing result-state: %w", err)
			}
		}
	}

	bar := progress.NewBar("cloning", len(ctx.Actions), g.Quiet, os.Stderr)
	defer bar.Done()

	runErr := executor.Run(ctx, executor.Options{
		Persist: func(ctx *gitctx.Context) error {
			if ctx.CurrentAction >= len(ctx.Actions) {
				return state.Delete(statePath)
			}
			return state.Save(statePath, state.Snapshot(ctx))
		},
		OnProgress: bar.OnProgress,
	})
	if runErr != nil {
		return fmt.Errorf("gic: %w", runErr)
	}

	if ctx.IsInterrupted() {
		fmt.Fprintf(os.Stderr, "gic: interrupted at action %d/%d, rerun to resume\n", ctx.CurrentAction, len(ctx.Actions))
	}
	return nil
}

// buildGraph walks the source commit graph restricted to the selected
// refs (or every ref, when none are named) and installs it into ctx.
func (c *App) buildGraph(ctx *gitctx.Context) (*graph.Graph, error) {
	var refs map[sourcegit.ReferenceName]bool
	if len(c.Heads) > 0 || len(c.TagRefs) > 0 {
		refs = make(map[sourcegit.ReferenceName]bool)
		for _, h := range c.Heads {
			refs[sourcegit.ReferenceName("refs/heads/"+h)] = true
		}
		for _, t := range c.TagRefs {
			refs[sourcegit.ReferenceName("refs/tags/"+t)] = true
		}
	}

	g, err := graph.BuildWithProgress(ctx.SrcRepo, refs, func(visited int) {
		c.DbgPrint("graph: %d commits walked", visited)
	})
	if err != nil {
		return nil, err
	}
	for sha, desc := range g.Nodes {
		ctx.Sha2Commit[sha] = desc
	}
	return g, nil
}

// plan turns the built graph plus the flag set into an action queue.
func (c *App) plan(ctx *gitctx.Context, g *graph.Graph) error {
	d, err := c.directives(g)
	if err != nil {
		return err
	}
	return planner.Plan(ctx, g, d)
}

// directives turns the flag set into planner.Directives, resolving
// -m/--main-stream's anchor SHA to its roots bitmask.
func (c *App) directives(g *graph.Graph) (planner.Directives, error) {
	d := planner.Directives{
		Breaks:     make(map[sourcegit.SHA]bool),
		Skips:      make(map[sourcegit.SHA]bool),
		Insertions: make(map[sourcegit.SHA][]string),
	}

	if c.MainStream != "" {
		anchor, err := sourcegit.NewSHAEx(c.MainStream)
		if err != nil {
			return d, fmt.Errorf("invalid --main-stream %q: %w", c.MainStream, err)
		}
		desc, ok := g.Nodes[anchor]
		if !ok {
			return d, fmt.Errorf("--main-stream %q is not reachable from the selected refs", c.MainStream)
		}
		d.MainStreamBits = desc.Roots
	}

	for _, s := range c.Breaks {
		sha, err := sourcegit.NewSHAEx(s)
		if err != nil {
			return d, fmt.Errorf("invalid --break %q: %w", s, err)
		}
		d.Breaks[sha] = true
	}
	for _, s := range c.Skips {
		sha, err := sourcegit.NewSHAEx(s)
		if err != nil {
			return d, fmt.Errorf("invalid --skip %q: %w", s, err)
		}
		d.Skips[sha] = true
	}
	for _, tok := range c.Insertions {
		sha, patch, err := splitInsertSpec(tok)
		if err != nil {
			return d, err
		}
		d.Insertions[sha] = append(d.Insertions[sha], patch)
	}

	return d, nil
}

// splitInsertSpec parses a "SHA1:PATCHFILE" -i/--insert-before token.
// kong has no repeatable flag taking two separate values per occurrence,
// so both fields travel in one colon-joined token.
func splitInsertSpec(tok string) (sourcegit.SHA, string, error) {
	i := strings.IndexByte(tok, ':')
	if i < 0 {
		return sourcegit.ZeroSHA, "", fmt.Errorf("--insert-before %q: expected SHA1:PATCHFILE", tok)
	}
	sha, err := sourcegit.NewSHAEx(tok[:i])
	if err != nil {
		return sourcegit.ZeroSHA, "", fmt.Errorf("--insert-before %q: %w", tok, err)
	}
	return sha, tok[i+1:], nil
}
