// Package handlers implements the closed set of action.Kind handlers,
// one function per Kind. Every one touches only the destination working
// directory and never the source.
package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/internal/obslog"
	"github.com/laerreal/gic/modules/command"
)

// Handler executes one queued action against ctx.
type Handler func(ctx *gitctx.Context, r *action.Record) error

// Table is the closed registry of handlers, one per action.Kind.
var Table = map[action.Kind]Handler{
	action.KindRemoveDirectory:       removeDirectory,
	action.KindProvideDirectory:      provideDirectory,
	action.KindRemoveFile:            removeFile,
	action.KindInitRepo:              initRepo,
	action.KindAddRemote:             addRemote,
	action.KindRemoveRemote:          removeRemote,
	action.KindFetchRemote:           fetchRemote,
	action.KindCheckoutCloned:        checkoutCloned,
	action.KindCheckoutOrphan:        checkoutOrphan,
	action.KindSetAuthor:             setAuthor,
	action.KindResetAuthor:           resetAuthor,
	action.KindSetCommitter:          setCommitter,
	action.KindResetCommitter:        resetCommitter,
	action.KindMergeCloned:           mergeCloned,
	action.KindSubtreeMerge:          subtreeMerge,
	action.KindCherryPick:            cherryPick,
	action.KindCreateHead:            createHead,
	action.KindDeleteHead:            deleteHead,
	action.KindCreateTag:             createTag,
	action.KindDeleteTag:             deleteTag,
	action.KindCollectGarbage:        collectGarbage,
	action.KindApplyPatchFile:        applyPatchFile,
	action.KindHead2PatchFile:        head2PatchFile,
	action.KindInterrupt:             interruptHandler,
	action.KindApplyCacheOrInterrupt: applyCacheOrInterrupt,
	action.KindApplyCache:            applyCache,
	action.KindContinueCommitting:    continueCommitting,
}

// Dispatch looks up and runs the handler for r.Kind.
func Dispatch(ctx *gitctx.Context, r *action.Record) error {
	h, ok := Table[r.Kind]
	if !ok {
		return fmt.Errorf("handlers: no handler registered for kind %q", r.Kind)
	}
	return h(ctx, r)
}

// git runs a git subcommand in dir with ctx's current identity overlay,
// returning combined stdout (stderr is captured into the error on
// failure by modules/command).
func git(ctx *gitctx.Context, dir string, arg ...string) ([]byte, error) {
	opt := &command.RunOpts{RepoPath: dir, Environ: ctx.Broker.Environ()}
	cmd := command.NewFromOptions(context.Background(), opt, ctx.GitCommand, arg...)
	out, err := cmd.Output()
	logOutput(ctx, cmd, out, err)
	if err != nil {
		return out, fmt.Errorf("git %s: %s", strings.Join(arg, " "), command.FromError(err))
	}
	return out, nil
}

// logOutput records a finished subprocess's invocation, its output, and
// its elapsed time as CSV rows when ctx.ObsLog is configured; it is a
// no-op otherwise.
func logOutput(ctx *gitctx.Context, cmd *command.Command, out []byte, runErr error) {
	if ctx.ObsLog == nil {
		return
	}
	_ = ctx.ObsLog.Line(obslog.KindStdout, fmt.Sprintf("%s (%s)", cmd.String(), cmd.UseTime()))
	if len(out) > 0 {
		for _, line := range strings.Split(strings.TrimRight(string(out), "\r\n"), "\n") {
			_ = ctx.ObsLog.Line(obslog.KindStdout, line)
		}
	}
	if runErr != nil {
		_ = ctx.ObsLog.Line(obslog.KindStderr, command.FromError(runErr))
	}
}

func gitLine(ctx *gitctx.Context, dir string, arg ...string) (string, error) {
	out, err := git(ctx, dir, arg...)
	return strings.TrimSpace(string(out)), err
}

func removeDirectory(ctx *gitctx.Context, r *action.Record) error {
	if _, err := os.Stat(r.Path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(r.Path)
}

func provideDirectory(ctx *gitctx.Context, r *action.Record) error {
	return os.MkdirAll(r.Path, 0o755)
}

func removeFile(ctx *gitctx.Context, r *action.Record) error {
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func initRepo(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "init")
	return err
}

func addRemote(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "remote", "add", r.RemoteName, r.RemoteAddress)
	return err
}

func removeRemote(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "remote", "remove", r.Name)
	return err
}

func fetchRemote(ctx *gitctx.Context, r *action.Record) error {
	flag := "--no-tags"
	if r.Tags {
		flag = "--tags"
	}
	_, err := git(ctx, r.Path, "fetch", flag, r.RemoteName)
	return err
}

func checkoutCloned(ctx *gitctx.Context, r *action.Record) error {
	cloned, ok := ctx.ClonedSHA(r.CommitSHA)
	if !ok {
		return fmt.Errorf("handlers: checkout-cloned: %s was never cloned", r.CommitSHA)
	}
	_, err := git(ctx, r.Path, "checkout", "-f", cloned.String())
	return err
}

func checkoutOrphan(ctx *gitctx.Context, r *action.Record) error {
	if _, err := git(ctx, r.Path, "checkout", "--orphan", r.Name); err != nil {
		return err
	}
	if _, err := git(ctx, r.Path, "reset"); err != nil {
		return err
	}
	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.Path, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func setAuthor(ctx *gitctx.Context, r *action.Record) error {
	return setIdentity(ctx, "AUTHOR", r.AuthorIdentity())
}

func resetAuthor(ctx *gitctx.Context, r *action.Record) error {
	return resetIdentity(ctx, "AUTHOR")
}

func setCommitter(ctx *gitctx.Context, r *action.Record) error {
	return setIdentity(ctx, "COMMITTER", r.CommitterIdentity())
}

func resetCommitter(ctx *gitctx.Context, r *action.Record) error {
	return resetIdentity(ctx, "COMMITTER")
}

func createHead(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "branch", "-f", r.Name)
	return err
}

func deleteHead(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "branch", "-f", "-d", r.Name)
	return err
}

func createTag(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "tag", "-f", r.Name)
	return err
}

func deleteTag(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "tag", "-d", r.Name)
	return err
}

func collectGarbage(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "gc", "--aggressive", "--prune=all")
	return err
}

func interruptHandler(ctx *gitctx.Context, r *action.Record) error {
	ctx.Log.Warn(r.Reason)
	ctx.Interrupt()
	return nil
}

func applyPatchFile(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "am", "--committer-date-is-author-date", r.PatchFile)
	if err == nil {
		return nil
	}
	if _, abortErr := git(ctx, r.Path, "am", "--abort"); abortErr != nil {
		ctx.Log.Warnf("apply-patch-file: abort failed: %v", abortErr)
	}
	ctx.Enqueue(rec(action.KindInterrupt, func(rr *action.Record) {
		rr.Reason = fmt.Sprintf("failed to apply patch %s: %v", r.PatchFile, err)
	}))
	return nil
}

func head2PatchFile(ctx *gitctx.Context, r *action.Record) error {
	out, err := git(ctx, r.Path, "format-patch", "--stdout", "HEAD~1")
	if err != nil {
		return err
	}
	return os.WriteFile(r.PatchFile, out, 0o644)
}

func rec(kind action.Kind, set func(*action.Record)) *action.Record {
	r := action.New(kind)
	set(r)
	return r
}

var gitVersionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// gitAtLeast29 reports whether ctx.GitVersion (e.g. "git version 2.43.0")
// is 2.9 or newer, the threshold below which --allow-unrelated-histories
// does not exist.
func gitAtLeast29(version string) bool {
	m := gitVersionRe.FindStringSubmatch(version)
	if m == nil {
		return false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return major > 2 || (major == 2 && minor >= 9)
}
