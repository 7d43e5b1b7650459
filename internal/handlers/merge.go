package handlers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/modules/identity"
	"github.com/laerreal/gic/modules/sourcegit"
)

const conflictAdviceMsg = "Try to manage it by self. Non-resolved conflicts " +
	"will be taken from the original repository automatically after continuing."

func mergeCloned(ctx *gitctx.Context, r *action.Record) error {
	args := []string{"merge", "--no-ff", "-m", r.Message}
	for _, p := range r.ExtraParents {
		cloned, ok := ctx.ClonedSHA(p)
		if !ok {
			return errNotCloned(p)
		}
		args = append(args, cloned.String())
	}

	if _, err := git(ctx, r.Path, args...); err != nil {
		return recoverFromConflict(ctx, r.Path, r.CommitSHA,
			"merge "+r.CommitSHA.String(), "merging", err)
	}

	return recordClonedHead(ctx, r.Path, r.CommitSHA)
}

func subtreeMerge(ctx *gitctx.Context, r *action.Record) error {
	parentCloned, ok := ctx.ClonedSHA(r.ParentSHA)
	if !ok {
		return errNotCloned(r.ParentSHA)
	}

	mergeArgs := []string{"merge", "-s", "ours", "--no-commit"}
	if gitAtLeast29(ctx.GitVersion) {
		mergeArgs = append(mergeArgs, "--allow-unrelated-histories")
	}
	mergeArgs = append(mergeArgs, parentCloned.String())
	if _, err := git(ctx, r.Path, mergeArgs...); err != nil {
		return err
	}

	scratch := filepath.Join(r.Path, ".gic")
	if err := os.RemoveAll(scratch); err != nil {
		return err
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return err
	}

	if _, err := git(ctx, r.Path, "read-tree", "--prefix", ".gic/", "-u", parentCloned.String()); err != nil {
		return err
	}

	prefixDir := filepath.Join(r.Path, r.Prefix)
	if err := os.RemoveAll(prefixDir); err != nil {
		return err
	}
	if err := os.MkdirAll(prefixDir, 0o755); err != nil {
		return err
	}

	if err := filepath.Walk(scratch, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == scratch || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(scratch, path)
		if err != nil {
			return err
		}
		target := filepath.Join(prefixDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_, err = git(ctx, r.Path, "mv", "-f", filepath.Join(".gic", rel), filepath.Join(r.Prefix, rel))
		return err
	}); err != nil {
		return err
	}

	if err := os.RemoveAll(scratch); err != nil {
		return err
	}

	if _, err := git(ctx, r.Path, "commit", "-m", r.Message); err != nil {
		return err
	}
	return recordClonedHead(ctx, r.Path, r.CommitSHA)
}

func cherryPick(ctx *gitctx.Context, r *action.Record) error {
	_, err := git(ctx, r.Path, "cherry-pick", r.CommitSHA.String())
	if err == nil {
		return recordClonedHead(ctx, r.Path, r.CommitSHA)
	}

	if strings.Contains(err.Error(), "--allow-empty") {
		if _, cErr := git(ctx, r.Path, "commit", "--allow-empty", "-m", r.Message); cErr != nil {
			return cErr
		}
		return recordClonedHead(ctx, r.Path, r.CommitSHA)
	}

	return recoverFromConflict(ctx, r.Path, r.CommitSHA,
		"cherry picking "+r.CommitSHA.String(), "cherry-picking", err)
}

// continueCommitting finishes either a conflicted merge (MERGE_MSG still
// present) or rewrites the author/committer metadata of an already
// resolved cherry-pick.
func continueCommitting(ctx *gitctx.Context, r *action.Record) error {
	mergeMsgPath := filepath.Join(r.Path, ".git", "MERGE_MSG")
	_, statErr := os.Stat(mergeMsgPath)
	merging := statErr == nil

	if merging {
		out, err := gitLine(ctx, r.Path, "diff", "--name-only", "--diff-filter=U")
		if err != nil {
			return err
		}
		for _, f := range strings.Split(out, "\n") {
			if f == "" {
				continue
			}
			if _, err := git(ctx, r.Path, "checkout", r.CommitSHA.String(), "--", f); err != nil {
				return err
			}
		}
		if _, err := git(ctx, r.Path, "commit", "--allow-empty", "--no-edit"); err != nil {
			return err
		}
	} else {
		if _, err := git(ctx, r.Path, "commit", "--allow-empty", "--no-edit", "--amend"); err != nil {
			return err
		}
	}

	return recordClonedHead(ctx, r.Path, r.CommitSHA)
}

// recoverFromConflict composes and dynamically enqueues the
// conflict-recovery sub-plan, after checking that the failure was in
// fact a merge/cherry-pick conflict (a nonempty unmerged-paths set)
// rather than some other git failure.
func recoverFromConflict(ctx *gitctx.Context, path string, commitSHA sourcegit.SHA, what, gerund string, cause error) error {
	out, diffErr := gitLine(ctx, path, "diff", "--name-only", "--diff-filter=U")
	if diffErr != nil {
		return diffErr
	}
	var conflicts []string
	for _, f := range strings.Split(out, "\n") {
		if f != "" {
			conflicts = append(conflicts, f)
		}
	}
	if len(conflicts) == 0 {
		// not a conflict after all: the original failure stands.
		return cause
	}

	var conflStr string
	if len(conflicts) == 1 {
		conflStr = "is " + gerund + " conflict with '" + conflicts[0] + "'"
	} else {
		conflStr = "are " + gerund + " conflicts"
	}
	reason := "There " + conflStr + " in course of " + what + ". Interrupting... " + conflictAdviceMsg

	if ctx.FromCache {
		ctx.Enqueue(rec(action.KindApplyCacheOrInterrupt, func(rr *action.Record) {
			rr.Path, rr.CommitSHA, rr.Reason = path, commitSHA, reason
		}))
	} else {
		if ctx.CachePath != "" {
			ctx.Enqueue(rec(action.KindApplyCache, func(rr *action.Record) {
				rr.Path, rr.CommitSHA = path, commitSHA
			}))
		}
		ctx.Enqueue(rec(action.KindInterrupt, func(rr *action.Record) { rr.Reason = reason }))
	}

	if id, ok := identity.FromEnv(ctx.Broker, "COMMITTER"); ok {
		ctx.Enqueue(rec(action.KindSetCommitter, func(rr *action.Record) {
			rr.CommitterName, rr.CommitterEmail = id.Name, id.Email
			rr.CommittedTS, rr.CommitterTZOff = id.UnixTS, id.TZOffsetSeconds
		}))
	}
	ctx.Enqueue(rec(action.KindContinueCommitting, func(rr *action.Record) {
		rr.Path, rr.CommitSHA = path, commitSHA
	}))
	ctx.Enqueue(action.New(action.KindResetCommitter))

	return nil
}

func recordClonedHead(ctx *gitctx.Context, path string, commitSHA sourcegit.SHA) error {
	head, err := gitLine(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return err
	}
	sha, err := sourcegit.NewSHAEx(head)
	if err != nil {
		return err
	}
	ctx.SetClonedSHA(commitSHA, sha)
	return nil
}

func errNotCloned(sha sourcegit.SHA) error {
	return &notClonedError{sha: sha}
}

type notClonedError struct{ sha sourcegit.SHA }

func (e *notClonedError) Error() string {
	return "handlers: " + e.sha.String() + " was never cloned"
}
