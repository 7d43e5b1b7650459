package handlers

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
)

// applyCacheOrInterrupt applies the cached patch for r.CommitSHA if the
// patch cache has one, or interrupts with r.Reason otherwise.
func applyCacheOrInterrupt(ctx *gitctx.Context, r *action.Record) error {
	applied, err := tryApplyCache(ctx, r)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	ctx.Log.Warn(r.Reason)
	ctx.Interrupt()
	return nil
}

// applyCache is the best-effort counterpart used when there is no prior
// run's cache to fall back on entirely: a miss or a failure is logged
// and swallowed, since the Interrupt emitted right after it is what
// actually gives the user control back.
func applyCache(ctx *gitctx.Context, r *action.Record) error {
	if _, err := tryApplyCache(ctx, r); err != nil {
		ctx.Log.Warnf("apply-cache: %s: %v", r.CommitSHA, err)
	}
	return nil
}

var patchSubjectRe = regexp.MustCompile(`^Subject:\s*(?:\[PATCH[^]]*\]\s*)?(.*)$`)
var diffGitRe = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)

// tryApplyCache reads the unified-diff patch keyed by r.CommitSHA out of
// ctx.Cache, restores the pre-image of every changed/deleted file from
// the commit's already-cloned parent, removes any file the patch
// creates, shells out to `patch -p1` to apply it, then writes the
// extracted commit message either into MERGE_MSG (merge still in
// progress) or via `commit --only --amend`.
func tryApplyCache(ctx *gitctx.Context, r *action.Record) (bool, error) {
	patchPath, ok := ctx.Cache[r.CommitSHA]
	if !ok {
		return false, nil
	}

	data, err := os.ReadFile(patchPath)
	if err != nil {
		return false, err
	}

	message, changed, created, deleted := parsePatchHeaders(data)

	var parentCloned string
	if desc := ctx.Sha2Commit[r.CommitSHA]; desc != nil && len(desc.Parents) > 0 && desc.Parents[0].HasCloned {
		parentCloned = desc.Parents[0].ClonedSHA.String()
	}
	if parentCloned != "" {
		for _, f := range append(append([]string{}, changed...), deleted...) {
			if _, err := git(ctx, r.Path, "checkout", parentCloned, "--", f); err != nil {
				return false, err
			}
		}
	}
	for _, f := range created {
		full := filepath.Join(r.Path, f)
		if _, err := os.Stat(full); err == nil {
			if err := os.Remove(full); err != nil {
				return false, err
			}
		}
	}

	cmd := exec.Command("patch", "-p1", "-i", patchPath)
	cmd.Dir = r.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		return false, &patchError{path: patchPath, output: out, cause: err}
	}

	mergeMsgPath := filepath.Join(r.Path, ".git", "MERGE_MSG")
	if _, statErr := os.Stat(mergeMsgPath); statErr == nil {
		if err := os.WriteFile(mergeMsgPath, []byte(message+"\n"), 0o644); err != nil {
			return false, err
		}
	} else {
		if _, err := git(ctx, r.Path, "commit", "--only", "--amend", "-m", message); err != nil {
			return false, err
		}
	}
	return true, nil
}

// parsePatchHeaders pulls the Subject line and the per-file new/deleted
// markers out of a `git format-patch`-style unified diff.
func parsePatchHeaders(data []byte) (message string, changed, created, deleted []string) {
	var curFile string
	var curNew, curDeleted bool

	flush := func() {
		if curFile == "" {
			return
		}
		switch {
		case curNew:
			created = append(created, curFile)
		case curDeleted:
			deleted = append(deleted, curFile)
		default:
			changed = append(changed, curFile)
		}
	}

	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case message == "" && strings.HasPrefix(line, "Subject:"):
			if m := patchSubjectRe.FindStringSubmatch(line); m != nil {
				message = m[1]
			}
		case strings.HasPrefix(line, "diff --git "):
			flush()
			curNew, curDeleted = false, false
			curFile = ""
			if m := diffGitRe.FindStringSubmatch(line); m != nil {
				curFile = m[2]
			}
		case strings.HasPrefix(line, "new file mode"):
			curNew = true
		case strings.HasPrefix(line, "deleted file mode"):
			curDeleted = true
		}
	}
	flush()
	return message, changed, created, deleted
}

type patchError struct {
	path   string
	output []byte
	cause  error
}

func (e *patchError) Error() string {
	return "handlers: patch -p1 -i " + e.path + ": " + e.cause.Error() + ": " + string(e.output)
}

func (e *patchError) Unwrap() error { return e.cause }
