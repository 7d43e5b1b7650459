// Package planner turns a built commit graph plus user directives into
// the ordered action plan the executor will replay: a preamble that
// initializes the destination, one group of actions per commit in
// ascending topological order, and a postamble that cleans up temporary
// refs and the fetch remote.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/internal/graph"
	"github.com/laerreal/gic/modules/sourcegit"
)

const clonedRemoteName = "__cloned__"

// Directives carries the planner's inputs beyond the graph itself:
// the main-stream anchor's roots bitmask, the set of commits to break
// on or skip, and patches to insert before a given commit.
type Directives struct {
	MainStreamBits uint64
	Breaks         map[sourcegit.SHA]bool
	Skips          map[sourcegit.SHA]bool
	// Insertions maps a commit SHA to patch file paths applied
	// immediately before it, in the order the user gave them.
	Insertions map[sourcegit.SHA][]string
}

type usage struct {
	breaks     map[sourcegit.SHA]bool
	skips      map[sourcegit.SHA]bool
	insertions map[sourcegit.SHA]bool
}

// Plan appends the full action program for g to ctx's queue. It fails
// if any break/skip/insertion was never consumed: a hard failure beats
// silently ignoring user intent. Unused directives are only detectable
// after a full pass, so actions already enqueued are not rolled back;
// a caller that plans into a fresh context loses nothing.
func Plan(ctx *gitctx.Context, g *graph.Graph, d Directives) error {
	repo := ctx.SrcRepo
	dst := ctx.DstRepoPath
	srcRepoPath := repo.WorkingDir()

	u := usage{
		breaks:     make(map[sourcegit.SHA]bool),
		skips:      make(map[sourcegit.SHA]bool),
		insertions: make(map[sourcegit.SHA]bool),
	}

	queue := orderedByNum(g)

	emit := func(r *action.Record) { ctx.Enqueue(r) }

	emit(rec(action.KindRemoveDirectory, func(r *action.Record) { r.Path = dst }))
	emit(rec(action.KindProvideDirectory, func(r *action.Record) { r.Path = dst }))
	emit(rec(action.KindInitRepo, func(r *action.Record) { r.Path = dst }))
	emit(rec(action.KindAddRemote, func(r *action.Record) {
		r.Path, r.RemoteName, r.RemoteAddress = dst, clonedRemoteName, srcRepoPath
	}))
	emit(rec(action.KindFetchRemote, func(r *action.Record) {
		r.Path, r.RemoteName, r.Tags = dst, clonedRemoteName, true
	}))

	orphanCounter := 0
	var prevC *graph.CommitDesc
	atLeastOneInTrunk := false

	for _, c := range queue {
		c.Processed = true
		cSHA := c.SHA

		if d.MainStreamBits != 0 && c.Roots&d.MainStreamBits == 0 {
			// Used as-is: the destination reuses the source SHA verbatim.
			c.ClonedSHA = cSHA
			c.HasCloned = true
			if len(d.Insertions[cSHA]) > 0 {
				u.insertions[cSHA] = true // silently dropped, but accounted for
			}
			continue
		}

		m, err := repo.Commit(cSHA)
		if err != nil {
			return fmt.Errorf("planner: %w", err)
		}

		if prevC != nil {
			switch {
			case len(c.Parents) == 0:
				emit(rec(action.KindCheckoutOrphan, func(r *action.Record) {
					r.Path, r.Name = dst, orphanName(orphanCounter)
				}))
				orphanCounter++
				atLeastOneInTrunk = false
			default:
				mainStreamSHA := m.Parents[0]
				if mainStreamSHA != prevC.SHA {
					actual, err := getActualParents(repo, ctx.Sha2Commit, mainStreamSHA)
					if err != nil {
						return err
					}
					target := mainStreamSHA
					if len(actual) > 0 {
						target = actual[0]
					}
					emit(rec(action.KindCheckoutCloned, func(r *action.Record) {
						r.Path, r.CommitSHA = dst, target
					}))
					atLeastOneInTrunk = false
				}
			}
		}

		for _, patch := range d.Insertions[cSHA] {
			emit(rec(action.KindApplyPatchFile, func(r *action.Record) {
				r.Path, r.PatchFile = dst, patch
			}))
		}
		if len(d.Insertions[cSHA]) > 0 {
			u.insertions[cSHA] = true
		}

		skipping := d.Skips[cSHA]
		if skipping {
			u.skips[cSHA] = true
		}

		var extraParents []sourcegit.SHA
		if !skipping && len(m.Parents) > 1 {
			for _, p := range m.Parents[1:] {
				aps, err := getActualParents(repo, ctx.Sha2Commit, p)
				if err != nil {
					return err
				}
				extraParents = append(extraParents, aps...)
			}
			if len(extraParents) == 0 {
				skipping = true
			}
		}

		if skipping {
			c.Skipped = true
			for _, h := range c.Heads {
				switch {
				case h.Path.IsBranch():
					if atLeastOneInTrunk {
						emit(rec(action.KindCreateHead, func(r *action.Record) {
							r.Path, r.Name = dst, h.Path.ShortName()
						}))
					} else {
						ctx.Log.Warnf("head %q will be skipped because no commits of this trunk are copied", h.Path.ShortName())
					}
				case h.Path.IsTag():
					ctx.Log.Warnf("tag %q will be skipped with its commit", h.Path.ShortName())
				}
			}
		} else {
			atLeastOneInTrunk = true

			if len(m.Parents) > 1 {
				if err := emitMerge(ctx, emit, repo, m, cSHA, extraParents); err != nil {
					return err
				}
			} else {
				emit(committerRecord(action.KindSetCommitter, m.Committer))
				emit(rec(action.KindCherryPick, func(r *action.Record) {
					r.Path, r.CommitSHA, r.Message = dst, cSHA, m.Message
				}))
				emit(action.New(action.KindResetCommitter))
			}

			for _, h := range c.Heads {
				switch {
				case h.Path.IsBranch():
					emit(rec(action.KindCreateHead, func(r *action.Record) {
						r.Path, r.Name = dst, h.Path.ShortName()
					}))
				case h.Path.IsTag():
					emit(rec(action.KindCreateTag, func(r *action.Record) {
						r.Path, r.Name = dst, h.Path.ShortName()
					}))
				}
			}
		}

		if d.Breaks[cSHA] {
			u.breaks[cSHA] = true
			if atLeastOneInTrunk {
				emit(rec(action.KindInterrupt, func(r *action.Record) {
					r.Reason = "Interrupting as requested..."
				}))
				emit(committerRecord(action.KindSetCommitter, m.Committer))
				emit(rec(action.KindContinueCommitting, func(r *action.Record) {
					r.Path, r.CommitSHA = dst, cSHA
				}))
				emit(action.New(action.KindResetCommitter))
			} else {
				ctx.Log.Warnf("cannot interrupt on %q because no commits of this trunk are copied", cSHA)
			}
		}

		prevC = c
	}

	for k := 0; k < orphanCounter; k++ {
		emit(rec(action.KindDeleteHead, func(r *action.Record) {
			r.Path, r.Name = dst, orphanName(k)
		}))
	}

	refs, err := repo.References()
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	for _, ref := range refs {
		if !ref.Path.IsTag() {
			continue
		}
		desc := ctx.Sha2Commit[ref.Target]
		if desc == nil || desc.Skipped {
			name := ref.Path.ShortName()
			emit(rec(action.KindDeleteTag, func(r *action.Record) {
				r.Path, r.Name = dst, name
			}))
		}
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	emit(rec(action.KindCheckoutCloned, func(r *action.Record) { r.Path, r.CommitSHA = dst, head }))
	emit(rec(action.KindRemoveRemote, func(r *action.Record) { r.Path, r.Name = dst, clonedRemoteName }))
	emit(rec(action.KindCollectGarbage, func(r *action.Record) { r.Path = dst }))

	for _, c := range g.Nodes {
		if !c.Processed {
			ctx.Log.Warnf("commit %s was not cloned", c.SHA)
		}
	}

	return u.unconsumed(d)
}

func (u usage) unconsumed(d Directives) error {
	var bad []string
	for sha := range d.Skips {
		if !u.skips[sha] {
			bad = append(bad, "skip "+sha.String())
		}
	}
	for sha := range d.Breaks {
		if !u.breaks[sha] {
			bad = append(bad, "break "+sha.String())
		}
	}
	for sha := range d.Insertions {
		if !u.insertions[sha] {
			bad = append(bad, "insert-before "+sha.String())
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return fmt.Errorf("planner: unused directive(s): %s", strings.Join(bad, ", "))
}

func emitMerge(ctx *gitctx.Context, emit func(*action.Record), repo sourcegit.Repo, m *sourcegit.Commit, cSHA sourcegit.SHA, extraParents []sourcegit.SHA) error {
	var prefix string
	subtree := false
	if len(m.Parents) == 2 {
		p, ok, err := detectSubtree(repo, m.Parents[1], cSHA)
		if err != nil {
			return err
		}
		prefix, subtree = p, ok
	}

	emit(authorRecord(action.KindSetAuthor, m.Author))
	emit(committerRecord(action.KindSetCommitter, m.Committer))

	if subtree {
		parentSHA := cSHA
		if len(extraParents) > 0 {
			parentSHA = extraParents[0]
		}
		emit(rec(action.KindSubtreeMerge, func(r *action.Record) {
			r.Path, r.CommitSHA, r.Message = ctx.DstRepoPath, cSHA, m.Message
			r.ParentSHA, r.Prefix = parentSHA, prefix
		}))
	} else {
		parents := append([]sourcegit.SHA(nil), extraParents...)
		emit(rec(action.KindMergeCloned, func(r *action.Record) {
			r.Path, r.CommitSHA, r.Message = ctx.DstRepoPath, cSHA, m.Message
			r.ExtraParents = parents
		}))
	}

	emit(action.New(action.KindResetAuthor))
	emit(action.New(action.KindResetCommitter))
	return nil
}

func rec(kind action.Kind, set func(*action.Record)) *action.Record {
	r := action.New(kind)
	set(r)
	return r
}

// authorRecord/committerRecord translate a source signature into the
// stored (sign-inverted) wire convention modules/identity formats, so
// handlers can pass AuthorTZOff/CommitterTZOff straight to
// identity.FormatDate without re-deriving the sign.
func authorRecord(kind action.Kind, sig sourcegit.Signature) *action.Record {
	return rec(kind, func(r *action.Record) {
		r.AuthorName, r.AuthorEmail = sig.Name, sig.Email
		r.AuthoredTS = sig.When.Unix()
		r.AuthorTZOff = -sig.TZOffsetSeconds
	})
}

func committerRecord(kind action.Kind, sig sourcegit.Signature) *action.Record {
	return rec(kind, func(r *action.Record) {
		r.CommitterName, r.CommitterEmail = sig.Name, sig.Email
		r.CommittedTS = sig.When.Unix()
		r.CommitterTZOff = -sig.TZOffsetSeconds
	})
}

func orphanName(n int) string {
	return fmt.Sprintf("__orphan__%d", n)
}

func orderedByNum(g *graph.Graph) []*graph.CommitDesc {
	queue := make([]*graph.CommitDesc, 0, len(g.Nodes))
	for _, c := range g.Nodes {
		queue = append(queue, c)
	}
	sort.Slice(queue, func(i, j int) bool {
		return *queue[i].Num < *queue[j].Num
	})
	return queue
}

// getActualParents resolves a (possibly skipped) parent to the set of
// non-skipped ancestors that should stand in for it in a merge's parent
// list: a depth-first walk over ancestors, pruning at the first
// non-skipped commit on each branch.
func getActualParents(repo sourcegit.Repo, sha2commit map[sourcegit.SHA]*graph.CommitDesc, origParent sourcegit.SHA) ([]sourcegit.SHA, error) {
	desc := sha2commit[origParent]
	if desc == nil || !desc.Skipped {
		return []sourcegit.SHA{origParent}, nil
	}

	m, err := repo.Commit(origParent)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	stack := arraystack.New()
	for _, p := range m.Parents {
		stack.Push(p)
	}

	var ret []sourcegit.SHA
	for !stack.Empty() {
		v, _ := stack.Pop()
		p := v.(sourcegit.SHA)

		pd := sha2commit[p]
		if pd != nil && pd.Skipped {
			pm, err := repo.Commit(p)
			if err != nil {
				return nil, fmt.Errorf("planner: %w", err)
			}
			for _, pp := range pm.Parents {
				stack.Push(pp)
			}
		} else {
			ret = append(ret, p)
		}
	}
	return ret, nil
}

// detectSubtree tests whether a merge looks like the result of
// `git subtree add --prefix=P`: it looks for a renamed entry in the diff from the
// merge's second parent to the merge itself whose new path ends with
// its old path, takes the non-overlapping leading segment as the
// candidate prefix, then checks that every blob of the second parent's
// tree was correspondingly renamed or recreated under that prefix.
func detectSubtree(repo sourcegit.Repo, secondParent, merge sourcegit.SHA) (string, bool, error) {
	const acceptable = 4

	diff, err := repo.Diff(secondParent, merge)
	if err != nil {
		return "", false, err
	}

	var probe *sourcegit.DiffEntry
	for i := range diff {
		if diff[i].Renamed {
			probe = &diff[i]
			break
		}
	}
	if probe == nil {
		return "", false, nil
	}
	if !strings.HasSuffix(probe.RenameTo, probe.RenameFrom) {
		return "", false, nil
	}
	prefix := probe.RenameTo[:len(probe.RenameTo)-len(probe.RenameFrom)]

	tree, err := repo.Tree(secondParent)
	if err != nil {
		return "", false, err
	}

	tolerance := acceptable
	for _, path := range tree {
		newPath := prefix + path
		found := false
		for _, entry := range diff {
			switch {
			case entry.Renamed:
				if entry.RenameFrom == path && entry.RenameTo == newPath {
					found = true
				}
			case entry.NewFile:
				if entry.BPath == newPath {
					found = true
				}
			}
			if found {
				break
			}
		}
		if !found {
			if tolerance == 0 {
				return "", false, nil
			}
			tolerance--
		}
	}
	return prefix, true, nil
}
