// Package graph builds the source repository's commit graph: every
// reachable commit is given a topological serial number and a "roots"
// bitmask identifying which history root(s) it descends from, so the
// planner can later test "is this commit on the main stream" in O(1).
// A manual edge stack avoids recursion depth limits on deep histories,
// and a node is only numbered once every one of its parents has already
// been linked and numbered.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/laerreal/gic/modules/sourcegit"
)

// CommitDesc is a single node of the built graph.
type CommitDesc struct {
	SHA      sourcegit.SHA
	Parents  []*CommitDesc
	Children []*CommitDesc
	Heads    []sourcegit.Reference

	// Num is the commit's serial number in topological order (parents
	// always precede children). Nil until the node has been numbered.
	Num *int

	// Roots is a bitmask: bit i is set if the commit descends from the
	// i-th history root discovered while building the graph. A commit
	// with more than one bit set is reachable from more than one root,
	// e.g. after an --allow-unrelated-histories merge.
	Roots uint64

	Processed bool
	Skipped   bool
	ClonedSHA sourcegit.SHA
	HasCloned bool
}

// Graph is the full set of commits reachable from the walked refs, keyed
// by SHA. Each ref is recorded on its target commit's Heads.
type Graph struct {
	Nodes map[sourcegit.SHA]*CommitDesc
}

// edge is a (parent, child) pair queued for linking.
type edge struct {
	parent sourcegit.SHA
	child  *CommitDesc
}

// IterationsPerYield is how many graph-walk iterations pass between two
// consecutive progress callbacks during a Build.
const IterationsPerYield = 100

// ticker invokes yield once every IterationsPerYield walk iterations,
// the builder's cooperative suspension point: a hosting UI can service
// events from the callback while a long walk is in flight.
type ticker struct {
	yield func(visited int)
	left  int
	total int
}

func (t *ticker) tick() {
	t.total++
	if t.yield == nil {
		return
	}
	t.left--
	if t.left <= 0 {
		t.yield(t.total)
		t.left = IterationsPerYield
	}
}

// Build walks every ref in repo, reachable commits only, and returns the
// resulting graph. refs, when non-nil, restricts the walk to exactly
// those ref paths; passing nil walks every ref in the repository.
func Build(repo sourcegit.Repo, refs map[sourcegit.ReferenceName]bool) (*Graph, error) {
	return BuildWithProgress(repo, refs, nil)
}

// BuildWithProgress is Build with a progress callback invoked every
// IterationsPerYield iterations of the walk; yield may be nil.
func BuildWithProgress(repo sourcegit.Repo, refs map[sourcegit.ReferenceName]bool, yield func(visited int)) (*Graph, error) {
	g := &Graph{Nodes: make(map[sourcegit.SHA]*CommitDesc)}

	allRefs, err := repo.References()
	if err != nil {
		return nil, err
	}

	var rootBit uint64 = 1
	stack := arraystack.New()
	n := 0
	matched := make(map[sourcegit.ReferenceName]bool, len(refs))
	t := &ticker{yield: yield, left: IterationsPerYield}

	for _, ref := range allRefs {
		if refs != nil && !refs[ref.Path] {
			continue
		}
		matched[ref.Path] = true

		headDesc, existed := g.Nodes[ref.Target]
		if existed {
			headDesc.Heads = append(headDesc.Heads, ref)
			continue
		}
		headDesc = &CommitDesc{SHA: ref.Target, Heads: []sourcegit.Reference{ref}}
		g.Nodes[ref.Target] = headDesc

		m, err := repo.Commit(ref.Target)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}

		if len(m.Parents) == 0 {
			// the ref points directly at a root commit: no edge will
			// ever discover it as someone's parent, so root it and
			// number it right here instead of leaving it stranded.
			headDesc.Roots = rootBit
			rootBit <<= 1
			if err := numberFrom(repo, headDesc, &n, t); err != nil {
				return nil, err
			}
		}
		for _, p := range m.Parents {
			stack.Push(edge{parent: p, child: headDesc})
		}

		var toEnum *CommitDesc

		for !stack.Empty() {
			t.tick()
			v, _ := stack.Pop()
			e := v.(edge)

			parentDesc, existed := g.Nodes[e.parent]
			if !existed {
				parentDesc = &CommitDesc{SHA: e.parent}
				g.Nodes[e.parent] = parentDesc

				pm, err := repo.Commit(e.parent)
				if err != nil {
					return nil, fmt.Errorf("graph: %w", err)
				}
				if len(pm.Parents) > 0 {
					for _, p := range pm.Parents {
						stack.Push(edge{parent: p, child: parentDesc})
					}
				} else {
					// an elder commit with no parents: it roots a history
					toEnum = parentDesc
					parentDesc.Roots = rootBit
					rootBit <<= 1
				}
			} else {
				// parentDesc was enumerated earlier; resume from its new child
				toEnum = e.child
				// this parent-child link was just created, so root bits
				// were not propagated to e.child during parentDesc's own
				// numbering pass
				e.child.Roots |= parentDesc.Roots
			}

			parentDesc.Children = append(parentDesc.Children, e.child)
			e.child.Parents = append(e.child.Parents, parentDesc)

			if err := numberFrom(repo, toEnum, &n, t); err != nil {
				return nil, err
			}
		}
	}

	if refs != nil {
		var missing []string
		for name, want := range refs {
			if want && !matched[name] {
				missing = append(missing, string(name))
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, fmt.Errorf("graph: unknown reference(s): %s", strings.Join(missing, ", "))
		}
	}

	return g, nil
}

// numberFrom assigns serial numbers starting at e, stopping at a leaf or
// at a merge commit still missing a numbered-and-linked parent. Exactly
// one child per numbered commit is followed onward; the algorithm relies
// on every other child either already being numbered, or not yet linked.
// n is the shared topological counter, threaded through every call made
// during one Build so numbers stay contiguous across the whole walk.
func numberFrom(repo sourcegit.Repo, e *CommitDesc, n *int, t *ticker) error {
	for e != nil {
		t.tick()
		cur := e
		e = nil

		m, err := repo.Commit(cur.SHA)
		if err != nil {
			return fmt.Errorf("graph: %w", err)
		}

		if len(cur.Parents) != len(m.Parents) {
			// not every parent has been linked yet; cannot number cur
			continue
		}

		num := *n
		cur.Num = &num
		*n++

		roots := cur.Roots
		for _, c := range cur.Children {
			c.Roots |= roots
			if e == nil && c.Num == nil {
				e = c
			}
		}
	}
	return nil
}
