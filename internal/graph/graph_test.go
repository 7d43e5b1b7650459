package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laerreal/gic/modules/sourcegit"
)

func sha(n int) sourcegit.SHA { return sourcegit.TestSHA(n) }

// linear chain: 1 -> 2 -> 3 (3 is head), one root.
func TestBuildLinearHistory(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(2), Parents: []sourcegit.SHA{sha(1)}})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(3), Parents: []sourcegit.SHA{sha(2)}})
	repo.AddRef("refs/heads/main", sha(3))

	g, err := Build(repo, nil)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	n1, n2, n3 := g.Nodes[sha(1)], g.Nodes[sha(2)], g.Nodes[sha(3)]
	require.NotNil(t, n1.Num)
	require.NotNil(t, n2.Num)
	require.NotNil(t, n3.Num)
	assert.Less(t, *n1.Num, *n2.Num)
	assert.Less(t, *n2.Num, *n3.Num)
	assert.EqualValues(t, 1, n1.Roots)
	assert.EqualValues(t, 1, n2.Roots)
	assert.EqualValues(t, 1, n3.Roots)
}

// merge of two independent roots: 1 and 2 are both roots, 3 merges them.
func TestBuildMergeCombinesRootBits(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(2)})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(3), Parents: []sourcegit.SHA{sha(1), sha(2)}})
	repo.AddRef("refs/heads/main", sha(3))

	g, err := Build(repo, nil)
	require.NoError(t, err)

	n1, n2, n3 := g.Nodes[sha(1)], g.Nodes[sha(2)], g.Nodes[sha(3)]
	require.NotEqual(t, n1.Roots, n2.Roots)
	assert.Equal(t, n1.Roots|n2.Roots, n3.Roots)
	require.NotNil(t, n3.Num)
	assert.Greater(t, *n3.Num, *n1.Num)
	assert.Greater(t, *n3.Num, *n2.Num)
}

// two heads sharing a common ancestor: second ref walk must not re-root it.
func TestBuildSharedAncestorNotDoubleRooted(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(2), Parents: []sourcegit.SHA{sha(1)}})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(3), Parents: []sourcegit.SHA{sha(1)}})
	repo.AddRef("refs/heads/main", sha(2))
	repo.AddRef("refs/heads/topic", sha(3))

	g, err := Build(repo, nil)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	n1 := g.Nodes[sha(1)]
	assert.EqualValues(t, 1, n1.Roots)
	assert.Len(t, n1.Children, 2)
}

// restricting to a single ref must not pull in unrelated branches.
func TestBuildRefFilterLimitsWalk(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(2), Parents: []sourcegit.SHA{sha(1)}})
	repo.AddCommit(&sourcegit.Commit{SHA: sha(3)})
	repo.AddRef("refs/heads/main", sha(2))
	repo.AddRef("refs/heads/unrelated", sha(3))

	g, err := Build(repo, map[sourcegit.ReferenceName]bool{"refs/heads/main": true})
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	_, ok := g.Nodes[sha(3)]
	assert.False(t, ok)
}

// a ref pointing directly at a root commit must still be rooted and
// numbered, even though no edge ever discovers it as someone's parent.
func TestBuildHeadDirectlyOnRootIsNumbered(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddRef("refs/heads/other", sha(1))

	g, err := Build(repo, nil)
	require.NoError(t, err)
	n1 := g.Nodes[sha(1)]
	require.NotNil(t, n1.Num)
	assert.NotZero(t, n1.Roots)
}

// a requested ref that doesn't exist in the repository must fail the
// build rather than be silently dropped.
func TestBuildRejectsUnknownRef(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddRef("refs/heads/main", sha(1))

	_, err := Build(repo, map[sourcegit.ReferenceName]bool{
		"refs/heads/main":    true,
		"refs/heads/missing": true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refs/heads/missing")
}

// the progress callback must fire periodically on a long walk: at least
// once per IterationsPerYield commits.
func TestBuildWithProgressYields(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	n := 400
	for i := 2; i <= n; i++ {
		repo.AddCommit(&sourcegit.Commit{SHA: sha(i), Parents: []sourcegit.SHA{sha(i - 1)}})
	}
	repo.AddRef("refs/heads/main", sha(n))

	yields := 0
	g, err := BuildWithProgress(repo, nil, func(visited int) { yields++ })
	require.NoError(t, err)
	assert.Len(t, g.Nodes, n)
	assert.GreaterOrEqual(t, yields, n/IterationsPerYield)
}

func TestBuildTagsRecordedOnHeads(t *testing.T) {
	repo := sourcegit.NewFakeRepo("/src")
	repo.AddCommit(&sourcegit.Commit{SHA: sha(1)})
	repo.AddRef("refs/heads/main", sha(1))
	repo.AddRef("refs/tags/v1", sha(1))

	g, err := Build(repo, nil)
	require.NoError(t, err)
	n1 := g.Nodes[sha(1)]
	assert.Len(t, n1.Heads, 2)
}
