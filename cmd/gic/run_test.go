package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laerreal/gic/internal/graph"
	"github.com/laerreal/gic/modules/sourcegit"
)

func sha(n int) sourcegit.SHA { return sourcegit.TestSHA(n) }

func TestSplitInsertSpecParsesShaAndPath(t *testing.T) {
	s, path, err := splitInsertSpec(sha(1).String() + ":/tmp/fix.patch")
	require.NoError(t, err)
	assert.Equal(t, sha(1), s)
	assert.Equal(t, "/tmp/fix.patch", path)
}

func TestSplitInsertSpecRejectsMissingColon(t *testing.T) {
	_, _, err := splitInsertSpec(sha(1).String())
	assert.Error(t, err)
}

func TestSplitInsertSpecRejectsBadSHA(t *testing.T) {
	_, _, err := splitInsertSpec("not-a-sha:/tmp/fix.patch")
	assert.Error(t, err)
}

func TestDirectivesResolvesMainStreamBits(t *testing.T) {
	g := &graph.Graph{Nodes: map[sourcegit.SHA]*graph.CommitDesc{
		sha(1): {SHA: sha(1), Roots: 1},
	}}
	app := &App{MainStream: sha(1).String()}
	d, err := app.directives(g)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.MainStreamBits)
}

func TestDirectivesRejectsUnknownMainStream(t *testing.T) {
	g := &graph.Graph{Nodes: map[sourcegit.SHA]*graph.CommitDesc{}}
	app := &App{MainStream: sha(1).String()}
	_, err := app.directives(g)
	assert.Error(t, err)
}

func TestDirectivesCollectsBreaksSkipsAndInsertions(t *testing.T) {
	g := &graph.Graph{Nodes: map[sourcegit.SHA]*graph.CommitDesc{}}
	app := &App{
		Breaks:     []string{sha(1).String()},
		Skips:      []string{sha(2).String()},
		Insertions: []string{sha(3).String() + ":/tmp/a.patch", sha(3).String() + ":/tmp/b.patch"},
	}
	d, err := app.directives(g)
	require.NoError(t, err)
	assert.True(t, d.Breaks[sha(1)])
	assert.True(t, d.Skips[sha(2)])
	assert.Equal(t, []string{"/tmp/a.patch", "/tmp/b.patch"}, d.Insertions[sha(3)])
}
