package state

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/internal/graph"
	"github.com/laerreal/gic/modules/sourcegit"
)

func sha(n int) sourcegit.SHA { return sourcegit.TestSHA(n) }

func newCtx() *gitctx.Context {
	repo := sourcegit.NewFakeRepo("/src")
	log := logrus.New()
	log.SetOutput(io.Discard)
	return gitctx.New(repo, "/dst", "git", "git version 2.43.0", log)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := newCtx()
	ctx.Actions = []*action.Record{
		action.New(action.KindInitRepo),
		func() *action.Record {
			r := action.New(action.KindCherryPick)
			r.CommitSHA = sha(1)
			r.Message = "hello"
			return r
		}(),
	}
	ctx.CurrentAction = 1
	ctx.Sha2Commit[sha(1)] = &graph.CommitDesc{SHA: sha(1), ClonedSHA: sha(2), HasCloned: true}

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Save(path, Snapshot(ctx)))

	f, ok, err := Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, f.CurrentAction)
	require.Len(t, f.Actions, 2)
	assert.Equal(t, action.KindCherryPick, f.Actions[1].Kind)
	assert.Equal(t, "hello", f.Actions[1].Message)
	assert.Equal(t, sha(2).String(), f.Origin2Cloned[sha(1).String()])
}

func TestRestoreRepopulatesClonedSHAs(t *testing.T) {
	src := newCtx()
	src.Actions = []*action.Record{action.New(action.KindInitRepo)}
	src.CurrentAction = 1
	src.Sha2Commit[sha(1)] = &graph.CommitDesc{SHA: sha(1), ClonedSHA: sha(2), HasCloned: true}

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Save(path, Snapshot(src)))

	dst := newCtx()
	dst.Sha2Commit[sha(1)] = &graph.CommitDesc{SHA: sha(1)}
	ok, err := Restore(path, dst)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, dst.CurrentAction)
	cloned, has := dst.ClonedSHA(sha(1))
	require.True(t, has)
	assert.Equal(t, sha(2), cloned)
}

// A corrupt file must fail without having touched the context, so the
// caller can fall back to planning from scratch.
func TestRestoreLeavesContextUntouchedOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("current_action = \"not a number\"\n"), 0o644))

	ctx := newCtx()
	ok, err := Restore(path, ctx)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, -1, ctx.CurrentAction)
	assert.Empty(t, ctx.Actions)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTreatsMissingAsSuccess(t *testing.T) {
	require.NoError(t, Delete(filepath.Join(t.TempDir(), "nope.toml")))
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Save(path, &File{CurrentAction: 1}))
	require.NoError(t, Save(path, &File{CurrentAction: 2}))

	f, ok, err := Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, f.CurrentAction)

	_, ok, err = Load(path + ".tmp")
	require.NoError(t, err)
	assert.False(t, ok) // the tmp file must not linger after a successful rename
}
