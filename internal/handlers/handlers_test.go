package handlers

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/modules/sourcegit"
)

func newTestCtx(t *testing.T, dir string) *gitctx.Context {
	t.Helper()
	repo := sourcegit.NewFakeRepo(dir)
	log := logrus.New()
	log.SetOutput(testWriter{t})
	return gitctx.New(repo, dir, "git", "git version 2.43.0", log)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestRemoveDirectoryIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "sub"), 0o755))

	ctx := newTestCtx(t, dir)
	r := rec(action.KindRemoveDirectory, func(rr *action.Record) { rr.Path = target })

	require.NoError(t, removeDirectory(ctx, r))
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	// removing again must not error.
	require.NoError(t, removeDirectory(ctx, r))
}

func TestProvideDirectoryCreatesNested(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")
	ctx := newTestCtx(t, dir)
	r := rec(action.KindProvideDirectory, func(rr *action.Record) { rr.Path = target })

	require.NoError(t, provideDirectory(ctx, r))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRemoveFileToleratesMissing(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestCtx(t, dir)
	r := rec(action.KindRemoveFile, func(rr *action.Record) { rr.Path = filepath.Join(dir, "nope") })
	require.NoError(t, removeFile(ctx, r))
}

func TestSetResetIdentityRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestCtx(t, dir)

	r := rec(action.KindSetCommitter, func(rr *action.Record) {
		rr.CommitterName, rr.CommitterEmail = "A U Thor", "a@example.org"
		rr.CommittedTS, rr.CommitterTZOff = 1337892984, -10800
	})
	require.NoError(t, setCommitter(ctx, r))

	v, ok := ctx.Broker.LookupEnv("GIT_COMMITTER_NAME")
	require.True(t, ok)
	assert.Equal(t, "A U Thor", v)
	date, ok := ctx.Broker.LookupEnv("GIT_COMMITTER_DATE")
	require.True(t, ok)
	assert.Equal(t, "2012-05-24 23:56:24+0300", date)

	require.NoError(t, resetCommitter(ctx, r))
	_, ok = ctx.Broker.LookupEnv("GIT_COMMITTER_NAME")
	assert.False(t, ok)

	// a Reset with nothing Set must not error.
	require.NoError(t, resetCommitter(ctx, r))
}

func TestGitAtLeast29(t *testing.T) {
	assert.True(t, gitAtLeast29("git version 2.43.0"))
	assert.True(t, gitAtLeast29("git version 2.9.0"))
	assert.False(t, gitAtLeast29("git version 2.8.9"))
	assert.False(t, gitAtLeast29("git version 1.9.9"))
	assert.False(t, gitAtLeast29("garbage"))
}

func TestParsePatchHeaders(t *testing.T) {
	patch := `From 1111111111111111111111111111111111111111 Mon Sep 17 00:00:00 2001
From: Pat Doe <pat@example.org>
Date: Fri, 25 May 2012 01:16:24 +0300
Subject: [PATCH] Add vendored library

---
diff --git a/vendor/new.go b/vendor/new.go
new file mode 100644
index 0000000..e69de29
diff --git a/old.go b/old.go
deleted file mode 100644
index e69de29..0000000
diff --git a/changed.go b/changed.go
index e69de29..abcdef1 100644
--- a/changed.go
+++ b/changed.go
@@ -1 +1 @@
-old
+new
`
	message, changed, created, deleted := parsePatchHeaders([]byte(patch))
	assert.Equal(t, "Add vendored library", message)
	assert.Equal(t, []string{"changed.go"}, changed)
	assert.Equal(t, []string{"vendor/new.go"}, created)
	assert.Equal(t, []string{"old.go"}, deleted)
}

func TestInitRepoAndCreateHeadAndTag(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	ctx := newTestCtx(t, dir)

	require.NoError(t, initRepo(ctx, rec(action.KindInitRepo, func(rr *action.Record) { rr.Path = dir })))

	require.NoError(t, setAuthor(ctx, rec(action.KindSetAuthor, func(rr *action.Record) {
		rr.AuthorName, rr.AuthorEmail = "A U Thor", "a@example.org"
		rr.AuthoredTS, rr.AuthorTZOff = 1337892984, -10800
	})))
	require.NoError(t, setCommitter(ctx, rec(action.KindSetCommitter, func(rr *action.Record) {
		rr.CommitterName, rr.CommitterEmail = "A U Thor", "a@example.org"
		rr.CommittedTS, rr.CommitterTZOff = 1337892984, -10800
	})))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))
	if _, err := git(ctx, dir, "add", "f"); err != nil {
		t.Fatalf("git add: %v", err)
	}
	if _, err := git(ctx, dir, "commit", "-m", "first"); err != nil {
		t.Fatalf("git commit: %v", err)
	}

	require.NoError(t, createHead(ctx, rec(action.KindCreateHead, func(rr *action.Record) { rr.Path, rr.Name = dir, "topic" })))
	require.NoError(t, createTag(ctx, rec(action.KindCreateTag, func(rr *action.Record) { rr.Path, rr.Name = dir, "v1" })))

	branches, err := gitLine(ctx, dir, "branch", "--list", "topic")
	require.NoError(t, err)
	assert.Contains(t, branches, "topic")

	tags, err := gitLine(ctx, dir, "tag", "--list", "v1")
	require.NoError(t, err)
	assert.Contains(t, tags, "v1")

	require.NoError(t, deleteTag(ctx, rec(action.KindDeleteTag, func(rr *action.Record) { rr.Path, rr.Name = dir, "v1" })))
	tags, err = gitLine(ctx, dir, "tag", "--list", "v1")
	require.NoError(t, err)
	assert.Empty(t, tags)
}
