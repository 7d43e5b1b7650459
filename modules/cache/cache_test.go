package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laerreal/gic/modules/sourcegit"
)

const sha1 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const sha2 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("patch"), 0o644))
}

func TestLoadIndexesBySHAPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, sha1+"-0001-first-commit.patch")
	writeFile(t, dir, sha2+"-0002-second-commit.patch")
	writeFile(t, dir, "README.md")

	index, err := Load(dir, logrus.New())
	require.NoError(t, err)
	require.Len(t, index, 2)

	sha, err := sourcegit.NewSHAEx(sha1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, sha1+"-0001-first-commit.patch"), index[sha])
}

func TestLoadKeepsFirstOnDuplicateSHA(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, sha1+"-0001-a.patch")
	writeFile(t, dir, sha1+"-0002-b.patch")

	index, err := Load(dir, logrus.New())
	require.NoError(t, err)
	require.Len(t, index, 1)

	sha, err := sourcegit.NewSHAEx(sha1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, sha1+"-0001-a.patch"), index[sha])
}
