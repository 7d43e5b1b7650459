// Package cache loads the patch-cache directory used by conflict
// recovery: a flat directory of `git format-patch` files, each named
// starting with the 40-hex SHA1 of the commit it reproduces.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/laerreal/gic/modules/sourcegit"
)

// shaPrefix matches a 40-hex-digit commit SHA at the start of a patch
// file's name.
var shaPrefix = regexp.MustCompile(`^[A-Fa-f0-9]{40}`)

// Load scans dir for patch files and returns a SHA-to-path index. A
// second file matching the same SHA is logged as a warning and
// discarded: the first file wins, so a cache directory built by
// concatenating several runs' output stays deterministic regardless
// of directory-listing order.
func Load(dir string, log *logrus.Logger) (map[sourcegit.SHA]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: reading %s: %w", dir, err)
	}

	index := make(map[sourcegit.SHA]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		m := shaPrefix.FindString(name)
		if m == "" {
			continue
		}
		sha, err := sourcegit.NewSHAEx(m)
		if err != nil {
			continue
		}
		full := filepath.Join(dir, name)
		if prior, exists := index[sha]; exists {
			if log != nil {
				log.Warnf("cache: %s already cached from %s, ignoring %s", sha, prior, full)
			}
			continue
		}
		index[sha] = full
	}
	return index, nil
}
