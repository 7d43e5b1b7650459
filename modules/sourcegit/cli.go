package sourcegit

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/laerreal/gic/modules/command"
)

// cliRepo implements Repo by shelling out to the git binary found on
// PATH (or overridden by -g/--git, see cmd/gic). It never touches a
// packfile or ref directly.
//
// commits caches Commit lookups: the graph builder and planner both
// re-resolve the same SHA many times over a walk, and each miss is a
// subprocess launch.
type cliRepo struct {
	gitBin string
	dir    string

	mu      sync.Mutex
	commits map[SHA]*Commit
}

// NewCLIRepo returns a Repo backed by the given git binary, rooted at dir.
func NewCLIRepo(gitBin, dir string) Repo {
	if gitBin == "" {
		gitBin = "git"
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &cliRepo{gitBin: gitBin, dir: dir, commits: make(map[SHA]*Commit)}
}

func (r *cliRepo) WorkingDir() string { return r.dir }

func (r *cliRepo) run(ctx context.Context, arg ...string) (string, error) {
	cmd := command.New(ctx, r.dir, r.gitBin, arg...)
	out, err := cmd.OneLine()
	if err != nil {
		return "", fmt.Errorf("sourcegit: %s: %w", strings.Join(arg, " "), err)
	}
	return out, nil
}

func (r *cliRepo) output(ctx context.Context, arg ...string) ([]byte, error) {
	cmd := command.New(ctx, r.dir, r.gitBin, arg...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("sourcegit: %s: %w", strings.Join(arg, " "), err)
	}
	return out, nil
}

func (r *cliRepo) GitVersion() (string, error) {
	return r.run(context.Background(), "--version")
}

func (r *cliRepo) Head() (SHA, error) {
	s, err := r.run(context.Background(), "rev-parse", "HEAD")
	if err != nil {
		return ZeroSHA, err
	}
	return NewSHAEx(s)
}

// References lists every head and tag ref, resolved (peeled, for
// annotated tags) to the commit it targets.
func (r *cliRepo) References() ([]Reference, error) {
	out, err := r.output(context.Background(), "for-each-ref",
		"--format=%(refname) %(objectname) %(*objectname)",
		"refs/heads", "refs/tags")
	if err != nil {
		return nil, err
	}
	var refs []Reference
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		target := fields[1]
		if len(fields) >= 3 && fields[2] != "" {
			// annotated tag: peel to the commit it wraps
			target = fields[2]
		}
		sha, err := NewSHAEx(target)
		if err != nil {
			return nil, fmt.Errorf("sourcegit: ref %s: %w", fields[0], err)
		}
		refs = append(refs, Reference{Path: ReferenceName(fields[0]), Target: sha})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

const commitLogFormat = "%H%x00%P%x00%an%x00%ae%x00%at%x00%cn%x00%ce%x00%ct%x00%B"

func (r *cliRepo) Commit(sha SHA) (*Commit, error) {
	r.mu.Lock()
	if c, ok := r.commits[sha]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	c, err := r.loadCommit(sha)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.commits[sha] = c
	r.mu.Unlock()
	return c, nil
}

func (r *cliRepo) loadCommit(sha SHA) (*Commit, error) {
	out, err := r.output(context.Background(), "log", "-1", "--format="+commitLogFormat, sha.String())
	if err != nil {
		return nil, err
	}
	fields := strings.SplitN(string(out), "\x00", 9)
	if len(fields) != 9 {
		return nil, fmt.Errorf("sourcegit: malformed commit record for %s", sha)
	}
	parents, err := splitSHAs(fields[1])
	if err != nil {
		return nil, err
	}
	authorTS, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sourcegit: commit %s: %w", sha, err)
	}
	committerTS, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sourcegit: commit %s: %w", sha, err)
	}
	offset, err := r.tzOffset(sha, "author")
	if err != nil {
		return nil, err
	}
	coffset, err := r.tzOffset(sha, "committer")
	if err != nil {
		return nil, err
	}
	return &Commit{
		SHA:     sha,
		Parents: parents,
		Author: Signature{
			Name:            fields[2],
			Email:           fields[3],
			When:            time.Unix(authorTS, 0).UTC(),
			TZOffsetSeconds: offset,
		},
		Committer: Signature{
			Name:            fields[5],
			Email:           fields[6],
			When:            time.Unix(committerTS, 0).UTC(),
			TZOffsetSeconds: coffset,
		},
		Message: strings.TrimRight(fields[8], "\n"),
	}, nil
}

// tzOffset recovers the signed, "conventional" (east-positive) offset git
// recorded for a commit, in seconds. git log's %ad/%cd with --date=raw
// prints "<unix> <+HHMM|-HHMM>"; the wire sign there is the conventional
// one, unlike GIT_AUTHOR_DATE's own inverted form (modules/identity).
func (r *cliRepo) tzOffset(sha SHA, who string) (int, error) {
	format := "%ad"
	if who == "committer" {
		format = "%cd"
	}
	out, err := r.run(context.Background(), "log", "-1", "--date=raw", "--format="+format, sha.String())
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(out)
	if len(parts) != 2 {
		return 0, fmt.Errorf("sourcegit: malformed raw date %q for %s", out, sha)
	}
	zone := parts[1]
	sign := 1
	if strings.HasPrefix(zone, "-") {
		sign = -1
	}
	zone = strings.TrimPrefix(strings.TrimPrefix(zone, "-"), "+")
	if len(zone) != 4 {
		return 0, fmt.Errorf("sourcegit: malformed zone %q for %s", parts[1], sha)
	}
	hh, err := strconv.Atoi(zone[:2])
	if err != nil {
		return 0, err
	}
	mm, err := strconv.Atoi(zone[2:])
	if err != nil {
		return 0, err
	}
	return sign * (hh*3600 + mm*60), nil
}

// Diff runs "git diff -M --name-status" between a and b and decodes each
// record into a DiffEntry, enough for the subtree-merge heuristic.
func (r *cliRepo) Diff(a, b SHA) ([]DiffEntry, error) {
	out, err := r.output(context.Background(), "diff", "-M", "--name-status", a.String(), b.String())
	if err != nil {
		return nil, err
	}
	var entries []DiffEntry
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		status := fields[0]
		switch {
		case strings.HasPrefix(status, "R"):
			if len(fields) < 3 {
				continue
			}
			entries = append(entries, DiffEntry{
				Renamed:    true,
				RenameFrom: fields[1],
				RenameTo:   fields[2],
				BPath:      fields[2],
			})
		case status == "A":
			entries = append(entries, DiffEntry{NewFile: true, BPath: fields[1]})
		default:
			entries = append(entries, DiffEntry{BPath: fields[1]})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Tree lists every blob path under sha's tree via "git ls-tree -r --name-only".
func (r *cliRepo) Tree(sha SHA) ([]string, error) {
	out, err := r.output(context.Background(), "ls-tree", "-r", "--name-only", sha.String())
	if err != nil {
		return nil, err
	}
	var paths []string
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

func splitSHAs(s string) ([]SHA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Fields(s)
	out := make([]SHA, 0, len(fields))
	for _, f := range fields {
		sha, err := NewSHAEx(f)
		if err != nil {
			return nil, err
		}
		out = append(out, sha)
	}
	return out, nil
}
