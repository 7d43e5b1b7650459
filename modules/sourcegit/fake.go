package sourcegit

// FakeRepo is an in-memory Repo used by tests across this module: the
// graph builder, planner and executor all need a Repo without shelling
// out to a real git binary.
type FakeRepo struct {
	Dir     string
	Refs    []Reference
	Commits map[SHA]*Commit
	Version string
	HeadSHA SHA

	// Diffs and Trees are keyed the same way the real CLI would be
	// invoked, letting tests script exactly what the subtree-detection
	// heuristic sees without a real git checkout.
	Diffs map[[2]SHA][]DiffEntry
	Trees map[SHA][]string
}

// NewFakeRepo returns an empty FakeRepo rooted at dir.
func NewFakeRepo(dir string) *FakeRepo {
	return &FakeRepo{Dir: dir, Commits: make(map[SHA]*Commit), Version: "git version 2.43.0"}
}

// AddCommit registers a commit and returns it, for fluent test setup.
func (f *FakeRepo) AddCommit(c *Commit) *Commit {
	f.Commits[c.SHA] = c
	return c
}

// AddRef registers a ref pointing at target.
func (f *FakeRepo) AddRef(name ReferenceName, target SHA) {
	f.Refs = append(f.Refs, Reference{Path: name, Target: target})
}

func (f *FakeRepo) WorkingDir() string { return f.Dir }

func (f *FakeRepo) References() ([]Reference, error) {
	out := make([]Reference, len(f.Refs))
	copy(out, f.Refs)
	return out, nil
}

func (f *FakeRepo) Commit(sha SHA) (*Commit, error) {
	c, ok := f.Commits[sha]
	if !ok {
		return nil, &NotFoundError{SHA: sha}
	}
	return c, nil
}

func (f *FakeRepo) Head() (SHA, error) {
	if f.HeadSHA.IsZero() {
		return ZeroSHA, &NotFoundError{SHA: f.HeadSHA}
	}
	return f.HeadSHA, nil
}

func (f *FakeRepo) GitVersion() (string, error) {
	return f.Version, nil
}

func (f *FakeRepo) Diff(a, b SHA) ([]DiffEntry, error) {
	return f.Diffs[[2]SHA{a, b}], nil
}

// SetDiff scripts the Diff response for a specific (a, b) pair.
func (f *FakeRepo) SetDiff(a, b SHA, entries []DiffEntry) {
	if f.Diffs == nil {
		f.Diffs = make(map[[2]SHA][]DiffEntry)
	}
	f.Diffs[[2]SHA{a, b}] = entries
}

func (f *FakeRepo) Tree(sha SHA) ([]string, error) {
	return f.Trees[sha], nil
}

// SetTree scripts the Tree response for sha.
func (f *FakeRepo) SetTree(sha SHA, paths []string) {
	if f.Trees == nil {
		f.Trees = make(map[SHA][]string)
	}
	f.Trees[sha] = paths
}

// NotFoundError reports a SHA this Repo has no record of.
type NotFoundError struct {
	SHA SHA
}

func (e *NotFoundError) Error() string {
	return "sourcegit: commit not found: " + e.SHA.String()
}

// TestSHA deterministically derives a SHA from a small integer, for
// building test fixtures without hand-writing 40 hex digits per commit.
func TestSHA(n int) SHA {
	var h SHA
	h[len(h)-1] = byte(n)
	h[len(h)-2] = byte(n >> 8)
	return h
}
