// Package gitctx holds the process-wide state threaded through a single
// gic invocation: the commit graph, the action queue (plus its staging
// area for dynamically inserted actions), the patch cache index, and the
// logs. Everything the executor and handlers touch lives here: one
// long-lived value, guarded by a mutex, passed by pointer to every step.
package gitctx

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/graph"
	"github.com/laerreal/gic/internal/obslog"
	"github.com/laerreal/gic/modules/identity"
	"github.com/laerreal/gic/modules/sourcegit"
)

// Context is the shared state of one gic invocation. It exclusively owns
// the commit graph and the action queue; actions refer back to it only
// through the pointer the executor passes at run time.
type Context struct {
	mu sync.Mutex

	Sha2Commit  map[sourcegit.SHA]*graph.CommitDesc
	SrcRepo     sourcegit.Repo
	DstRepoPath string
	GitCommand  string
	GitVersion  string

	CachePath string
	Cache     map[sourcegit.SHA]string
	FromCache bool

	Actions       []*action.Record
	extraActions  []*action.Record
	CurrentAction int
	Interrupted   bool
	doing         bool

	// Broker carries the GIT_{AUTHOR,COMMITTER}_* overlay that
	// SetAuthor/SetCommitter/ResetAuthor/ResetCommitter handlers mutate
	// and every git subprocess invocation reads back, instead of
	// mutating the process environment.
	Broker identity.Broker

	Log *logrus.Logger

	// ObsLog, when set, additionally records every subprocess's stdout
	// and stderr as CSV rows; nil means the git helper skips this and
	// only the logrus log is written to.
	ObsLog *obslog.Logger
}

// New builds an empty Context rooted at the given destination path.
func New(src sourcegit.Repo, dstRepoPath, gitCommand, gitVersion string, log *logrus.Logger) *Context {
	if log == nil {
		log = logrus.New()
	}
	return &Context{
		Sha2Commit:    make(map[sourcegit.SHA]*graph.CommitDesc),
		SrcRepo:       src,
		DstRepoPath:   dstRepoPath,
		GitCommand:    gitCommand,
		GitVersion:    gitVersion,
		Cache:         make(map[sourcegit.SHA]string),
		CurrentAction: -1,
		Broker:        identity.NewBroker(os.Environ()),
		Log:           log,
	}
}

// Enqueue appends rec to the live queue, or — while an action is
// currently running (doing == true) — to the staging area the executor
// splices in right after the running action returns. This is how
// conflict-recovery handlers insert a sub-plan mid-run without the
// planner ever knowing about it.
func (c *Context) Enqueue(rec *action.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doing {
		c.extraActions = append(c.extraActions, rec)
		return
	}
	c.Actions = append(c.Actions, rec)
}

// BeginAction marks the context as mid-action, routing further Enqueue
// calls to the staging area. Callers must pair it with EndAction.
func (c *Context) BeginAction() {
	c.mu.Lock()
	c.doing = true
	c.mu.Unlock()
}

// EndAction clears the doing flag and returns the staged actions in
// enqueue order, for the executor to splice into the live queue.
func (c *Context) EndAction() []*action.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doing = false
	extra := c.extraActions
	c.extraActions = nil
	return extra
}

// Interrupt cooperatively requests that the executor stop after the
// current action completes.
func (c *Context) Interrupt() {
	c.mu.Lock()
	c.Interrupted = true
	c.mu.Unlock()
}

// IsInterrupted reports whether Interrupt has been called.
func (c *Context) IsInterrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Interrupted
}

// ClearInterrupted resets the flag before a new Run.
func (c *Context) ClearInterrupted() {
	c.mu.Lock()
	c.Interrupted = false
	c.mu.Unlock()
}

// Commit looks up a commit descriptor by SHA, or nil if the graph
// builder never saw it.
func (c *Context) Commit(sha sourcegit.SHA) *graph.CommitDesc {
	return c.Sha2Commit[sha]
}

// ClonedSHA resolves the destination-repo SHA for a source commit,
// second return false if the commit has not been cloned yet.
func (c *Context) ClonedSHA(sha sourcegit.SHA) (sourcegit.SHA, bool) {
	desc := c.Sha2Commit[sha]
	if desc == nil || !desc.HasCloned {
		return sourcegit.ZeroSHA, false
	}
	return desc.ClonedSHA, true
}

// SetClonedSHA records the destination SHA produced for a source commit.
// This is the cross-run state the state file persists.
func (c *Context) SetClonedSHA(sha, cloned sourcegit.SHA) {
	desc := c.Sha2Commit[sha]
	if desc == nil {
		return
	}
	desc.ClonedSHA = cloned
	desc.HasCloned = true
}

// Origin2Cloned snapshots every commit that already has a cloned SHA,
// the subset of Sha2Commit the state file persists across a suspend/resume.
func (c *Context) Origin2Cloned() map[sourcegit.SHA]sourcegit.SHA {
	out := make(map[sourcegit.SHA]sourcegit.SHA)
	for sha, desc := range c.Sha2Commit {
		if desc.HasCloned {
			out[sha] = desc.ClonedSHA
		}
	}
	return out
}

// RestoreCloned repopulates ClonedSHA/HasCloned on every descriptor named
// in snapshot, called right after a persisted state file is decoded and
// before the executor resumes.
func (c *Context) RestoreCloned(snapshot map[sourcegit.SHA]sourcegit.SHA) {
	for sha, cloned := range snapshot {
		desc := c.Sha2Commit[sha]
		if desc == nil {
			continue
		}
		desc.ClonedSHA = cloned
		desc.HasCloned = true
	}
}
