// Package action defines the closed, tagged set of operations the planner
// emits and the executor replays. Every Action carries only plain data —
// paths, names, SHAs, messages — and refers to commits by SHA rather than
// by graph pointer, so a queue of them is plain old data and can be
// serialised between runs.
package action

import (
	"github.com/laerreal/gic/modules/identity"
	"github.com/laerreal/gic/modules/sourcegit"
)

// Kind names one of the closed set of action variants. New variants are
// added here and nowhere else; Record.Kind is always one of these.
type Kind string

const (
	KindRemoveDirectory       Kind = "remove_directory"
	KindProvideDirectory      Kind = "provide_directory"
	KindRemoveFile            Kind = "remove_file"
	KindInitRepo              Kind = "init_repo"
	KindAddRemote             Kind = "add_remote"
	KindRemoveRemote          Kind = "remove_remote"
	KindFetchRemote           Kind = "fetch_remote"
	KindCheckoutCloned        Kind = "checkout_cloned"
	KindCheckoutOrphan        Kind = "checkout_orphan"
	KindSetAuthor             Kind = "set_author"
	KindResetAuthor           Kind = "reset_author"
	KindSetCommitter          Kind = "set_committer"
	KindResetCommitter        Kind = "reset_committer"
	KindMergeCloned           Kind = "merge_cloned"
	KindSubtreeMerge          Kind = "subtree_merge"
	KindCherryPick            Kind = "cherry_pick"
	KindCreateHead            Kind = "create_head"
	KindDeleteHead            Kind = "delete_head"
	KindCreateTag             Kind = "create_tag"
	KindDeleteTag             Kind = "delete_tag"
	KindCollectGarbage        Kind = "collect_garbage"
	KindApplyPatchFile        Kind = "apply_patch_file"
	KindHead2PatchFile        Kind = "head2_patch_file"
	KindInterrupt             Kind = "interrupt"
	KindApplyCacheOrInterrupt Kind = "apply_cache_or_interrupt"
	KindApplyCache            Kind = "apply_cache"
	KindContinueCommitting    Kind = "continue_committing"
)

// Status is where a Record sits in its lifecycle: queued -> running ->
// done or failed. A Record is kept in the queue after it runs, so it is
// persisted along with the rest.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Record is one queued action: a tag plus its plain-data parameters. All
// fields are exported and tagged for TOML so a queue round-trips through
// internal/state untouched; unused fields for a given Kind are simply
// left at their zero value and omitted on encode.
type Record struct {
	Kind   Kind   `toml:"kind"`
	Status Status `toml:"status"`

	Path string `toml:"path,omitempty"`
	Name string `toml:"name,omitempty"`

	RemoteName    string `toml:"remote_name,omitempty"`
	RemoteAddress string `toml:"remote_address,omitempty"`
	Tags          bool   `toml:"tags,omitempty"`

	CommitSHA    sourcegit.SHA   `toml:"commit_sha,omitempty"`
	ParentSHA    sourcegit.SHA   `toml:"parent_sha,omitempty"`
	ExtraParents []sourcegit.SHA `toml:"extra_parents,omitempty"`
	Message      string          `toml:"message,omitempty"`
	Prefix       string          `toml:"prefix,omitempty"`

	AuthorName     string `toml:"author_name,omitempty"`
	AuthorEmail    string `toml:"author_email,omitempty"`
	AuthoredTS     int64  `toml:"authored_ts,omitempty"`
	AuthorTZOff    int    `toml:"author_tz_off,omitempty"`
	CommitterName  string `toml:"committer_name,omitempty"`
	CommitterEmail string `toml:"committer_email,omitempty"`
	CommittedTS    int64  `toml:"committed_ts,omitempty"`
	CommitterTZOff int    `toml:"committer_tz_off,omitempty"`

	PatchFile string `toml:"patch_file,omitempty"`
	Reason    string `toml:"reason,omitempty"`
}

// New returns a freshly queued Record of the given kind. Callers set the
// parameter fields relevant to that kind directly.
func New(kind Kind) *Record {
	return &Record{Kind: kind, Status: StatusQueued}
}

// AuthorIdentity reconstructs the author identity.Identity a SetAuthor
// record carries, in the stored (sign-inverted) wire convention
// identity.Env/FormatDate expect.
func (r *Record) AuthorIdentity() identity.Identity {
	return identity.Identity{Name: r.AuthorName, Email: r.AuthorEmail, UnixTS: r.AuthoredTS, TZOffsetSeconds: r.AuthorTZOff}
}

// CommitterIdentity is AuthorIdentity's counterpart for SetCommitter records.
func (r *Record) CommitterIdentity() identity.Identity {
	return identity.Identity{Name: r.CommitterName, Email: r.CommitterEmail, UnixTS: r.CommittedTS, TZOffsetSeconds: r.CommitterTZOff}
}
