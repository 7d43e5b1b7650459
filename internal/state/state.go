// Package state persists and restores a gic run: the action queue,
// where execution left off, and the subset of the commit graph already
// cloned, as a single TOML file written atomically between actions.
package state

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/modules/sourcegit"
)

// DefaultFileName is the state file gic writes in the launch directory.
const DefaultFileName = ".gic-state.toml"

// File is the on-disk shape of a persisted run.
type File struct {
	CurrentAction int               `toml:"current_action"`
	Interrupted   bool              `toml:"interrupted"`
	Actions       []*action.Record  `toml:"actions"`
	Origin2Cloned map[string]string `toml:"origin2cloned"`
}

// Snapshot captures ctx's current queue and progress into a File.
func Snapshot(ctx *gitctx.Context) *File {
	f := &File{
		CurrentAction: ctx.CurrentAction,
		Interrupted:   ctx.IsInterrupted(),
		Actions:       ctx.Actions,
		Origin2Cloned: make(map[string]string),
	}
	for sha, cloned := range ctx.Origin2Cloned() {
		f.Origin2Cloned[sha.String()] = cloned.String()
	}
	return f
}

// Save writes f to path atomically: encode to path+".tmp", then rename
// over path, so a crash mid-write never corrupts the previous state.
func Save(path string, f *File) error {
	tmp := path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	enc := toml.NewEncoder(fh)
	encErr := enc.Encode(f)
	closeErr := fh.Close()
	if encErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: encode: %w", encErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: %w", closeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}

// Load reads and decodes a state file. A missing file is not an error:
// it just means there is nothing to resume (the caller should plan
// fresh instead).
func Load(path string) (*File, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("state: %w", err)
	}
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, false, fmt.Errorf("state: decode %s: %w", path, err)
	}
	return &f, true, nil
}

// Restore loads path (if present) into ctx: the action queue, the
// current_action cursor, the interrupted flag, and every already-cloned
// SHA. Returns false if there was nothing to restore.
func Restore(path string, ctx *gitctx.Context) (bool, error) {
	f, ok, err := Load(path)
	if err != nil || !ok {
		return false, err
	}
	// Decode everything before mutating ctx, so a corrupt file leaves
	// the context untouched and the caller can fall back to a fresh plan.
	snapshot := make(map[sourcegit.SHA]sourcegit.SHA, len(f.Origin2Cloned))
	for origStr, clonedStr := range f.Origin2Cloned {
		orig, err := sourcegit.NewSHAEx(origStr)
		if err != nil {
			return false, fmt.Errorf("state: origin2cloned key %q: %w", origStr, err)
		}
		cloned, err := sourcegit.NewSHAEx(clonedStr)
		if err != nil {
			return false, fmt.Errorf("state: origin2cloned value %q: %w", clonedStr, err)
		}
		snapshot[orig] = cloned
	}
	ctx.Actions = f.Actions
	ctx.CurrentAction = f.CurrentAction
	if f.Interrupted {
		ctx.Interrupt()
	}
	ctx.RestoreCloned(snapshot)
	return true, nil
}

// Delete removes path, tolerating its absence; the file is deleted
// once a run finishes cleanly.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}
