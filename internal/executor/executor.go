// Package executor replays a planned action queue against a gitctx.Context,
// one action at a time, splicing in whatever a handler enqueues
// mid-action, and persisting progress after every step so an interrupted
// or failed run can resume exactly where it left off.
package executor

import (
	"fmt"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/internal/handlers"
)

// Dispatcher runs one action; production code passes handlers.Dispatch,
// tests substitute a stub.
type Dispatcher func(ctx *gitctx.Context, r *action.Record) error

// Persister is called after every action (success or failure) with
// ctx.CurrentAction already updated: advanced past a successful action,
// or left at a failed action's own index. The caller can then snapshot
// and write state (internal/state) between steps.
type Persister func(ctx *gitctx.Context) error

// Progress is notified before each action runs, for a driving UI (e.g.
// internal/progress's bar) to advance; may be nil.
type Progress func(ctx *gitctx.Context, i int, total int, r *action.Record)

// Options configures a Run.
type Options struct {
	// Limit bounds how many actions this call may perform; zero means
	// unlimited (run to completion or interruption).
	Limit      int
	Dispatch   Dispatcher
	Persist    Persister
	OnProgress Progress
}

// Run executes ctx.Actions[ctx.CurrentAction:], honoring Options.Limit,
// until the queue (or the limit) is exhausted, a handler requests
// interruption, or a handler returns an error. It returns nil on a clean
// stop (queue exhausted or cooperative interrupt) and the handler's
// error otherwise; ctx.CurrentAction always reflects exactly how far
// execution got, so a failed Run can be resumed verbatim by calling Run
// again after the user has fixed whatever broke.
func Run(ctx *gitctx.Context, opts Options) error {
	dispatch := opts.Dispatch
	if dispatch == nil {
		dispatch = handlers.Dispatch
	}

	if ctx.CurrentAction < 0 {
		ctx.CurrentAction = 0
	}
	if ctx.CurrentAction >= len(ctx.Actions) {
		return nil
	}

	ctx.ClearInterrupted()

	end := len(ctx.Actions)
	if opts.Limit > 0 && ctx.CurrentAction+opts.Limit < end {
		end = ctx.CurrentAction + opts.Limit
	}

	i := ctx.CurrentAction
	for i < end && !ctx.IsInterrupted() {
		r := ctx.Actions[i]

		if opts.OnProgress != nil {
			opts.OnProgress(ctx, i, len(ctx.Actions), r)
		}

		r.Status = action.StatusRunning
		ctx.BeginAction()
		err := dispatch(ctx, r)
		extra := ctx.EndAction()

		if err != nil {
			r.Status = action.StatusFailed
			ctx.CurrentAction = i
			if persistErr := persist(ctx, opts.Persist); persistErr != nil {
				return fmt.Errorf("executor: action %d (%s) failed: %v; also failed to persist state: %w", i, r.Kind, err, persistErr)
			}
			return fmt.Errorf("executor: action %d (%s): %w", i, r.Kind, err)
		}
		r.Status = action.StatusDone

		if len(extra) > 0 {
			tail := append([]*action.Record(nil), ctx.Actions[i+1:]...)
			ctx.Actions = append(ctx.Actions[:i+1], append(extra, tail...)...)
			if opts.Limit > 0 {
				end += len(extra)
			} else {
				end = len(ctx.Actions)
			}
		}

		i++
		ctx.CurrentAction = i
		if err := persist(ctx, opts.Persist); err != nil {
			return fmt.Errorf("executor: persisting state after action %d: %w", i-1, err)
		}
	}

	return nil
}

func persist(ctx *gitctx.Context, p Persister) error {
	if p == nil {
		return nil
	}
	return p(ctx)
}
