// Package progress renders the action queue's advancement as a terminal
// bar, one tick per completed action.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/laerreal/gic/internal/action"
	"github.com/laerreal/gic/internal/gitctx"
)

// Bar tracks how many of the total actions have completed. A quiet Bar
// (built with NewBar(..., true) or NewQuietBar) does nothing.
type Bar struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	done     int64
}

// NewBar starts a bar named description against total actions, writing
// to w (os.Stderr in production; tests pass their own sink). quiet
// suppresses all rendering.
func NewBar(description string, total int, quiet bool, w io.Writer) *Bar {
	if quiet || total <= 0 {
		return &Bar{}
	}
	if w == nil {
		w = os.Stderr
	}
	p := mpb.New(mpb.WithOutput(w), mpb.WithAutoRefresh())
	bar := p.New(int64(total),
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(
			decor.Name(description, decor.WC{W: len(description) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30), "done"),
		),
	)
	return &Bar{progress: p, bar: bar}
}

// NewQuietBar is a readability alias for NewBar(description, total, true, nil).
func NewQuietBar(description string, total int) *Bar {
	return NewBar(description, total, true, nil)
}

// Add advances the bar by n completed actions.
func (b *Bar) Add(n int) {
	if b.bar == nil {
		return
	}
	b.done += int64(n)
	b.bar.SetCurrent(b.done)
}

// Done finalises rendering; callers must call it exactly once, even on
// a bar built quiet (where it is a no-op).
func (b *Bar) Done() {
	if b.progress == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.SetTotal(b.bar.Current(), true)
	}
	b.progress.Wait()
}

// OnProgress adapts a Bar to executor.Progress: call it before each
// action and it renders the index that just started as "completed so
// far".
func (b *Bar) OnProgress(ctx *gitctx.Context, i int, total int, r *action.Record) {
	if b.bar == nil || i == 0 {
		return
	}
	b.bar.SetCurrent(int64(i))
}

// Describe renders a one-line "[<current>/<total>] kind" label, current
// being the 1-based position i+1, used by
// callers (e.g. a non-interactive CLI run) that want a plain description
// string instead of wiring a live bar.
func Describe(r *action.Record, i, total int) string {
	return fmt.Sprintf("[%d/%d] %s", i+1, total, r.Kind)
}
