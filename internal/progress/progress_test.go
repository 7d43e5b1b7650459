package progress

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/laerreal/gic/internal/action"
)

func TestQuietBarNeverPanics(t *testing.T) {
	b := NewQuietBar("cloning", 10)
	assert.NotPanics(t, func() {
		b.Add(3)
		b.OnProgress(nil, 1, 10, action.New(action.KindInitRepo))
		b.Done()
	})
}

func TestZeroTotalBarIsQuiet(t *testing.T) {
	b := NewBar("cloning", 0, false, io.Discard)
	assert.NotPanics(t, func() {
		b.Add(1)
		b.Done()
	})
}

func TestBarRendersWithoutPanicking(t *testing.T) {
	b := NewBar("cloning", 5, false, io.Discard)
	assert.NotPanics(t, func() {
		for i := 1; i <= 5; i++ {
			b.Add(1)
		}
		b.Done()
	})
}

func TestDescribeFormatsOneLineLabel(t *testing.T) {
	r := action.New(action.KindCherryPick)
	got := Describe(r, 2, 10)
	assert.Equal(t, "[3/10] cherry_pick", got)
}
