// Package obslog renders a running gic invocation's subprocess output as
// CSV rows: one row per logical line, "timestamp;kind;cell;", kind one
// of "stdout"/"stderr", cells containing a semicolon double-quoted, and
// \r/\n/\r\n line endings all normalised to a single row boundary.
package obslog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Kind names which stream a logged line came from.
type Kind string

const (
	KindStdout Kind = "stdout"
	KindStderr Kind = "stderr"
)

// Logger serialises CSV rows to an underlying writer. now is the
// timestamp source: time.Now as set by New, or the clock a test installs
// with WithClock for deterministic timestamps.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// New wraps w as a CSV-row logger.
func New(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// WithClock overrides the time source, for deterministic tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Line writes one already-split logical line as a CSV row.
func (l *Logger) Line(kind Kind, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UTC().Format(time.RFC3339Nano)
	_, err := fmt.Fprintf(l.w, "%s;%s;%s;\n", quote(ts), quote(string(kind)), quote(text))
	return err
}

// quote double-quotes a CSV cell when it contains the field separator,
// a quote character, or a line break, doubling any embedded quotes.
func quote(cell string) string {
	if !strings.ContainsAny(cell, ";\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// Writer returns an io.Writer that splits whatever is written to it into
// logical lines — treating \r, \n, and \r\n all as line breaks — and
// emits one CSV row per line tagged with kind. Partial lines (no
// trailing break yet) are buffered until either a break arrives or
// Close is called.
func (l *Logger) Writer(kind Kind) io.WriteCloser {
	return &lineWriter{log: l, kind: kind}
}

type lineWriter struct {
	log  *Logger
	kind Kind
	buf  strings.Builder
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\n':
			if err := w.flush(); err != nil {
				return 0, err
			}
		case '\r':
			// swallow; a following \n (if any) is absorbed by the \n
			// case above without emitting a blank second row, and a
			// bare \r alone still ends the logical line here.
			if err := w.flush(); err != nil {
				return 0, err
			}
		default:
			w.buf.WriteByte(b)
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	text := w.buf.String()
	w.buf.Reset()
	return w.log.Line(w.kind, text)
}

func (w *lineWriter) Close() error {
	return w.flush()
}

// Scan is a convenience for tests and for draining a *bufio.Scanner-fed
// stream wholesale into Logger rows.
func Scan(l *Logger, kind Kind, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := l.Line(kind, sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}
