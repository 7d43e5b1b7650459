// Package identity threads GIT_{AUTHOR,COMMITTER}_{NAME,EMAIL,DATE}
// overrides through git invocations rather than mutating process-wide
// environment, covering exactly the subset the action handlers
// (SetAuthor/SetCommitter/ResetAuthor/ResetCommitter) need.
package identity

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Broker is a process-local, copy-on-write view of an environment block.
// Overlaying GIT_AUTHOR_*/GIT_COMMITTER_* onto it and reading Environ()
// back out gives every subprocess invocation exactly the identity the
// current action wants, without ever calling os.Setenv.
type Broker interface {
	LookupEnv(key string) (string, bool)
	Setenv(key, value string) error
	Unsetenv(key string) error
	Environ() []string
}

type broker struct {
	mu   sync.RWMutex
	keys map[string]int
	env  []string
}

// NewBroker seeds a broker from base (typically os.Environ()).
func NewBroker(base []string) Broker {
	b := &broker{
		keys: make(map[string]int, len(base)),
		env:  slices.Clone(base),
	}
	for i, e := range b.env {
		if k, _, ok := strings.Cut(e, "="); ok {
			b.keys[k] = i
		}
	}
	return b
}

func (b *broker) LookupEnv(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.keys[key]
	if !ok {
		return "", false
	}
	if _, v, ok := strings.Cut(b.env[i], "="); ok {
		return v, true
	}
	return "", false
}

func (b *broker) Setenv(key, value string) error {
	if len(key) == 0 || strings.ContainsAny(key, "=\x00") {
		return fmt.Errorf("identity: invalid key %q", key)
	}
	kv := key + "=" + value
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.keys[key]; ok {
		b.env[i] = kv
		return nil
	}
	b.keys[key] = len(b.env)
	b.env = append(b.env, kv)
	return nil
}

// Unsetenv tolerates removing a key that was never set: after an
// interrupted run, a Reset action may fire with no matching Set.
func (b *broker) Unsetenv(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.keys[key]; ok {
		b.env[i] = ""
		delete(b.keys, key)
	}
	return nil
}

func (b *broker) Environ() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.env))
	for _, e := range b.env {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Identity is one of a commit's author or committer, carried with the
// unix timestamp and the stored timezone offset (see FormatDate).
type Identity struct {
	Name            string
	Email           string
	UnixTS          int64
	TZOffsetSeconds int
}

// FormatDate renders the wire format "YYYY-MM-DD
// HH:MM:SS±HHMM", where the printed sign is the negation of
// TZOffsetSeconds' sign — this is git's own quirk for GIT_AUTHOR_DATE /
// GIT_COMMITTER_DATE and is reproduced faithfully rather than
// "corrected".
func FormatDate(unixTS int64, tzOffsetSeconds int) string {
	conventional := -tzOffsetSeconds
	t := time.Unix(unixTS+int64(conventional), 0).UTC()
	sign := byte('+')
	mag := conventional
	if mag < 0 {
		sign = '-'
		mag = -mag
	}
	hh, mm := mag/3600, (mag%3600)/60
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d%c%02d%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), sign, hh, mm)
}

// ParseDate inverts FormatDate, yielding the stored (sign-inverted)
// timezone offset described above.
func ParseDate(s string) (unixTS int64, tzOffsetSeconds int, err error) {
	var y, mo, d, h, mi, se int
	var sign byte
	var hh, mm int
	n, err := fmt.Sscanf(s, "%04d-%02d-%02d %02d:%02d:%02d%c%02d%02d",
		&y, &mo, &d, &h, &mi, &se, &sign, &hh, &mm)
	if err != nil || n != 9 {
		return 0, 0, fmt.Errorf("identity: malformed date %q", s)
	}
	conventional := hh*3600 + mm*60
	if sign == '-' {
		conventional = -conventional
	}
	wall := time.Date(y, time.Month(mo), d, h, mi, se, 0, time.UTC)
	return wall.Unix() - int64(conventional), -conventional, nil
}

// Env renders an Identity as the three GIT_{AUTHOR,COMMITTER}_* values for
// the given prefix ("AUTHOR" or "COMMITTER").
func Env(prefix string, id Identity) []string {
	return []string{
		"GIT_" + prefix + "_NAME=" + id.Name,
		"GIT_" + prefix + "_EMAIL=" + id.Email,
		"GIT_" + prefix + "_DATE=" + FormatDate(id.UnixTS, id.TZOffsetSeconds),
	}
}

// FromEnv reconstructs an Identity from a broker's current overlay, used
// by the conflict-recovery subsystem to rebuild the original committer
// after a user interruption.
func FromEnv(b Broker, prefix string) (Identity, bool) {
	name, ok1 := b.LookupEnv("GIT_" + prefix + "_NAME")
	email, ok2 := b.LookupEnv("GIT_" + prefix + "_EMAIL")
	date, ok3 := b.LookupEnv("GIT_" + prefix + "_DATE")
	if !ok1 || !ok2 || !ok3 {
		return Identity{}, false
	}
	ts, off, err := ParseDate(date)
	if err != nil {
		return Identity{}, false
	}
	return Identity{Name: name, Email: email, UnixTS: ts, TZOffsetSeconds: off}, true
}
