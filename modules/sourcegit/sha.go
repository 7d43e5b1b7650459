// Package sourcegit is the thin, read-only adapter this module uses to
// introspect the source repository: commit parents, refs and diffs, all
// shelled out to the git binary rather than read from the object
// database directly.
package sourcegit

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

const (
	HashSize    = 20
	HashHexSize = HashSize * 2
)

// SHA is a git object identifier (SHA-1, 20 bytes).
type SHA [HashSize]byte

// ZeroSHA is the SHA with value zero.
var ZeroSHA SHA

// NewSHA returns a new SHA from a hexadecimal representation. Malformed
// input decodes to as much as hex.Decode could manage, same as
// plumbing.NewHash: validate first with ValidateHex if that matters.
func NewSHA(s string) SHA {
	b, _ := hex.DecodeString(s)
	var h SHA
	copy(h[:], b)
	return h
}

// NewSHAEx validates s before decoding it.
func NewSHAEx(s string) (SHA, error) {
	if !ValidateHex(s) {
		return ZeroSHA, fmt.Errorf("sourcegit: %q is not a valid object name", s)
	}
	return NewSHA(s), nil
}

func ValidateHex(s string) bool {
	if len(s) != HashHexSize {
		return false
	}
	for _, b := range []byte(s) {
		switch {
		case b >= '0' && b <= '9':
		case b >= 'a' && b <= 'f':
		case b >= 'A' && b <= 'F':
		default:
			return false
		}
	}
	return true
}

func (h SHA) IsZero() bool {
	return h == ZeroSHA
}

func (h SHA) String() string {
	return hex.EncodeToString(h[:])
}

func (h SHA) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *SHA) UnmarshalText(text []byte) error {
	s, err := NewSHAEx(string(text))
	if err != nil {
		return err
	}
	*h = s
	return nil
}

// SHASlice attaches sort.Interface to []SHA in increasing byte order.
type SHASlice []SHA

func (p SHASlice) Len() int           { return len(p) }
func (p SHASlice) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }
func (p SHASlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

func SortSHAs(a []SHA) { sort.Sort(SHASlice(a)) }
