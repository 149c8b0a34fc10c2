package persistence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LockMarker is the value of the "locked" column of the queue table.
//
// It is either Unlocked, or "<owner>:<epoch-millis>", identifying the worker
// that claimed the row and when it did so.
type LockMarker string

// Unlocked is the lock marker of a row that has not been claimed.
const Unlocked LockMarker = "0"

// NewLockMarker returns the lock marker used by owner to claim rows at time t.
func NewLockMarker(owner string, t time.Time) LockMarker {
	if owner == "" {
		panic("owner must not be empty")
	}

	return LockMarker(
		fmt.Sprintf("%s:%d", owner, t.UnixMilli()),
	)
}

// IsLocked returns true if the marker represents a claimed row.
func (m LockMarker) IsLocked() bool {
	return m != Unlocked
}

// Parse returns the owner and claim time encoded in the marker.
//
// It returns an error if the marker is Unlocked or malformed.
func (m LockMarker) Parse() (owner string, claimedAt time.Time, err error) {
	if !m.IsLocked() {
		return "", time.Time{}, fmt.Errorf("lock marker %q is not locked", m)
	}

	s := string(m)
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return "", time.Time{}, fmt.Errorf("lock marker %q has no owner", m)
	}

	ms, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("lock marker %q has an invalid timestamp: %w", m, err)
	}

	return s[:i], time.UnixMilli(ms), nil
}
