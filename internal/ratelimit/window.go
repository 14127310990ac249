package ratelimit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Window is the ordered list of admitted request timestamps for one client
// and class, oldest first.
type Window []time.Time

// Prune returns the window without entries older than d relative to now.
// Entries are chronological, so pruning trims a prefix.
func (w Window) Prune(now time.Time, d time.Duration) Window {
	cutoff := now.Add(-d)

	i := 0
	for i < len(w) && w[i].Before(cutoff) {
		i++
	}

	if i == 0 {
		return w
	}

	pruned := make(Window, len(w)-i)
	copy(pruned, w[i:])

	return pruned
}

// Clone returns a copy that does not share backing storage with w.
func (w Window) Clone() Window {
	if w == nil {
		return nil
	}

	c := make(Window, len(w))
	copy(c, w)

	return c
}

// EncodeWindow serializes a window as a JSON array of Unix nanoseconds.
func EncodeWindow(w Window) ([]byte, error) {
	return json.Marshal(w.UnixNanos())
}

// DecodeWindow parses the output of EncodeWindow.
func DecodeWindow(data []byte) (Window, error) {
	var nanos []int64
	if err := json.Unmarshal(data, &nanos); err != nil {
		return nil, fmt.Errorf("decode window: %w", err)
	}

	return WindowFromUnixNanos(nanos), nil
}

// UnixNanos returns the window timestamps as Unix nanoseconds.
func (w Window) UnixNanos() []int64 {
	nanos := make([]int64, len(w))
	for i, t := range w {
		nanos[i] = t.UnixNano()
	}

	return nanos
}

// WindowFromUnixNanos builds a window from Unix nanosecond timestamps.
func WindowFromUnixNanos(nanos []int64) Window {
	w := make(Window, len(nanos))
	for i, n := range nanos {
		w[i] = time.Unix(0, n)
	}

	return w
}
