package live

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultHistory is the number of values kept for the sparkline.
const DefaultHistory = 50

// Entry is one received value.
type Entry struct {
	Value string    `json:"value"`
	Time  time.Time `json:"time"`
}

// Number parses the value. ok is false for non-numeric values.
func (e Entry) Number() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// History is a bounded ring of entries. The oldest entry is dropped when it
// is full. It is not safe for concurrent use.
type History struct {
	buf   []Entry
	start int
	n     int
}

// NewHistory returns a ring holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &History{buf: make([]Entry, capacity)}
}

func (h *History) Cap() int { return len(h.buf) }
func (h *History) Len() int { return h.n }

// Add appends e, evicting the oldest entry when full.
func (h *History) Add(e Entry) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Entries returns the entries oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Stats summarises a history. Min, Max and Mean only consider numeric
// values; First and Last are taken from all entries.
type Stats struct {
	First, Last Entry
	Min, Max    Entry
	MinValue    float64
	MaxValue    float64
	Mean        float64
	Numeric     int
}

// ComputeStats returns the summary of entries. ok is false when entries is
// empty.
func ComputeStats(entries []Entry) (Stats, bool) {
	if len(entries) == 0 {
		return Stats{}, false
	}
	st := Stats{First: entries[0], Last: entries[len(entries)-1]}
	var sum float64
	for _, e := range entries {
		v, ok := e.Number()
		if !ok {
			continue
		}
		if st.Numeric == 0 || v < st.MinValue {
			st.MinValue, st.Min = v, e
		}
		if st.Numeric == 0 || v > st.MaxValue {
			st.MaxValue, st.Max = v, e
		}
		sum += v
		st.Numeric++
	}
	if st.Numeric > 0 {
		st.Mean = sum / float64(st.Numeric)
	}
	return st, true
}

// Stats summarises the current entries.
func (h *History) Stats() (Stats, bool) { return ComputeStats(h.Entries()) }
