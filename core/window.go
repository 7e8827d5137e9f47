package core

import (
	"time"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
)

// window is a fixed capacity ring of block outcomes ordered by increasing height.
type window struct {
	entries []model.WindowEntry
	start   int
	size    int
	signed  int
	missed  int
}

func newWindow(capacity int) *window {
	return &window{entries: make([]model.WindowEntry, capacity)}
}

func (w *window) len() int {
	return w.size
}

func (w *window) last() (model.WindowEntry, bool) {
	if w.size == 0 {
		return model.WindowEntry{}, false
	}
	return w.entries[(w.start+w.size-1)%len(w.entries)], true
}

// push appends an entry, evicting the oldest one once the window is full.
// The caller guarantees the height ordering.
func (w *window) push(height int64, signed bool, ts time.Time) {
	entry := model.WindowEntry{Height: height, Signed: signed, Time: ts}

	if w.size == len(w.entries) {
		w.drop(w.entries[w.start])
		w.entries[w.start] = entry
		w.start = (w.start + 1) % len(w.entries)
	} else {
		w.entries[(w.start+w.size)%len(w.entries)] = entry
		w.size++
	}

	if signed {
		w.signed++
	} else {
		w.missed++
	}
}

func (w *window) drop(e model.WindowEntry) {
	if e.Signed {
		w.signed--
	} else {
		w.missed--
	}
}

func (w *window) slice() []model.WindowEntry {
	out := make([]model.WindowEntry, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.entries[(w.start+i)%len(w.entries)]
	}
	return out
}

// uptimePercent is 0 for an empty window.
func (w *window) uptimePercent() float64 {
	total := w.signed + w.missed
	if total == 0 {
		return 0
	}
	return float64(w.signed) * 100 / float64(total)
}
