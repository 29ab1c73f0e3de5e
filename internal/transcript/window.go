package transcript

import "strings"

// RetentionSeconds bounds the rolling window: final fragments older than
// this, measured from the newest fragment's time_end, are pruned.
const RetentionSeconds = 120.0

// Window is the per-session rolling sequence of final fragments plus the
// single most recent partial. Not safe for concurrent use; the owning
// session serializes access.
type Window struct {
	finals     []Fragment
	partial    *Fragment
	maxSeenEnd float64
}

func NewWindow() *Window {
	return &Window{}
}

// AppendFinal adds a final fragment and prunes entries that fell out of
// the retention horizon.
func (w *Window) AppendFinal(f Fragment) {
	w.finals = append(w.finals, f)
	if f.TimeEnd > w.maxSeenEnd {
		w.maxSeenEnd = f.TimeEnd
	}
	w.Prune()
}

// SetPartial replaces the held partial fragment. Partials never enter the
// retained window proper.
func (w *Window) SetPartial(f Fragment) {
	frag := f
	w.partial = &frag
}

// Partial returns a copy of the held partial fragment, if any.
func (w *Window) Partial() (Fragment, bool) {
	if w.partial == nil {
		return Fragment{}, false
	}
	return *w.partial, true
}

// Anchor is the audio-time high-water-mark: the max of the newest final
// time_end and the held partial's time_end.
func (w *Window) Anchor() float64 {
	anchor := w.maxSeenEnd
	if w.partial != nil && w.partial.TimeEnd > anchor {
		anchor = w.partial.TimeEnd
	}
	return anchor
}

// Prune drops finals with time_end < newest time_end - RetentionSeconds.
func (w *Window) Prune() {
	cutoff := w.maxSeenEnd - RetentionSeconds
	i := 0
	for i < len(w.finals) && w.finals[i].TimeEnd < cutoff {
		i++
	}
	if i > 0 {
		w.finals = append(w.finals[:0], w.finals[i:]...)
	}
}

// Select returns the finals with time_end >= anchor - windowSec, in
// order, optionally followed by the held partial when it is newer than
// the last selected final and itself inside the cutoff.
func (w *Window) Select(windowSec float64, includePartial bool) []Fragment {
	cutoff := w.Anchor() - windowSec

	var out []Fragment
	for _, f := range w.finals {
		if f.TimeEnd >= cutoff {
			out = append(out, f)
		}
	}

	if includePartial && w.partial != nil && w.partial.TimeEnd >= cutoff {
		if len(out) == 0 || w.partial.TimeEnd > out[len(out)-1].TimeEnd {
			out = append(out, *w.partial)
		}
	}
	return out
}

// Len returns the number of retained final fragments.
func (w *Window) Len() int {
	return len(w.finals)
}

// JoinText concatenates fragment texts with single spaces, skipping
// fragments that are blank after trimming.
func JoinText(frags []Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

// Span is the time covered by a selected window: last time_end minus
// first time_start. Zero for empty selections.
func Span(frags []Fragment) float64 {
	if len(frags) == 0 {
		return 0
	}
	return frags[len(frags)-1].TimeEnd - frags[0].TimeStart
}
