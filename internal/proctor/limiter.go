package proctor

import "time"

// WarningLimiter implements the debounce and dedup rules of the
// proctoring pipeline: a warning of kind K is emitted only when the
// verdict has held for at least debounceHold, and no warning of the
// same kind was emitted within the trailing dedupWindow.
type WarningLimiter struct {
	heldSince   map[WarningKind]time.Time
	lastEmitted map[WarningKind]time.Time
}

func NewWarningLimiter() *WarningLimiter {
	return &WarningLimiter{
		heldSince:   make(map[WarningKind]time.Time),
		lastEmitted: make(map[WarningKind]time.Time),
	}
}

// Observe records that kind's verdict holds at time at and reports
// whether a warning should be emitted now.
func (l *WarningLimiter) Observe(kind WarningKind, at time.Time) bool {
	since, held := l.heldSince[kind]
	if !held {
		l.heldSince[kind] = at
		return false
	}
	if at.Sub(since) < debounceHold {
		return false
	}
	if last, ok := l.lastEmitted[kind]; ok && at.Sub(last) < dedupWindow {
		return false
	}
	l.lastEmitted[kind] = at
	return true
}

// ObserveImmediate handles externally-signaled kinds (TabSwitch,
// NoiseBurst, MultipleSpeakers) which skip the hold requirement but
// still join the same dedup stream.
func (l *WarningLimiter) ObserveImmediate(kind WarningKind, at time.Time) bool {
	if last, ok := l.lastEmitted[kind]; ok && at.Sub(last) < dedupWindow {
		return false
	}
	l.lastEmitted[kind] = at
	return true
}

// Clear resets kind's hold tracking; called when the verdict no longer
// holds for a frame so the debounce starts over.
func (l *WarningLimiter) Clear(kind WarningKind) {
	delete(l.heldSince, kind)
}

// ClearAllExcept resets hold tracking for every vision kind not in
// keep. External kinds are never hold-tracked so they are unaffected.
func (l *WarningLimiter) ClearAllExcept(keep map[WarningKind]bool) {
	for kind := range l.heldSince {
		if !keep[kind] {
			delete(l.heldSince, kind)
		}
	}
}
