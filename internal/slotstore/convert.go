package slotstore

import "time"

// boundaryUTC is the single place IST wall-clock slot fields are
// converted to UTC instants. Everywhere else in this package only
// deals in UTC; IST is a presentation zone.
func boundaryUTC(date, timeOfDay time.Time, zone *time.Location) time.Time {
	local := time.Date(date.Year(), date.Month(), date.Day(),
		timeOfDay.Hour(), timeOfDay.Minute(), timeOfDay.Second(), 0, zone)
	return local.UTC()
}

// SlotWindowUTC returns the [start, end) instants for a slot in UTC.
func SlotWindowUTC(s Slot, zone *time.Location) (start, end time.Time) {
	return boundaryUTC(s.Date, s.Start, zone), boundaryUTC(s.Date, s.End, zone)
}

// overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
