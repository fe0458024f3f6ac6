package calendar

// =============================================================================
// RANGE - Inclusive span of calendar days
// =============================================================================

// Range is an inclusive [Start, End] span of days.
type Range struct {
	Start Date
	End   Date
}

// NewRange builds a range and rejects end-before-start.
func NewRange(start, end Date) (Range, error) {
	if end.Before(start) {
		return Range{}, ErrInvalidRange
	}
	return Range{Start: start, End: end}, nil
}

// ParseRange parses two YYYY-MM-DD strings into a range.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Range{}, err
	}
	return NewRange(s, e)
}

// Contains reports whether d falls within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Len is the number of days in the range.
func (r Range) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

// Days returns every day in the range in calendar order.
func (r Range) Days() []Date {
	days := make([]Date, 0, r.Len())
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Overlaps reports whether the two ranges share at least one day.
func (r Range) Overlaps(other Range) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

// Clip returns the intersection of r and bounds. ok is false when they are disjoint.
func (r Range) Clip(bounds Range) (clipped Range, ok bool) {
	if !r.Overlaps(bounds) {
		return Range{}, false
	}
	clipped = r
	if clipped.Start.Before(bounds.Start) {
		clipped.Start = bounds.Start
	}
	if clipped.End.After(bounds.End) {
		clipped.End = bounds.End
	}
	return clipped, true
}

// String returns "[start, end]".
func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
