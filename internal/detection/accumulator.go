package detection

import "fmt"

// Accumulator gathers the reports for one artifact until every expected
// quadrant has answered. It is not safe for concurrent use.
type Accumulator struct {
	width    int
	height   int
	margin   float64
	expected map[int]bool
	reported map[int]bool
	boxes    []Box
	failure  error
}

// NewAccumulator expects reports for quadrants, or all four when none are given.
func NewAccumulator(width, height int, margin float64, quadrants ...int) *Accumulator {
	if len(quadrants) == 0 {
		quadrants = []int{TopLeft, TopRight, BottomLeft, BottomRight}
	}
	expected := make(map[int]bool, len(quadrants))
	for _, q := range quadrants {
		expected[q] = true
	}
	return &Accumulator{
		width:    width,
		height:   height,
		margin:   margin,
		expected: expected,
		reported: make(map[int]bool, len(expected)),
	}
}

// Add translates the report's boxes into image space. Reports for a
// quadrant that already answered are ignored.
func (a *Accumulator) Add(r Report) (bool, error) {
	if r.Quadrant < 0 || r.Quadrant >= NumQuadrants {
		return a.Done(), fmt.Errorf("invalid quadrant index %d", r.Quadrant)
	}
	if !a.expected[r.Quadrant] || a.reported[r.Quadrant] {
		return a.Done(), nil
	}
	a.reported[r.Quadrant] = true

	if r.Error != "" && a.failure == nil {
		a.failure = &Error{ImagePath: r.ImagePath, Quadrant: r.Quadrant, Message: r.Error}
	}
	for _, raw := range r.Boxes {
		a.boxes = append(a.boxes, Translate(raw, r.Quadrant, a.width, a.height, a.margin))
	}
	return a.Done(), nil
}

// Done reports whether every expected quadrant has answered.
func (a *Accumulator) Done() bool {
	return len(a.reported) == len(a.expected)
}

// Boxes returns the translated boxes in arrival order.
func (a *Accumulator) Boxes() []Box {
	return append([]Box(nil), a.boxes...)
}

// Subject selects the largest box, ErrNoSubject when there is none, or the
// first detector failure.
func (a *Accumulator) Subject() (Box, error) {
	if a.failure != nil {
		return Box{}, a.failure
	}
	box, ok := SelectSubject(a.boxes)
	if !ok {
		return Box{}, ErrNoSubject
	}
	return box, nil
}
