package detection

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Scale is the fraction of the source width and height covered by each quadrant.
const Scale = 0.65

// Quadrant indices, in slicing and file-suffix order.
const (
	TopLeft = iota
	TopRight
	BottomLeft
	BottomRight
	NumQuadrants
)

// Region is a crop rectangle in source pixels.
type Region struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// QuadrantRegion returns the crop of quadrant q for a width x height source.
// Every quadrant is Scale of each dimension, anchored at its corner.
func QuadrantRegion(q, width, height int) Region {
	w := int(math.Floor(float64(width) * Scale))
	h := int(math.Floor(float64(height) * Scale))
	r := Region{Width: w, Height: h}
	if q == TopRight || q == BottomRight {
		r.Left = width - w
	}
	if q == BottomLeft || q == BottomRight {
		r.Top = height - h
	}
	return r
}

// Regions returns all four quadrant crops.
func Regions(width, height int) [NumQuadrants]Region {
	var out [NumQuadrants]Region
	for q := range out {
		out[q] = QuadrantRegion(q, width, height)
	}
	return out
}

// RawBox is a detector box in quadrant view space: the quadrant shown at the
// full source size. JSON accepts [x, y, w, h] or an object.
type RawBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b *RawBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 4 {
			return fmt.Errorf("bounding box needs 4 values, got %d", len(arr))
		}
		*b = RawBox{X: arr[0], Y: arr[1], Width: arr[2], Height: arr[3]}
		return nil
	}
	type plain RawBox
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid bounding box: %w", err)
	}
	*b = RawBox(p)
	return nil
}

// Box is a detection in full-image pixel space.
type Box struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Width    int `json:"width"`
	Height   int `json:"height"`
	Quadrant int `json:"quadrant"`
}

func (b Box) Area() int {
	return b.Width * b.Height
}

// Translate maps raw from quadrant q into the width x height source image,
// grows it by margin on every side and clamps it to the image.
func Translate(raw RawBox, q, width, height int, margin float64) Box {
	region := QuadrantRegion(q, width, height)

	x0 := raw.X*Scale + float64(region.Left) - margin
	y0 := raw.Y*Scale + float64(region.Top) - margin
	x1 := x0 + raw.Width*Scale + 2*margin
	y1 := y0 + raw.Height*Scale + 2*margin

	left := clamp(int(math.Round(x0)), 0, width)
	top := clamp(int(math.Round(y0)), 0, height)
	right := clamp(int(math.Round(x1)), left, width)
	bottom := clamp(int(math.Round(y1)), top, height)

	return Box{
		X:        left,
		Y:        top,
		Width:    right - left,
		Height:   bottom - top,
		Quadrant: q,
	}
}

// SelectSubject returns the largest box. Ties keep the first seen.
func SelectSubject(boxes []Box) (Box, bool) {
	sorted := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Area() > 0 {
			sorted = append(sorted, b)
		}
	}
	if len(sorted) == 0 {
		return Box{}, false
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Area() > sorted[j].Area()
	})
	return sorted[0], true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
