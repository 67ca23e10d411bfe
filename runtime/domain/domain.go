// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package domain

import (
	"fmt"
	"sort"
)

// MaxDim is the highest supported domain dimensionality.
const MaxDim = 3

type (
	// Point is a point in an up-to-MaxDim-dimensional integer space.
	// Unused coordinates are zero, so Point is comparable and usable as a
	// map key.
	Point struct {
		Dim    int
		Coords [MaxDim]int64
	}

	// Rect is a dense rectangle of points with inclusive bounds. An empty
	// rectangle has Hi < Lo in some dimension.
	Rect struct {
		Dim    int
		Lo, Hi Point
	}
)

// NewPoint returns a point with the given coordinates.
func NewPoint(coords ...int64) Point {
	if len(coords) == 0 || len(coords) > MaxDim {
		panic(fmt.Sprintf("domain: point dimension %d out of range [1, %d]", len(coords), MaxDim))
	}
	p := Point{Dim: len(coords)}
	copy(p.Coords[:], coords)
	return p
}

func (p Point) String() string {
	s := "("
	for i := 0; i < p.Dim; i++ {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", p.Coords[i])
	}
	return s + ")"
}

// Less orders points lexicographically; used for deterministic folds.
func (p Point) Less(other Point) bool {
	if p.Dim != other.Dim {
		return p.Dim < other.Dim
	}
	for i := 0; i < p.Dim; i++ {
		if p.Coords[i] != other.Coords[i] {
			return p.Coords[i] < other.Coords[i]
		}
	}
	return false
}

// NewRect returns the rectangle [lo, hi], both inclusive.
func NewRect(lo, hi Point) Rect {
	if lo.Dim != hi.Dim {
		panic(fmt.Sprintf("domain: rect bounds have mismatched dimensions %d and %d", lo.Dim, hi.Dim))
	}
	return Rect{Dim: lo.Dim, Lo: lo, Hi: hi}
}

// NewRect1D returns the one-dimensional rectangle [lo, hi].
func NewRect1D(lo, hi int64) Rect {
	return NewRect(NewPoint(lo), NewPoint(hi))
}

func (r Rect) String() string {
	return fmt.Sprintf("[%v..%v]", r.Lo, r.Hi)
}

// Empty reports whether the rectangle contains no points.
func (r Rect) Empty() bool {
	if r.Dim == 0 {
		return true
	}
	for i := 0; i < r.Dim; i++ {
		if r.Hi.Coords[i] < r.Lo.Coords[i] {
			return true
		}
	}
	return false
}

// Volume returns the number of points in the rectangle.
func (r Rect) Volume() int64 {
	if r.Empty() {
		return 0
	}
	v := int64(1)
	for i := 0; i < r.Dim; i++ {
		v *= r.Hi.Coords[i] - r.Lo.Coords[i] + 1
	}
	return v
}

// Contains reports whether p lies inside the rectangle.
func (r Rect) Contains(p Point) bool {
	if p.Dim != r.Dim || r.Empty() {
		return false
	}
	for i := 0; i < r.Dim; i++ {
		if p.Coords[i] < r.Lo.Coords[i] || p.Coords[i] > r.Hi.Coords[i] {
			return false
		}
	}
	return true
}

// ContainsRect reports whether other lies entirely inside the rectangle.
func (r Rect) ContainsRect(other Rect) bool {
	if other.Empty() {
		return true
	}
	return r.Contains(other.Lo) && r.Contains(other.Hi)
}

// Overlaps reports whether the two rectangles share any point.
func (r Rect) Overlaps(other Rect) bool {
	if r.Dim != other.Dim || r.Empty() || other.Empty() {
		return false
	}
	for i := 0; i < r.Dim; i++ {
		if r.Hi.Coords[i] < other.Lo.Coords[i] || other.Hi.Coords[i] < r.Lo.Coords[i] {
			return false
		}
	}
	return true
}

// Equal reports whether the two rectangles cover the same points.
func (r Rect) Equal(other Rect) bool {
	if r.Empty() && other.Empty() {
		return true
	}
	return r.Dim == other.Dim && r.Lo == other.Lo && r.Hi == other.Hi
}

// Iterate visits every point in lexicographic order until fn returns false.
func (r Rect) Iterate(fn func(Point) bool) {
	if r.Empty() {
		return
	}
	p := r.Lo
	for {
		if !fn(p) {
			return
		}
		// advance the last dimension first
		d := r.Dim - 1
		for d >= 0 {
			p.Coords[d]++
			if p.Coords[d] <= r.Hi.Coords[d] {
				break
			}
			p.Coords[d] = r.Lo.Coords[d]
			d--
		}
		if d < 0 {
			return
		}
	}
}

// Points returns every point in lexicographic order.
func (r Rect) Points() []Point {
	pts := make([]Point, 0, r.Volume())
	r.Iterate(func(p Point) bool {
		pts = append(pts, p)
		return true
	})
	return pts
}

// SplitEven cuts the rectangle into at most n pieces along its largest
// extent. The pieces partition the rectangle exactly and are returned in
// order; fewer than n pieces come back when the extent is smaller than n.
func (r Rect) SplitEven(n int) []Rect {
	if r.Empty() || n <= 1 {
		return []Rect{r}
	}

	axis := 0
	extent := int64(0)
	for i := 0; i < r.Dim; i++ {
		e := r.Hi.Coords[i] - r.Lo.Coords[i] + 1
		if e > extent {
			extent = e
			axis = i
		}
	}
	if int64(n) > extent {
		n = int(extent)
	}

	pieces := make([]Rect, 0, n)
	lo := r.Lo.Coords[axis]
	for i := 0; i < n; i++ {
		// distribute the remainder over the leading pieces
		size := extent / int64(n)
		if int64(i) < extent%int64(n) {
			size++
		}
		piece := r
		piece.Lo.Coords[axis] = lo
		piece.Hi.Coords[axis] = lo + size - 1
		pieces = append(pieces, piece)
		lo += size
	}
	return pieces
}

// SortPoints sorts points lexicographically in place.
func SortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool {
		return pts[i].Less(pts[j])
	})
}
