// Package ear computes the eye aspect ratio (EAR) from six eye landmarks.
//
// Landmark order follows the 68-point face model: outer corner, two upper-lid
// points, inner corner, two lower-lid points. EAR drops sharply when the eye
// closes, which is what the blink detector keys on.
package ear

import (
	"errors"
	"math"
)

// minWidth is the smallest horizontal eye distance accepted, in pixels.
const minWidth = 1e-9

// ErrDegenerateEye is returned when the eye corners coincide.
var ErrDegenerateEye = errors.New("ear: zero-width eye")

// Point is a 2-D landmark coordinate.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Eye is an ordered set of six landmarks for one eye.
type Eye [6]Point

// AspectRatio returns (|p1-p5| + |p2-p4|) / (2 * |p0-p3|).
func AspectRatio(eye Eye) (float64, error) {
	a := eye[1].Dist(eye[5])
	b := eye[2].Dist(eye[4])
	c := eye[0].Dist(eye[3])
	if c < minWidth {
		return 0, ErrDegenerateEye
	}
	return (a + b) / (2 * c), nil
}

// Average returns the mean EAR of both eyes.
func Average(left, right Eye) (float64, error) {
	l, err := AspectRatio(left)
	if err != nil {
		return 0, err
	}
	r, err := AspectRatio(right)
	if err != nil {
		return 0, err
	}
	return (l + r) / 2, nil
}
