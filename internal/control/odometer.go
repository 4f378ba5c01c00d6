package control

import "math"

// Vec3 is a world position in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v-w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Odometer accumulates the Euclidean distance travelled between successive
// positions. The zero value is ready to use.
type Odometer struct {
	last     Vec3
	started  bool
	distance float64
}

// Next records a new position and returns the total distance so far.
func (o *Odometer) Next(p Vec3) float64 {
	if o.started {
		o.distance += p.Sub(o.last).Norm()
	}
	o.last = p
	o.started = true
	return o.distance
}

// Distance returns the accumulated distance without moving.
func (o *Odometer) Distance() float64 {
	return o.distance
}

// Reset zeroes the distance; the next position becomes the new origin.
func (o *Odometer) Reset() {
	*o = Odometer{}
}
