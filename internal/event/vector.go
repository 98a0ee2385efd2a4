package event

import "math"

// Vec3 is a cartesian vector. Positions are in cm.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) IsZero() bool {
	return v == Vec3{}
}

func (v Vec3) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// unitTolerance bounds |len-1| for a direction to count as a unit vector.
const unitTolerance = 1e-6

// IsUnit reports whether v has unit length within tolerance.
func (v Vec3) IsUnit() bool {
	return v.Finite() && math.Abs(v.Length()-1) <= unitTolerance
}

// Unit returns v scaled to unit length. The zero vector is returned as is.
func (v Vec3) Unit() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}
