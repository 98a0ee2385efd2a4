package event

import "math"

// Kinematics is one attribute set of a record, either the MC truth or the
// reconstruction. Directions are unit vectors; a zero vector means the axis
// was never set.
type Kinematics struct {
	Species   Species
	LogEnergy float64 // log10(E/GeV)
	Lifetime  float64 // s
	Distance  float64 // propagation distance from the Earth surface, cm

	// detector-local frame
	Direction Vec3
	Origin    Vec3

	// Earth-centred frame
	GlobalDirection Vec3
	GlobalOrigin    Vec3
}

// NewKinematics fills the lifetime from the species table.
func NewKinematics(s Species, logEnergy float64) Kinematics {
	return Kinematics{
		Species:   s,
		LogEnergy: logEnergy,
		Lifetime:  s.Lifetime(),
	}
}

func (k Kinematics) Energy() float64 {
	return math.Pow(10, k.LogEnergy)
}

// CosZenith is the cosine of the zenith angle of the arrival direction. The
// stored direction is the propagation direction, so the sign is reversed.
func (k Kinematics) CosZenith() float64 {
	return -k.Direction.Z
}
