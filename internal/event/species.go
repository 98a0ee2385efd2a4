package event

import (
	"fmt"
	"math"
)

// Species tags the particle kind by flavor (e, mu, tau, pion) and lepton
// doublet (neutral, charged). The numeric value is flavor*2 + doublet and is
// what goes on the wire.
type Species uint8

const (
	NuE Species = iota
	Electron
	NuMu
	Muon
	NuTau
	Tau
	Pi0
	PiPlus

	numSpecies
)

var speciesNames = [numSpecies]string{
	"Electron Neutrino", "Electron",
	"Muon Neutrino", "Muon",
	"Tau Neutrino", "Tau",
	"Pion0", "Pion+",
}

// masses in GeV
var speciesMasses = [numSpecies]float64{
	0, 510.99906e-6,
	0, 105.658389e-3,
	0, 1.7841,
	134.9743e-3, 139.5679e-3,
}

// lifetimes in seconds
var speciesLifetimes = [numSpecies]float64{
	math.Inf(1), math.Inf(1),
	math.Inf(1), 2.19703e-6,
	math.Inf(1), 3.05e-13,
	8.4e-17, 2.603e-8,
}

// SpeciesOf returns the species for a flavor/doublet pair.
func SpeciesOf(flavor, doublet int) (Species, error) {
	if flavor < 0 || flavor > 3 || doublet < 0 || doublet > 1 {
		return 0, fmt.Errorf("illegal flavor/doublet %d/%d", flavor, doublet)
	}
	return Species(flavor*2 + doublet), nil
}

func (s Species) Valid() bool { return s < numSpecies }

func (s Species) Flavor() int  { return int(s) / 2 }
func (s Species) Doublet() int { return int(s) % 2 }

func (s Species) Mass() float64 {
	if !s.Valid() {
		return math.NaN()
	}
	return speciesMasses[s]
}

func (s Species) Lifetime() float64 {
	if !s.Valid() {
		return math.NaN()
	}
	return speciesLifetimes[s]
}

func (s Species) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Species(%d)", uint8(s))
	}
	return speciesNames[s]
}
