// Package seawater implements the EOS-80 / UNESCO relations the pipeline
// needs to move between pressure and depth and to convert volume-based
// concentrations into mass-based ones.
package seawater

import (
	"math"
)

const (
	// T68Factor converts IPTS-68 temperatures to ITS-90: t90 = t68 / T68Factor
	T68Factor = 1.00024

	// ReferenceSalinityRatio is uPS, the ratio of reference-composition
	// absolute salinity to practical salinity (g/kg per PSU).
	ReferenceSalinityRatio = 35.16504 / 35.0

	// OxygenMlToUmol is the number of micromoles in one millilitre of O2.
	OxygenMlToUmol = 44.6596

	// OxygenMgToUmol is the number of micromoles in one milligram of O2.
	OxygenMgToUmol = 31.2512

	// ReferenceDensity is used when temperature or salinity is unavailable.
	ReferenceDensity = 1025.0
)

// Depth returns depth in metres for a pressure in dbar at the given latitude
// (UNESCO 1983, Fofonoff & Millard).
func Depth(pressureDbar, latitude float64) float64 {
	x := math.Sin(latitude / 57.29578)
	x = x * x
	gr := 9.780318*(1.0+(5.2788e-3+2.36e-5*x)*x) + 1.092e-6*pressureDbar
	p := pressureDbar
	d := (((-1.82e-15*p+2.279e-10)*p-2.2512e-5)*p + 9.72659) * p
	return d / gr
}

// Pressure returns pressure in dbar for a depth in metres at the given
// latitude (Saunders 1981).
func Pressure(depthM, latitude float64) float64 {
	x := math.Sin(math.Abs(latitude) * math.Pi / 180)
	c1 := 5.92e-3 + 5.25e-3*x*x
	a := 1 - c1
	return (a - math.Sqrt(a*a-8.84e-6*depthM)) / 4.42e-6
}

// Density returns in-situ density at surface pressure in kg/m3 for practical
// salinity s and temperature t in degC (UNESCO 1981 one-atmosphere equation).
func Density(s, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t
	t5 := t4 * t
	rhow := 999.842594 + 6.793952e-2*t - 9.095290e-3*t2 + 1.001685e-4*t3 - 1.120083e-6*t4 + 6.536332e-9*t5
	a := 8.24493e-1 - 4.0899e-3*t + 7.6438e-5*t2 - 8.2467e-7*t3 + 5.3875e-9*t4
	b := -5.72466e-3 + 1.0227e-4*t - 1.6546e-6*t2
	c := 4.8314e-4
	return rhow + a*s + b*s*math.Sqrt(s) + c*s*s
}

// SigmaT returns density anomaly (Density - 1000).
func SigmaT(s, t float64) float64 {
	return Density(s, t) - 1000
}

// DensityOrReference returns Density(s, t) when both values are present and
// ReferenceDensity otherwise.
func DensityOrReference(s, t float64) float64 {
	if math.IsNaN(s) || math.IsNaN(t) {
		return ReferenceDensity
	}
	return Density(s, t)
}
