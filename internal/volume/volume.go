// Package volume computes cement yield, hole capacity and calculated top of cement.
package volume

import (
	"math"
	"strings"
)

const (
	// CubicFeetPerBarrel converts oilfield barrels to cubic feet.
	CubicFeetPerBarrel = 5.6146

	DefaultClass        = "H"
	DefaultHoleDiameter = 7.875
	DefaultSlurryWeight = 15.6
)

// Class holds per-class cement properties: yield in ft³/sack, weight in ppg.
type Class struct {
	Yield  float64 `yaml:"yield" json:"yield"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// DefaultClasses is the API cement class table.
func DefaultClasses() map[string]Class {
	return map[string]Class{
		"A": {Yield: 1.18, Weight: 15.6},
		"B": {Yield: 1.18, Weight: 15.6},
		"C": {Yield: 1.32, Weight: 14.8},
		"G": {Yield: 1.15, Weight: 15.8},
		"H": {Yield: 1.19, Weight: 16.4},
	}
}

type Calculator struct {
	Classes             map[string]Class
	DefaultClass        string
	DefaultHoleDiameter float64
	DefaultSlurryWeight float64
}

// NewCalculator returns a Calculator over the default class table.
func NewCalculator() Calculator {
	return Calculator{
		Classes:             DefaultClasses(),
		DefaultClass:        DefaultClass,
		DefaultHoleDiameter: DefaultHoleDiameter,
		DefaultSlurryWeight: DefaultSlurryWeight,
	}
}

func (c Calculator) class(name string) (Class, bool) {
	cl, ok := c.Classes[strings.ToUpper(strings.TrimSpace(name))]
	return cl, ok
}

// Yield returns ft³ of slurry per sack. Unknown or empty classes use the default class.
func (c Calculator) Yield(class string) float64 {
	if cl, ok := c.class(class); ok && cl.Yield > 0 {
		return cl.Yield
	}
	if cl, ok := c.class(c.DefaultClass); ok && cl.Yield > 0 {
		return cl.Yield
	}
	return DefaultClasses()[DefaultClass].Yield
}

// SlurryWeight returns the nominal slurry density for a class in ppg.
func (c Calculator) SlurryWeight(class string) float64 {
	if cl, ok := c.class(class); ok && cl.Weight > 0 {
		return cl.Weight
	}
	if c.DefaultSlurryWeight > 0 {
		return c.DefaultSlurryWeight
	}
	return DefaultSlurryWeight
}

// AnnularCapacity returns ft³ per foot of a circular section with the given diameter in inches.
func AnnularCapacity(diameter float64) float64 {
	r := diameter / 2
	return math.Pi * r * r / 144
}

// Input carries what is known about a plug for the TOC calculation.
type Input struct {
	Bottom       float64
	Sacks        *float64
	Class        string
	HoleDiameter *float64
	SlurryBbl    *float64
}

// CalculatedTOC returns the depth reached by the cement column. Slurry volume wins when the
// hole is known; otherwise sacks are converted through the class yield. ok is false when
// neither quantity is available.
func (c Calculator) CalculatedTOC(in Input) (float64, bool) {
	if in.SlurryBbl != nil && in.HoleDiameter != nil && *in.HoleDiameter > 0 {
		height := *in.SlurryBbl * CubicFeetPerBarrel / AnnularCapacity(*in.HoleDiameter)
		return in.Bottom - height, true
	}
	if in.Sacks == nil {
		return 0, false
	}
	hole := c.DefaultHoleDiameter
	if hole <= 0 {
		hole = DefaultHoleDiameter
	}
	if in.HoleDiameter != nil && *in.HoleDiameter > 0 {
		hole = *in.HoleDiameter
	}
	height := *in.Sacks * c.Yield(in.Class) / AnnularCapacity(hole)
	return in.Bottom - height, true
}

// Variance is measured minus calculated, present only when both are.
func Variance(measured, calculated *float64) *float64 {
	if measured == nil || calculated == nil {
		return nil
	}
	v := *measured - *calculated
	return &v
}
