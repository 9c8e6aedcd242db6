// Package coord holds the Cartesian value types exchanged with the robot
// controller.
package coord

import (
	"fmt"
	"math"
)

// Point is a position in millimetres.
type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

// Round rounds every component to the given number of decimal places.
func (p Point) Round(places int) Point {
	scale := math.Pow(10, float64(places))
	p.X = math.Round(p.X*scale) / scale
	p.Y = math.Round(p.Y*scale) / scale
	p.Z = math.Round(p.Z*scale) / scale
	return p
}

// IsZero reports whether all components are zero.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

func (p Point) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

// Pose is a point with the orientation of the tool, in degrees.
type Pose struct {
	Point
	RX, RY, RZ float64
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f, %.3f, %.3f, %.3f)", p.X, p.Y, p.Z, p.RX, p.RY, p.RZ)
}
