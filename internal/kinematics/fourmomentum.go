// Package kinematics provides the four-momentum type carried by events.
package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FourMomentum is an energy and 3-momentum in natural units.
type FourMomentum struct {
	E  float64 `json:"e"`
	Px float64 `json:"px"`
	Py float64 `json:"py"`
	Pz float64 `json:"pz"`
}

// New builds a FourMomentum from energy and momentum components.
func New(e, px, py, pz float64) FourMomentum {
	return FourMomentum{E: e, Px: px, Py: py, Pz: pz}
}

// FromVec builds a FourMomentum from an energy and a 3-momentum.
func FromVec(e float64, p r3.Vec) FourMomentum {
	return FourMomentum{E: e, Px: p.X, Py: p.Y, Pz: p.Z}
}

// Momentum returns the 3-momentum.
func (p FourMomentum) Momentum() r3.Vec {
	return r3.Vec{X: p.Px, Y: p.Py, Z: p.Pz}
}

// M2 returns the invariant mass squared E² - |p|².
func (p FourMomentum) M2() float64 {
	return p.E*p.E - r3.Norm2(p.Momentum())
}

// M returns the invariant mass. Spacelike momenta give NaN.
func (p FourMomentum) M() float64 {
	return math.Sqrt(p.M2())
}

// Beta3 returns the velocity p/E.
func (p FourMomentum) Beta3() r3.Vec {
	return r3.Scale(1/p.E, p.Momentum())
}

// Add returns p + q.
func (p FourMomentum) Add(q FourMomentum) FourMomentum {
	return FourMomentum{E: p.E + q.E, Px: p.Px + q.Px, Py: p.Py + q.Py, Pz: p.Pz + q.Pz}
}

// Sub returns p - q.
func (p FourMomentum) Sub(q FourMomentum) FourMomentum {
	return FourMomentum{E: p.E - q.E, Px: p.Px - q.Px, Py: p.Py - q.Py, Pz: p.Pz - q.Pz}
}

// Sum adds any number of four-momenta.
func Sum(ps ...FourMomentum) FourMomentum {
	var out FourMomentum
	for _, p := range ps {
		out = out.Add(p)
	}
	return out
}

// BoostMatrix returns the Lorentz transformation into the rest frame of p,
// acting on (E, px, py, pz) column vectors. A particle at rest yields the identity.
func (p FourMomentum) BoostMatrix() *mat.Dense {
	b := p.Beta3()
	b2 := r3.Norm2(b)
	if b2 == 0 {
		m := mat.NewDense(4, 4, nil)
		for i := 0; i < 4; i++ {
			m.Set(i, i, 1)
		}
		return m
	}
	g := 1 / math.Sqrt(1-b2)
	k := (g - 1) / b2
	return mat.NewDense(4, 4, []float64{
		g, -g * b.X, -g * b.Y, -g * b.Z,
		-g * b.X, 1 + k*b.X*b.X, k * b.X * b.Y, k * b.X * b.Z,
		-g * b.Y, k * b.Y * b.X, 1 + k*b.Y*b.Y, k * b.Y * b.Z,
		-g * b.Z, k * b.Z * b.X, k * b.Z * b.Y, 1 + k*b.Z*b.Z,
	})
}

// BoostAlong expresses p in the rest frame of other.
func (p FourMomentum) BoostAlong(other FourMomentum) FourMomentum {
	var out mat.VecDense
	out.MulVec(other.BoostMatrix(), mat.NewVecDense(4, []float64{p.E, p.Px, p.Py, p.Pz}))
	return FourMomentum{E: out.AtVec(0), Px: out.AtVec(1), Py: out.AtVec(2), Pz: out.AtVec(3)}
}

func (p FourMomentum) String() string {
	return fmt.Sprintf("[%g, (%g, %g, %g)]", p.E, p.Px, p.Py, p.Pz)
}
