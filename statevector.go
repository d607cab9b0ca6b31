/*
Copyright © 2026 the newton authors.
This file is part of newton.

newton is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

newton is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with newton.  If not, see <http://www.gnu.org/licenses/>.
*/

package newton

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ConvergenceTolerance is the absolute per-module norm below which a
// residual is considered converged.
const ConvergenceTolerance = 1.0e-10

// StateVector is an element of a solver's vector space: one TracerModule
// per module definition of its Space, in Space order. Arithmetic between
// two StateVectors requires identical module sets and matching array
// shapes; violations return a *ShapeMismatchError. Pure operations
// allocate their result; the *InPlace forms mutate the receiver.
type StateVector struct {
	space   *Space
	modules []*TracerModule
}

// NewStateVector returns a zero vector with every module on the given
// spatial dimensions.
func NewStateVector(space *Space, dimNames []string, dimLens []int) (*StateVector, error) {
	v := &StateVector{space: space}
	for _, def := range space.Modules() {
		m, err := NewTracerModule(def, dimNames, dimLens)
		if err != nil {
			return nil, err
		}
		v.modules = append(v.modules, m)
	}
	return v, nil
}

// Space returns the vector space v belongs to.
func (v *StateVector) Space() *Space { return v.space }

// Modules returns v's tracer modules in Space order.
func (v *StateVector) Modules() []*TracerModule { return v.modules }

// Module returns the named tracer module.
func (v *StateVector) Module(name string) (*TracerModule, error) {
	for _, m := range v.modules {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("newton: state vector has no tracer module %s", name)
}

// Copy returns a deep copy of v.
func (v *StateVector) Copy() *StateVector {
	res := &StateVector{space: v.space}
	for _, m := range v.modules {
		res.modules = append(res.modules, m.Copy())
	}
	return res
}

// checkCompat reports whether arithmetic between v and o is defined.
func (v *StateVector) checkCompat(o *StateVector) error {
	if len(v.modules) != len(o.modules) {
		return &ShapeMismatchError{Detail: fmt.Sprintf("%d tracer modules vs %d",
			len(v.modules), len(o.modules))}
	}
	for i, m := range v.modules {
		if err := m.checkCompat(o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// checkCoeffs reports whether a per-module coefficient slice matches v.
func (v *StateVector) checkCoeffs(c []float64) error {
	if len(c) != len(v.modules) {
		return &ShapeMismatchError{Detail: fmt.Sprintf("%d coefficients for %d tracer modules",
			len(c), len(v.modules))}
	}
	return nil
}

// Neg returns -v.
func (v *StateVector) Neg() *StateVector {
	res := v.Copy()
	res.ScaleInPlace(-1)
	return res
}

// Add returns v + o.
func (v *StateVector) Add(o *StateVector) (*StateVector, error) {
	res := v.Copy()
	if err := res.AddInPlace(o); err != nil {
		return nil, err
	}
	return res, nil
}

// AddInPlace computes v += o.
func (v *StateVector) AddInPlace(o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.AddInPlace(o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Sub returns v - o.
func (v *StateVector) Sub(o *StateVector) (*StateVector, error) {
	res := v.Copy()
	if err := res.SubInPlace(o); err != nil {
		return nil, err
	}
	return res, nil
}

// SubInPlace computes v -= o.
func (v *StateVector) SubInPlace(o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.SubInPlace(o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Mul returns the elementwise product v * o.
func (v *StateVector) Mul(o *StateVector) (*StateVector, error) {
	res := v.Copy()
	if err := res.MulInPlace(o); err != nil {
		return nil, err
	}
	return res, nil
}

// MulInPlace computes the elementwise product v *= o.
func (v *StateVector) MulInPlace(o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.MulInPlace(o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Div returns the elementwise quotient v / o.
func (v *StateVector) Div(o *StateVector) (*StateVector, error) {
	res := v.Copy()
	if err := res.DivInPlace(o); err != nil {
		return nil, err
	}
	return res, nil
}

// DivInPlace computes the elementwise quotient v /= o.
func (v *StateVector) DivInPlace(o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.DivInPlace(o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Scale returns c * v.
func (v *StateVector) Scale(c float64) *StateVector {
	res := v.Copy()
	res.ScaleInPlace(c)
	return res
}

// ScaleInPlace computes v *= c.
func (v *StateVector) ScaleInPlace(c float64) {
	for _, m := range v.modules {
		m.ScaleInPlace(c)
	}
}

// ScaleModules returns the vector whose i'th module is c[i] * v_i.
func (v *StateVector) ScaleModules(c []float64) (*StateVector, error) {
	res := v.Copy()
	if err := res.ScaleModulesInPlace(c); err != nil {
		return nil, err
	}
	return res, nil
}

// ScaleModulesInPlace scales each module by its own coefficient.
func (v *StateVector) ScaleModulesInPlace(c []float64) error {
	if err := v.checkCoeffs(c); err != nil {
		return err
	}
	for i, m := range v.modules {
		m.ScaleInPlace(c[i])
	}
	return nil
}

// DivModulesInPlace divides each module by its own coefficient.
func (v *StateVector) DivModulesInPlace(c []float64) error {
	if err := v.checkCoeffs(c); err != nil {
		return err
	}
	for i, m := range v.modules {
		m.ScaleInPlace(1 / c[i])
	}
	return nil
}

// AddScaledInPlace computes v += c*o with a single scalar c.
func (v *StateVector) AddScaledInPlace(c float64, o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.AddScaledInPlace(c, o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddScaledModulesInPlace computes v_i += c[i]*o_i per module. It is the
// accumulation primitive behind Gram-Schmidt projection and linear
// combination of basis vectors.
func (v *StateVector) AddScaledModulesInPlace(c []float64, o *StateVector) error {
	if err := v.checkCompat(o); err != nil {
		return err
	}
	if err := v.checkCoeffs(c); err != nil {
		return err
	}
	for i, m := range v.modules {
		if err := m.AddScaledInPlace(c[i], o.modules[i]); err != nil {
			return err
		}
	}
	return nil
}

// Dot returns the per-module dot products of v with o.
func (v *StateVector) Dot(o *StateVector) ([]float64, error) {
	if err := v.checkCompat(o); err != nil {
		return nil, err
	}
	res := make([]float64, len(v.modules))
	for i, m := range v.modules {
		d, err := m.Dot(o.modules[i])
		if err != nil {
			return nil, err
		}
		res[i] = d
	}
	return res, nil
}

// Norm returns the per-module l2 norms of v.
func (v *StateVector) Norm() []float64 {
	res := make([]float64, len(v.modules))
	for i, m := range v.modules {
		res[i] = m.Norm()
	}
	return res
}

// Converged reports whether every module norm is below
// ConvergenceTolerance.
func (v *StateVector) Converged() bool {
	for _, n := range v.Norm() {
		if !(n < ConvergenceTolerance) {
			return false
		}
	}
	return true
}

// Log writes one line per tracer module with the module's norm, tagged
// with msg.
func (v *StateVector) Log(msg string) {
	norms := v.Norm()
	for i, m := range v.modules {
		logrus.Infof("%s,%s,%e", msg, m.Name(), norms[i])
	}
}
