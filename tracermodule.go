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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// maxSpatialDims is the largest number of spatial array dimensions a
// tracer module may have.
const maxSpatialDims = 3

// TracerModule is a sub-vector of a StateVector: the named scalar fields
// of one tracer module, sharing a spatial discretization. All tracers of
// a module are held in a single dense array whose leading axis is the
// tracer index.
type TracerModule struct {
	def      ModuleDef
	dimNames []string // spatial dimension names, in storage order
	vals     *sparse.DenseArray
}

// NewTracerModule returns a zero-valued tracer module over the given
// spatial dimensions.
func NewTracerModule(def ModuleDef, dimNames []string, dimLens []int) (*TracerModule, error) {
	if len(dimNames) != len(dimLens) {
		return nil, fmt.Errorf("newton: tracer module %s: %d dimension names for %d lengths",
			def.Name, len(dimNames), len(dimLens))
	}
	if len(dimLens) > maxSpatialDims {
		return nil, &ShapeMismatchError{Module: def.Name,
			Detail: fmt.Sprintf("%d spatial dimensions exceeds limit of %d", len(dimLens), maxSpatialDims)}
	}
	shape := append([]int{len(def.Tracers)}, dimLens...)
	return &TracerModule{
		def:      def,
		dimNames: append([]string{}, dimNames...),
		vals:     sparse.ZerosDense(shape...),
	}, nil
}

// Name returns the tracer-module name.
func (m *TracerModule) Name() string { return m.def.Name }

// Len returns the number of scalar elements in the module.
func (m *TracerModule) Len() int { return len(m.vals.Elements) }

// Values returns the module's backing array. The leading axis is the
// tracer index.
func (m *TracerModule) Values() *sparse.DenseArray { return m.vals }

// TracerVals returns a copy of the values of the named tracer.
func (m *TracerModule) TracerVals(tracer string) ([]float64, error) {
	for i, name := range m.def.Tracers {
		if name == tracer {
			n := m.Len() / len(m.def.Tracers)
			out := make([]float64, n)
			copy(out, m.vals.Elements[i*n:(i+1)*n])
			return out, nil
		}
	}
	return nil, fmt.Errorf("newton: tracer module %s has no tracer %s", m.def.Name, tracer)
}

// SetTracerVals overwrites the values of the named tracer.
func (m *TracerModule) SetTracerVals(tracer string, vals []float64) error {
	n := m.Len() / len(m.def.Tracers)
	if len(vals) != n {
		return &ShapeMismatchError{Module: m.def.Name,
			Detail: fmt.Sprintf("tracer %s has %d elements, got %d", tracer, n, len(vals))}
	}
	for i, name := range m.def.Tracers {
		if name == tracer {
			copy(m.vals.Elements[i*n:(i+1)*n], vals)
			return nil
		}
	}
	return fmt.Errorf("newton: tracer module %s has no tracer %s", m.def.Name, tracer)
}

// Copy returns a deep copy of the module.
func (m *TracerModule) Copy() *TracerModule {
	return &TracerModule{def: m.def, dimNames: m.dimNames, vals: m.vals.Copy()}
}

// checkCompat reports whether arithmetic between m and o is defined.
func (m *TracerModule) checkCompat(o *TracerModule) error {
	if m.def.Name != o.def.Name {
		return &ShapeMismatchError{Module: m.def.Name,
			Detail: fmt.Sprintf("operand belongs to tracer module %s", o.def.Name)}
	}
	if len(m.vals.Shape) != len(o.vals.Shape) {
		return &ShapeMismatchError{Module: m.def.Name,
			Detail: fmt.Sprintf("rank %d vs %d", len(m.vals.Shape), len(o.vals.Shape))}
	}
	for i, n := range m.vals.Shape {
		if o.vals.Shape[i] != n {
			return &ShapeMismatchError{Module: m.def.Name,
				Detail: fmt.Sprintf("axis %d has length %d vs %d", i, n, o.vals.Shape[i])}
		}
	}
	return nil
}

// Neg returns -m.
func (m *TracerModule) Neg() *TracerModule {
	res := m.Copy()
	res.vals.Scale(-1)
	return res
}

// AddInPlace computes m += o.
func (m *TracerModule) AddInPlace(o *TracerModule) error {
	if err := m.checkCompat(o); err != nil {
		return err
	}
	m.vals.AddDense(o.vals)
	return nil
}

// SubInPlace computes m -= o.
func (m *TracerModule) SubInPlace(o *TracerModule) error {
	if err := m.checkCompat(o); err != nil {
		return err
	}
	for i, v := range o.vals.Elements {
		m.vals.Elements[i] -= v
	}
	return nil
}

// MulInPlace computes the elementwise product m *= o.
func (m *TracerModule) MulInPlace(o *TracerModule) error {
	if err := m.checkCompat(o); err != nil {
		return err
	}
	for i, v := range o.vals.Elements {
		m.vals.Elements[i] *= v
	}
	return nil
}

// DivInPlace computes the elementwise quotient m /= o.
func (m *TracerModule) DivInPlace(o *TracerModule) error {
	if err := m.checkCompat(o); err != nil {
		return err
	}
	for i, v := range o.vals.Elements {
		m.vals.Elements[i] /= v
	}
	return nil
}

// ScaleInPlace computes m *= c.
func (m *TracerModule) ScaleInPlace(c float64) {
	m.vals.Scale(c)
}

// AddScaledInPlace computes m += c*o.
func (m *TracerModule) AddScaledInPlace(c float64, o *TracerModule) error {
	if err := m.checkCompat(o); err != nil {
		return err
	}
	for i, v := range o.vals.Elements {
		m.vals.Elements[i] += c * v
	}
	return nil
}

// Dot returns the unweighted dot product of m with o.
func (m *TracerModule) Dot(o *TracerModule) (float64, error) {
	if err := m.checkCompat(o); err != nil {
		return 0, err
	}
	return floats.Dot(m.vals.Elements, o.vals.Elements), nil
}

// Norm returns the l2 norm of m.
func (m *TracerModule) Norm() float64 {
	return floats.Norm(m.vals.Elements, 2)
}
