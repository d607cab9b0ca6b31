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

package testproblem

import (
	"fmt"

	"github.com/klindsay28/newton"
	"gonum.org/v1/gonum/mat"
)

// applyVertMix applies one implicit vertical-mixing step to every
// tracer column of m in place: each column u is replaced by the
// solution of (I + κ·L)·u' = u, where L is the 1-D diffusion operator
// with no-flux boundaries. The system is tridiagonal and diagonally
// dominant.
func applyVertMix(m *newton.TracerModule, kappa float64) error {
	shape := m.Values().Shape
	if len(shape) != 2 {
		return fmt.Errorf("testproblem: vertical mixing needs a single depth axis, tracer module %s has %d spatial axes",
			m.Name(), len(shape)-1)
	}
	n := shape[1]
	if n < 2 {
		return nil
	}

	a := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		diag := 1 + 2*kappa
		if k == 0 || k == n-1 {
			diag = 1 + kappa
		}
		a.Set(k, k, diag)
		if k > 0 {
			a.Set(k, k-1, -kappa)
		}
		if k < n-1 {
			a.Set(k, k+1, -kappa)
		}
	}

	elems := m.Values().Elements
	for t := 0; t < shape[0]; t++ {
		col := elems[t*n : (t+1)*n]
		rhs := mat.NewVecDense(n, nil)
		for k := 0; k < n; k++ {
			rhs.SetVec(k, col[k])
		}
		var u mat.VecDense
		if err := u.SolveVec(a, rhs); err != nil {
			return fmt.Errorf("testproblem: vertical mixing solve for tracer module %s: %v", m.Name(), err)
		}
		for k := 0; k < n; k++ {
			col[k] = u.AtVec(k)
		}
	}
	return nil
}
