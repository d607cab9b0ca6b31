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

// Package testproblem provides an in-process Evaluator for exercising
// the Newton-Krylov solver without external jobs: a linear fixed-point
// residual F(x) = x − target over a small two-module tracer space, with
// an optional implicit vertical-mixing preconditioner.
package testproblem

import (
	"fmt"

	"github.com/klindsay28/newton"
)

// DepthDim is the spatial dimension name of the test-problem grid.
const DepthDim = "depth"

// Space returns the test problem's vector space: tracer modules
// {"x": [x1 x2], "y": [y]} on a single depth axis.
func Space() *newton.Space {
	s, err := newton.NewSpace(
		newton.ModuleDef{Name: "x", Tracers: []string{"x1", "x2"}},
		newton.ModuleDef{Name: "y", Tracers: []string{"y"}},
	)
	if err != nil {
		panic(err) // static definitions above cannot fail validation
	}
	return s
}

// Evaluator implements newton.Evaluator in process. The residual is
// F(x) = x − Target, whose Jacobian is the identity, so an exact Newton
// step converges in one iteration. MixingCoeff > 0 additionally applies
// implicit vertical mixing in the preconditioner.
type Evaluator struct {
	Space       *newton.Space
	Target      *newton.StateVector
	MixingCoeff float64
}

// CompFcn evaluates the residual at state, writes it to resPath, and
// writes state itself to histPath (when non-empty) as the iteration's
// history.
func (e *Evaluator) CompFcn(state *newton.StateVector, resPath, histPath string, ss *newton.SolverState) (*newton.StateVector, error) {
	step := fmt.Sprintf("comp_fcn done for %s", resPath)
	if ss != nil && ss.StepLogged(step) {
		return newton.LoadStateVector(e.Space, resPath)
	}
	res, err := state.Sub(e.Target)
	if err != nil {
		return nil, err
	}
	if err := res.Dump(resPath); err != nil {
		return nil, err
	}
	if histPath != "" {
		if err := state.Dump(histPath); err != nil {
			return nil, err
		}
	}
	if ss != nil {
		if err := ss.LogStep(step); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ApplyPrecondJacobian applies the preconditioner to state and writes
// the result to resPath. With a zero MixingCoeff the preconditioner is
// the identity, matching the residual's identity Jacobian.
func (e *Evaluator) ApplyPrecondJacobian(state *newton.StateVector, precondPath, resPath string, ss *newton.SolverState) (*newton.StateVector, error) {
	step := fmt.Sprintf("apply_precond_jacobian done for %s", resPath)
	if ss != nil && ss.StepLogged(step) {
		return newton.LoadStateVector(e.Space, resPath)
	}
	res := state.Copy()
	if e.MixingCoeff > 0 {
		for _, m := range res.Modules() {
			if err := applyVertMix(m, e.MixingCoeff); err != nil {
				return nil, err
			}
		}
	}
	if err := res.Dump(resPath); err != nil {
		return nil, err
	}
	if ss != nil {
		if err := ss.LogStep(step); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// GenPrecondJacobian copies the history tracers into the preconditioner
// artifact.
func (e *Evaluator) GenPrecondJacobian(histPath, precondPath string, ss *newton.SolverState) error {
	step := fmt.Sprintf("gen_precond_jacobian done for %s", precondPath)
	if ss != nil && ss.StepLogged(step) {
		return nil
	}
	var vars []string
	for _, def := range e.Space.Modules() {
		for _, tracer := range def.Tracers {
			vars = append(vars, tracer+":copy")
		}
	}
	if err := newton.GenPrecondArtifact(histPath, precondPath, vars); err != nil {
		return err
	}
	if ss != nil {
		return ss.LogStep(step)
	}
	return nil
}
