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

// Package newton finds a fixed point of an expensive, externally
// computed vector function with a restartable Newton-Krylov iteration.
// The residual of one Newton step may require launching an asynchronous
// external job; the solver then suspends by returning ErrSuspend and a
// later process invocation, re-entered with the same work directory,
// resumes at the first unlogged step using the SolverState step log.
package newton

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Version is the solver version.
const Version = "0.1.0"

// DriverState enumerates the phases of the outer Newton iteration.
type DriverState int

const (
	StateEvaluateResidual DriverState = iota
	StateBuildKrylovBasis
	StateApplyPreconditioner
	StateUpdateState
	StateConverged
	StateFailed
)

func (s DriverState) String() string {
	switch s {
	case StateEvaluateResidual:
		return "EVALUATE_RESIDUAL"
	case StateBuildKrylovBasis:
		return "BUILD_KRYLOV_BASIS"
	case StateApplyPreconditioner:
		return "APPLY_PRECONDITIONER"
	case StateUpdateState:
		return "UPDATE_STATE"
	case StateConverged:
		return "CONVERGED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("DriverState(%d)", int(s))
}

// Driver runs the outer Newton iteration. It holds no resumable state of
// its own: everything needed to re-enter a half-finished solve lives in
// the SolverState step log and the files already written to the work
// directory, so Solve can be called afresh by every process invocation.
type Driver struct {
	Space     *Space
	Evaluator Evaluator
	State     *SolverState

	// MaxIter is the outer iteration cap (ConvergenceFailureError once
	// exceeded). RelTol, if positive, declares convergence when every
	// module's residual norm has dropped below RelTol times its value at
	// the first iterate, in addition to the absolute criterion.
	MaxIter int
	RelTol  float64

	// KrylovMaxIter and KrylovRelTol bound the inner linear solve.
	KrylovMaxIter int
	KrylovRelTol  float64
}

func (d *Driver) iterateFname(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("iterate_%02d.nc", it))
}

func (d *Driver) fcnFname(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("fcn_%02d.nc", it))
}

func (d *Driver) histFname(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("hist_%02d.nc", it))
}

func (d *Driver) precondFname(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("precond_%02d.nc", it))
}

func (d *Driver) incrementFname(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("increment_%02d.nc", it))
}

func (d *Driver) krylovDir(it int) string {
	return filepath.Join(d.State.Workdir(), fmt.Sprintf("krylov_%02d", it))
}

// Solve runs (or resumes) the Newton iteration from x0. x0 is only used
// when the work directory holds no iterate yet; a resumed solve reads
// the current iterate from disk. The returned error is ErrSuspend when
// an external job was dispatched, a ConvergenceFailureError when the
// iteration cap was exceeded, and nil on convergence, in which case the
// converged iterate is returned.
func (d *Driver) Solve(x0 *StateVector) (*StateVector, error) {
	it := d.State.Iteration()
	x, err := d.currentIterate(x0, it)
	if err != nil {
		return nil, err
	}

	var fcn, increment *StateVector
	var krylov *KrylovResult
	state := StateEvaluateResidual
	for {
		logrus.Debugf("newton iteration %d, state %v", it, state)
		switch state {

		case StateEvaluateResidual:
			fcn, err = d.Evaluator.CompFcn(x, d.fcnFname(it), d.histFname(it), d.State)
			if err != nil {
				return nil, err
			}
			fcn.Log(fmt.Sprintf("fcn_%02d", it))
			switch {
			case d.converged(fcn, it):
				state = StateConverged
			case it >= d.MaxIter:
				state = StateFailed
			default:
				state = StateBuildKrylovBasis
			}

		case StateBuildKrylovBasis:
			if err := d.Evaluator.GenPrecondJacobian(d.histFname(it), d.precondFname(it), d.State); err != nil {
				return nil, err
			}
			ks, err := NewKrylovSolver(d.Evaluator, d.State, d.krylovDir(it),
				d.precondFname(it), d.KrylovMaxIter, d.KrylovRelTol)
			if err != nil {
				return nil, err
			}
			krylov, err = ks.Build(x, fcn)
			if err != nil {
				return nil, err
			}
			state = StateApplyPreconditioner

		case StateApplyPreconditioner:
			increment, err = LinComb(krylov.Coeffs, krylov.PrecondBasis)
			if err != nil {
				return nil, err
			}
			increment.ScaleInPlace(-1)
			increment.Log(fmt.Sprintf("increment_%02d", it))
			if err := increment.Dump(d.incrementFname(it)); err != nil {
				return nil, err
			}
			state = StateUpdateState

		case StateUpdateState:
			if err := x.AddInPlace(increment); err != nil {
				return nil, err
			}
			if err := x.Dump(d.iterateFname(it + 1)); err != nil {
				return nil, err
			}
			x.Log(fmt.Sprintf("iterate_%02d", it+1))
			if it, err = d.State.IncIteration(); err != nil {
				return nil, err
			}
			state = StateEvaluateResidual

		case StateConverged:
			logrus.Infof("converged after %d Newton iterations", it)
			return x, nil

		case StateFailed:
			return nil, &ConvergenceFailureError{Iterations: it, Norms: fcn.Norm()}
		}
	}
}

// currentIterate returns the iterate the solve is positioned at:
// the persisted one when resuming, x0 (persisted for later resumption)
// when starting fresh.
func (d *Driver) currentIterate(x0 *StateVector, it int) (*StateVector, error) {
	fname := d.iterateFname(it)
	if _, err := os.Stat(fname); err == nil {
		return LoadStateVector(d.Space, fname)
	}
	if it != 0 {
		return nil, fmt.Errorf("newton: iterate file %s missing at iteration %d", fname, it)
	}
	if x0 == nil {
		return nil, fmt.Errorf("newton: no initial iterate")
	}
	if err := x0.Dump(fname); err != nil {
		return nil, err
	}
	return x0.Copy(), nil
}

// converged reports whether the residual satisfies the absolute
// tolerance, or the relative one measured against the residual of the
// initial iterate.
func (d *Driver) converged(fcn *StateVector, it int) bool {
	if fcn.Converged() {
		return true
	}
	if d.RelTol <= 0 || it == 0 {
		return false
	}
	fcn0, err := LoadStateVector(d.Space, d.fcnFname(0))
	if err != nil {
		return false
	}
	norms, norms0 := fcn.Norm(), fcn0.Norm()
	for m, n := range norms {
		if !(n < d.RelTol*norms0[m]) {
			return false
		}
	}
	return true
}
