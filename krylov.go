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
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// JVPEpsScale is the default relative perturbation magnitude for
// finite-difference Jacobian-vector products.
const JVPEpsScale = 1.0e-5

// ModGramSchmidt orthogonalizes v in place against basis using modified
// Gram-Schmidt: each basis vector's component is removed from the
// already-updated v before the next projection is computed. It returns
// the projection coefficients h[i][m] for basis vector i and tracer
// module m. Basis vectors are assumed unit-norm.
func ModGramSchmidt(v *StateVector, basis []*StateVector) ([][]float64, error) {
	h := make([][]float64, len(basis))
	for i, b := range basis {
		hi, err := v.Dot(b)
		if err != nil {
			return nil, err
		}
		neg := make([]float64, len(hi))
		for m, c := range hi {
			neg[m] = -c
		}
		if err := v.AddScaledModulesInPlace(neg, b); err != nil {
			return nil, err
		}
		h[i] = hi
	}
	return h, nil
}

// LinComb returns the linear combination Σ_j coeffs[j]·basis[j], where
// coeffs[j] holds one coefficient per tracer module.
func LinComb(coeffs [][]float64, basis []*StateVector) (*StateVector, error) {
	if len(coeffs) != len(basis) {
		return nil, fmt.Errorf("newton: %d coefficient sets for %d basis vectors",
			len(coeffs), len(basis))
	}
	if len(basis) == 0 {
		return nil, fmt.Errorf("newton: linear combination of an empty basis")
	}
	res, err := basis[0].ScaleModules(coeffs[0])
	if err != nil {
		return nil, err
	}
	for j := 1; j < len(basis); j++ {
		if err := res.AddScaledModulesInPlace(coeffs[j], basis[j]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// JacobianVectorProduct approximates J(x)·direction by a one-sided
// finite difference: (F(x + σ·direction) − fcnX) / σ, with per-module
// σ = epsScale·‖x‖. A zero iterate instead takes σ = epsScale·‖fcnX‖,
// keeping the perturbation proportional to the problem magnitude so the
// rounding error of the difference stays below the convergence
// tolerance. direction must be unit-norm per module. The perturbed
// residual is evaluated through ev and written to resPath, so the call
// can suspend; on re-entry the logged result is read instead.
func JacobianVectorProduct(x, direction, fcnX *StateVector, epsScale float64,
	ev Evaluator, resPath string, ss *SolverState) (*StateVector, error) {
	sigma := x.Norm()
	fnorm := fcnX.Norm()
	for m := range sigma {
		sigma[m] *= epsScale
		if sigma[m] == 0 {
			sigma[m] = epsScale * fnorm[m]
		}
		if sigma[m] == 0 {
			sigma[m] = epsScale
		}
	}

	perturbed := x.Copy()
	if err := perturbed.AddScaledModulesInPlace(sigma, direction); err != nil {
		return nil, err
	}
	res, err := ev.CompFcn(perturbed, resPath, "", ss)
	if err != nil {
		return nil, err
	}
	jv, err := res.Sub(fcnX)
	if err != nil {
		return nil, err
	}
	if err := jv.DivModulesInPlace(sigma); err != nil {
		return nil, err
	}
	return jv, nil
}

// KrylovResult is the outcome of building a Krylov subspace: the
// least-squares coefficients of the Newton step in the preconditioned
// basis, and the preconditioned basis vectors themselves.
type KrylovResult struct {
	Coeffs       [][]float64 // [basis index][tracer module]
	PrecondBasis []*StateVector
}

// KrylovSolver approximately solves the Newton linear system
// J(x)·s = F(x) with right-preconditioned GMRES, one Hessenberg system
// per tracer module. Every basis and preconditioned-basis vector is
// written to a numbered file in the solver's directory; residual
// evaluations go through the Evaluator and may suspend, in which case a
// future invocation replays the build from the logged result files.
type KrylovSolver struct {
	ev          Evaluator
	ss          *SolverState
	dir         string
	precondPath string
	maxIter     int
	relTol      float64
}

// NewKrylovSolver returns a solver writing its basis files to dir, using
// the preconditioner artifact at precondPath.
func NewKrylovSolver(ev Evaluator, ss *SolverState, dir, precondPath string,
	maxIter int, relTol float64) (*KrylovSolver, error) {
	if maxIter < 1 {
		return nil, &ConfigurationError{Setting: "KrylovMaxIter",
			Detail: fmt.Sprintf("must be positive, got %d", maxIter)}
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("newton: creating krylov directory: %v", err)
	}
	return &KrylovSolver{
		ev: ev, ss: ss, dir: dir, precondPath: precondPath,
		maxIter: maxIter, relTol: relTol,
	}, nil
}

func (k *KrylovSolver) basisFname(j int) string {
	return filepath.Join(k.dir, fmt.Sprintf("basis_%02d.nc", j))
}

func (k *KrylovSolver) precondBasisFname(j int) string {
	return filepath.Join(k.dir, fmt.Sprintf("precond_basis_%02d.nc", j))
}

func (k *KrylovSolver) fcnResFname(j int) string {
	return filepath.Join(k.dir, fmt.Sprintf("fcn_res_%02d.nc", j))
}

// Build constructs the Krylov subspace for the system J(x)·s = fcnX and
// returns the step coefficients. Iteration stops when the linear
// residual estimate of every tracer module has dropped below relTol of
// its initial value, or after maxIter iterations.
func (k *KrylovSolver) Build(x, fcnX *StateVector) (*KrylovResult, error) {
	nm := len(fcnX.Modules())
	beta := fcnX.Norm()
	for m, b := range beta {
		if b == 0 {
			return nil, fmt.Errorf("newton: krylov: residual of tracer module %s is zero",
				fcnX.Modules()[m].Name())
		}
	}

	v0 := fcnX.Copy()
	if err := v0.DivModulesInPlace(beta); err != nil {
		return nil, err
	}
	basis := []*StateVector{v0}
	if err := v0.Dump(k.basisFname(0)); err != nil {
		return nil, err
	}

	// One Hessenberg matrix per tracer module, stored column-major:
	// hCols[j][m] is column j for module m, of length j+2.
	var hCols [][][]float64
	var precondBasis []*StateVector
	var coeffs [][]float64

	for j := 0; j < k.maxIter; j++ {
		z, err := k.ev.ApplyPrecondJacobian(basis[j], k.precondPath, k.precondBasisFname(j), k.ss)
		if err != nil {
			return nil, err
		}
		precondBasis = append(precondBasis, z)

		znorm := z.Norm()
		for m, n := range znorm {
			if n == 0 {
				return nil, fmt.Errorf("newton: krylov: preconditioned direction %d vanished in tracer module %s",
					j, z.Modules()[m].Name())
			}
		}
		dir := z.Copy()
		if err := dir.DivModulesInPlace(znorm); err != nil {
			return nil, err
		}
		w, err := JacobianVectorProduct(x, dir, fcnX, JVPEpsScale, k.ev, k.fcnResFname(j), k.ss)
		if err != nil {
			return nil, err
		}
		if err := w.ScaleModulesInPlace(znorm); err != nil {
			return nil, err
		}

		h, err := ModGramSchmidt(w, basis)
		if err != nil {
			return nil, err
		}
		wnorm := w.Norm()
		col := make([][]float64, nm)
		for m := 0; m < nm; m++ {
			col[m] = make([]float64, j+2)
			for i := 0; i <= j; i++ {
				col[m][i] = h[i][m]
			}
			col[m][j+1] = wnorm[m]
		}
		hCols = append(hCols, col)

		var resid []float64
		coeffs, resid, err = solveHessenberg(hCols, beta, nm)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("krylov iteration %d, linear residuals %v", j, resid)

		done := true
		for m := 0; m < nm; m++ {
			if resid[m] >= k.relTol*beta[m] {
				done = false
			}
		}
		if done || j == k.maxIter-1 {
			break
		}

		// A vanished wnorm means that module's Krylov space is
		// invariant: its least-squares solution is already exact, and
		// normalizing would divide by zero. The basis is shared across
		// modules, so stop extending it at the first such module.
		breakdown := false
		for _, n := range wnorm {
			if n <= 1.0e-14 {
				breakdown = true
			}
		}
		if breakdown {
			break
		}

		if err := w.DivModulesInPlace(wnorm); err != nil {
			return nil, err
		}
		basis = append(basis, w)
		if err := w.Dump(k.basisFname(j + 1)); err != nil {
			return nil, err
		}
	}

	return &KrylovResult{Coeffs: coeffs, PrecondBasis: precondBasis}, nil
}

// solveHessenberg solves, for each tracer module, the least-squares
// problem min ‖β·e1 − H·y‖ over the Hessenberg columns built so far.
// It returns the coefficients y per basis index per module and the
// per-module linear residual norms.
func solveHessenberg(hCols [][][]float64, beta []float64, nm int) ([][]float64, []float64, error) {
	ncols := len(hCols)
	nrows := ncols + 1
	coeffs := make([][]float64, ncols)
	for j := range coeffs {
		coeffs[j] = make([]float64, nm)
	}
	resid := make([]float64, nm)

	for m := 0; m < nm; m++ {
		hm := mat.NewDense(nrows, ncols, nil)
		for j := 0; j < ncols; j++ {
			for i := 0; i < len(hCols[j][m]) && i < nrows; i++ {
				hm.Set(i, j, hCols[j][m][i])
			}
		}
		rhs := mat.NewVecDense(nrows, nil)
		rhs.SetVec(0, beta[m])

		var y mat.VecDense
		if err := y.SolveVec(hm, rhs); err != nil {
			return nil, nil, fmt.Errorf("newton: krylov least-squares solve: %v", err)
		}
		for j := 0; j < ncols; j++ {
			coeffs[j][m] = y.AtVec(j)
		}

		var r mat.VecDense
		r.MulVec(hm, &y)
		var sum float64
		for i := 0; i < nrows; i++ {
			d := rhs.AtVec(i) - r.AtVec(i)
			sum += d * d
		}
		resid[m] = math.Sqrt(sum)
	}
	return coeffs, resid, nil
}
