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
	"math"
	"path/filepath"
	"testing"

	"github.com/klindsay28/newton"
)

const testTolerance = 1.0e-12

func different(a, b, tolerance float64) bool {
	if math.Abs(a) < tolerance && math.Abs(b) < tolerance {
		return false
	}
	return math.Abs((a-b)/b) > tolerance
}

// testState returns a state on a depth-4 grid with a distinct value in
// every element.
func testState(t *testing.T, s *newton.Space, offset float64) *newton.StateVector {
	v, err := newton.NewStateVector(s, []string{DepthDim}, []int{4})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range v.Modules() {
		for i := range m.Values().Elements {
			m.Values().Elements[i] = offset + float64(i+1)
		}
	}
	return v
}

func TestSpaceLayout(t *testing.T) {
	s := Space()
	defs := s.Modules()
	if len(defs) != 2 {
		t.Fatalf("space has %d tracer modules, want 2", len(defs))
	}
	if defs[0].Name != "x" || len(defs[0].Tracers) != 2 {
		t.Errorf("module x is %v", defs[0])
	}
	if defs[1].Name != "y" || len(defs[1].Tracers) != 1 {
		t.Errorf("module y is %v", defs[1])
	}
}

func TestCompFcnResidual(t *testing.T) {
	s := Space()
	target := testState(t, s, 10)
	ev := &Evaluator{Space: s, Target: target}
	state := testState(t, s, 0)

	dir := t.TempDir()
	res, err := ev.CompFcn(state, filepath.Join(dir, "res.nc"), filepath.Join(dir, "hist.nc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	// F(x) = x − target, so every element of the residual is −10.
	for _, m := range res.Modules() {
		for i, v := range m.Values().Elements {
			if different(v, -10, testTolerance) {
				t.Errorf("module %s element %d: %g != -10", m.Name(), i, v)
			}
		}
	}
	// The residual at the target itself vanishes.
	res, err = ev.CompFcn(target, filepath.Join(dir, "res2.nc"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Errorf("residual at the target has norms %v", res.Norm())
	}
}

func TestCompFcnReplaysLoggedStep(t *testing.T) {
	s := Space()
	target := testState(t, s, 10)
	ev := &Evaluator{Space: s, Target: target}
	workdir := t.TempDir()
	ss, err := newton.NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	resPath := filepath.Join(workdir, "res.nc")
	state := testState(t, s, 0)

	first, err := ev.CompFcn(state, resPath, "", ss)
	if err != nil {
		t.Fatal(err)
	}
	// A repeated call with the step logged reads the result file back
	// instead of recomputing, even for a different input state.
	second, err := ev.CompFcn(target, resPath, "", ss)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range second.Modules() {
		want := first.Modules()[im].Values().Elements
		for i, v := range m.Values().Elements {
			if v != want[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, v, want[i])
			}
		}
	}
}

func TestApplyPrecondIdentity(t *testing.T) {
	s := Space()
	ev := &Evaluator{Space: s, Target: testState(t, s, 10)}
	state := testState(t, s, 0)
	res, err := ev.ApplyPrecondJacobian(state, "", filepath.Join(t.TempDir(), "res.nc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range res.Modules() {
		want := state.Modules()[im].Values().Elements
		for i, v := range m.Values().Elements {
			if v != want[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, v, want[i])
			}
		}
	}
}

func TestApplyPrecondMixing(t *testing.T) {
	s := Space()
	ev := &Evaluator{Space: s, Target: testState(t, s, 10), MixingCoeff: 0.5}
	state := testState(t, s, 0)
	res, err := ev.ApplyPrecondJacobian(state, "", filepath.Join(t.TempDir(), "res.nc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range res.Modules() {
		orig := state.Modules()[im].Values().Elements
		mixed := m.Values().Elements
		n := m.Values().Shape[1]
		for tr := 0; tr < m.Values().Shape[0]; tr++ {
			var sumOrig, sumMixed, varOrig, varMixed float64
			for k := 0; k < n; k++ {
				sumOrig += orig[tr*n+k]
				sumMixed += mixed[tr*n+k]
			}
			// Mixing with no-flux boundaries conserves the column sum.
			if different(sumMixed, sumOrig, 1.0e-10) {
				t.Errorf("module %s tracer %d: column sum %g != %g", m.Name(), tr, sumMixed, sumOrig)
			}
			meanOrig, meanMixed := sumOrig/float64(n), sumMixed/float64(n)
			for k := 0; k < n; k++ {
				varOrig += (orig[tr*n+k] - meanOrig) * (orig[tr*n+k] - meanOrig)
				varMixed += (mixed[tr*n+k] - meanMixed) * (mixed[tr*n+k] - meanMixed)
			}
			// Mixing smooths the column.
			if varMixed >= varOrig {
				t.Errorf("module %s tracer %d: variance %g did not decrease from %g",
					m.Name(), tr, varMixed, varOrig)
			}
		}
	}
}

func TestGenPrecondJacobianArtifact(t *testing.T) {
	s := Space()
	ev := &Evaluator{Space: s, Target: testState(t, s, 10)}
	dir := t.TempDir()
	hist := filepath.Join(dir, "hist.nc")
	if err := testState(t, s, 0).Dump(hist); err != nil {
		t.Fatal(err)
	}
	precond := filepath.Join(dir, "precond.nc")
	if err := ev.GenPrecondJacobian(hist, precond, nil); err != nil {
		t.Fatal(err)
	}
	// The artifact holds every tracer copied from the history.
	got, err := newton.LoadStateVector(s, precond)
	if err != nil {
		t.Fatal(err)
	}
	want := testState(t, s, 0)
	for im, m := range got.Modules() {
		w := want.Modules()[im].Values().Elements
		for i, v := range m.Values().Elements {
			if v != w[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, v, w[i])
			}
		}
	}
}

func TestSolveTestProblem(t *testing.T) {
	workdir := t.TempDir()
	s := Space()
	target := testState(t, s, 10)
	ss, err := newton.NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	d := &newton.Driver{
		Space:         s,
		Evaluator:     &Evaluator{Space: s, Target: target},
		State:         ss,
		MaxIter:       5,
		KrylovMaxIter: 5,
		KrylovRelTol:  1.0e-6,
	}
	x0, err := newton.NewStateVector(s, []string{DepthDim}, []int{4})
	if err != nil {
		t.Fatal(err)
	}
	x, err := d.Solve(x0)
	if err != nil {
		t.Fatal(err)
	}
	if ss.Iteration() != 1 {
		t.Errorf("converged after %d iterations, want 1", ss.Iteration())
	}
	for im, m := range x.Modules() {
		want := target.Modules()[im].Values().Elements
		for i, v := range m.Values().Elements {
			if different(v, want[i], 1.0e-10) {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, v, want[i])
			}
		}
	}

	// Re-entering the finished solve replays the logged steps from the
	// work directory and returns the same solution.
	ss2, err := newton.NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	d.State = ss2
	x2, err := d.Solve(nil)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range x2.Modules() {
		want := x.Modules()[im].Values().Elements
		for i, v := range m.Values().Elements {
			if different(v, want[i], 1.0e-12) {
				t.Errorf("replayed module %s element %d: %g != %g", m.Name(), i, v, want[i])
			}
		}
	}
}
