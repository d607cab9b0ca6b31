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
	"os"
	"path/filepath"
	"testing"
)

func TestSolverStateFresh(t *testing.T) {
	workdir := filepath.Join(t.TempDir(), "work")
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if ss.Iteration() != 0 {
		t.Errorf("fresh state has iteration %d", ss.Iteration())
	}
	if ss.StepLogged("anything") {
		t.Error("fresh state has a logged step")
	}
	if _, err := ss.CurrentStepLogged(); err == nil {
		t.Error("expected an error with no step in flight")
	}
	// The work directory must have been created.
	if _, err := os.Stat(workdir); err != nil {
		t.Error(err)
	}
}

func TestSolverStatePersistence(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if err := ss.LogStep("calling comp_fcn for fcn_00.nc"); err != nil {
		t.Fatal(err)
	}
	if _, err := ss.IncIteration(); err != nil {
		t.Fatal(err)
	}

	// A new invocation sharing the directory sees the same record.
	ss2, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if !ss2.StepLogged("calling comp_fcn for fcn_00.nc") {
		t.Error("logged step lost across invocations")
	}
	if ss2.StepLogged("calling comp_fcn for fcn_01.nc") {
		t.Error("unlogged step reported as logged")
	}
	if ss2.Iteration() != 1 {
		t.Errorf("iteration counter is %d after one increment", ss2.Iteration())
	}
}

func TestLogStepIdempotent(t *testing.T) {
	ss, err := NewSolverState(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := ss.LogStep("step"); err != nil {
			t.Fatal(err)
		}
	}
	if len(ss.state.StepsLogged) != 1 {
		t.Errorf("step recorded %d times", len(ss.state.StepsLogged))
	}
}

func TestLogEmptyStep(t *testing.T) {
	ss, err := NewSolverState(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = ss.LogStep("")
	if err == nil {
		t.Fatal("expected an error logging an empty step")
	}
	if _, ok := err.(*UnknownStepError); !ok {
		t.Errorf("expected an *UnknownStepError, got %T", err)
	}
}

func TestCurrentStep(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	ss.SetCurrentStep("calling comp_fcn for fcn_00.nc")
	logged, err := ss.CurrentStepLogged()
	if err != nil {
		t.Fatal(err)
	}
	if logged {
		t.Error("in-flight step reported as logged before LogCurrentStep")
	}
	if err := ss.LogCurrentStep(); err != nil {
		t.Fatal(err)
	}
	logged, err = ss.CurrentStepLogged()
	if err != nil {
		t.Fatal(err)
	}
	if !logged {
		t.Error("in-flight step not logged after LogCurrentStep")
	}
}

func TestFlushLeavesNoTemporary(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if err := ss.LogStep("step"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(workdir, solverStateFname)); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(workdir, solverStateFname+".tmp")); !os.IsNotExist(err) {
		t.Error("temporary state file left behind")
	}
}
