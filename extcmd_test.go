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
	"os"
	"path/filepath"
	"testing"
)

func TestRunExtCmdSuspends(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	s := testSpace(t)
	v := testVector(t, s, 0.5, 1)
	resPath := filepath.Join(workdir, "res.nc")

	res, err := v.RunExtCmd("true", nil, resPath, ss)
	if !IsSuspend(err) {
		t.Fatalf("expected a suspension, got %v", err)
	}
	if res != nil {
		t.Error("a suspended call must not return a state")
	}

	// The input state must have been staged for the command.
	inPath := filepath.Join(workdir, extCmdInFname)
	staged, err := LoadStateVector(s, inPath)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range staged.Modules() {
		want := v.Modules()[im].Values().Elements
		for i, val := range m.Values().Elements {
			if val != want[i] {
				t.Errorf("staged module %s element %d: %g != %g", m.Name(), i, val, want[i])
			}
		}
	}

	// Dispatching records the in-flight step but must not log it as
	// done; only a verified result file does that.
	step := fmt.Sprintf("calling true for %s", resPath)
	if ss.StepLogged(step) {
		t.Errorf("step %q logged as done before its result exists", step)
	}
	ss2, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if ss2.StepLogged(step) {
		t.Errorf("step %q logged as done across invocations", step)
	}
	if ss2.CurrentStep() != step {
		t.Errorf("in-flight step %q not recorded, got %q", step, ss2.CurrentStep())
	}
}

func TestRunExtCmdLogsCompletionAfterResult(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	s := testSpace(t)
	v := testVector(t, s, 0.5, 1)
	resPath := filepath.Join(workdir, "res.nc")

	if _, err := v.RunExtCmd("true", nil, resPath, ss); !IsSuspend(err) {
		t.Fatalf("expected a suspension, got %v", err)
	}

	// The dispatched command finishes and writes its result; a fresh
	// invocation reads it back and logs the step only then.
	want := testVector(t, s, -3, 2)
	if err := want.Dump(resPath); err != nil {
		t.Fatal(err)
	}
	ss2, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	res, err := v.RunExtCmd("true", nil, resPath, ss2)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range res.Modules() {
		w := want.Modules()[im].Values().Elements
		for i, val := range m.Values().Elements {
			if val != w[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, val, w[i])
			}
		}
	}
	step := fmt.Sprintf("calling true for %s", resPath)
	if !ss2.StepLogged(step) {
		t.Errorf("step %q not logged after its result was read", step)
	}
	// Further invocations skip the command entirely.
	if _, err := v.RunExtCmd("true", nil, resPath, ss2); err != nil {
		t.Fatal(err)
	}
}

func TestRunExtCmdLoggedSkipsDispatch(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	s := testSpace(t)
	v := testVector(t, s, 0.5, 1)
	want := testVector(t, s, -3, 2)
	resPath := filepath.Join(workdir, "res.nc")
	if err := want.Dump(resPath); err != nil {
		t.Fatal(err)
	}
	if err := ss.LogStep(fmt.Sprintf("calling %s for %s", "no-such-command", resPath)); err != nil {
		t.Fatal(err)
	}

	// The command does not exist, so a dispatch attempt would fail; a
	// logged step must read the result instead.
	res, err := v.RunExtCmd("no-such-command", nil, resPath, ss)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range res.Modules() {
		w := want.Modules()[im].Values().Elements
		for i, val := range m.Values().Elements {
			if val != w[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, val, w[i])
			}
		}
	}
}

func TestRunExtCmdDispatchFailure(t *testing.T) {
	workdir := t.TempDir()
	ss, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	s := testSpace(t)
	v := testVector(t, s, 0.5, 1)
	resPath := filepath.Join(workdir, "res.nc")

	_, err = v.RunExtCmd("no-such-command", nil, resPath, ss)
	if err == nil || IsSuspend(err) {
		t.Fatalf("expected a dispatch failure, got %v", err)
	}
	if _, ok := err.(*ExternalCommandError); !ok {
		t.Errorf("expected an *ExternalCommandError, got %T", err)
	}
	// No result was produced, so the result file must not exist.
	if _, err := os.Stat(resPath); !os.IsNotExist(err) {
		t.Error("result file exists after a failed dispatch")
	}
	step := fmt.Sprintf("calling no-such-command for %s", resPath)
	if ss.StepLogged(step) {
		t.Errorf("step %q logged after a failed dispatch", step)
	}

	// The failed step was never logged, so a fresh invocation retries
	// the dispatch from scratch instead of waiting on a result.
	ss2, err := NewSolverState(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if ss2.StepLogged(step) {
		t.Errorf("failed step %q logged across invocations", step)
	}
	if _, err := v.RunExtCmd("true", nil, filepath.Join(workdir, "res.nc"), ss2); !IsSuspend(err) {
		t.Fatalf("expected the retry to dispatch and suspend, got %v", err)
	}
}
