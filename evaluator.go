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
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Evaluator supplies the model-specific operations a Newton-Krylov
// solve needs: residual evaluation, preconditioner application, and
// preconditioner-artifact generation. Implementations that launch
// external jobs return ErrSuspend from CompFcn and
// ApplyPrecondJacobian; every implementation must guard its work with
// the SolverState so that a re-entered solve reads logged results
// instead of recomputing them.
type Evaluator interface {
	// CompFcn evaluates the residual F(state), writing it to resPath.
	// If histPath is non-empty, a model history file is also produced
	// there for later preconditioner generation.
	CompFcn(state *StateVector, resPath, histPath string, ss *SolverState) (*StateVector, error)

	// ApplyPrecondJacobian applies the preconditioner described by the
	// artifact at precondPath to state, writing the result to resPath.
	ApplyPrecondJacobian(state *StateVector, precondPath, resPath string, ss *SolverState) (*StateVector, error)

	// GenPrecondJacobian generates the preconditioner artifact at
	// precondPath from the model history at histPath.
	GenPrecondJacobian(histPath, precondPath string, ss *SolverState) error
}

// ScriptEvaluator implements Evaluator by dispatching external commands
// through the suspend/resume protocol. CompFcnCmd and PrecondCmd are
// started fire-and-forget and produce ErrSuspend; GenPrecondCmd runs
// synchronously.
type ScriptEvaluator struct {
	Space         *Space
	CompFcnCmd    string
	PrecondCmd    string
	GenPrecondCmd string
}

// CompFcn dispatches CompFcnCmd with the input and result paths
// (plus the history path, when requested) as arguments.
func (e *ScriptEvaluator) CompFcn(state *StateVector, resPath, histPath string, ss *SolverState) (*StateVector, error) {
	var args []string
	if histPath != "" {
		args = append(args, "--hist_fname", histPath)
	}
	return state.RunExtCmd(e.CompFcnCmd, args, resPath, ss)
}

// ApplyPrecondJacobian dispatches PrecondCmd with the preconditioner
// artifact path plus the input and result paths as arguments.
func (e *ScriptEvaluator) ApplyPrecondJacobian(state *StateVector, precondPath, resPath string, ss *SolverState) (*StateVector, error) {
	return state.RunExtCmd(e.PrecondCmd, []string{"--precond_fname", precondPath}, resPath, ss)
}

// GenPrecondJacobian runs GenPrecondCmd synchronously, guarded by the
// step log.
func (e *ScriptEvaluator) GenPrecondJacobian(histPath, precondPath string, ss *SolverState) error {
	step := fmt.Sprintf("calling %s for %s", e.GenPrecondCmd, precondPath)
	if ss.StepLogged(step) {
		logrus.Infof("%q logged, skipping %s", step, e.GenPrecondCmd)
		return nil
	}
	cmd := exec.Command(e.GenPrecondCmd, "--hist_fname", histPath, "--precond_fname", precondPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &ExternalCommandError{Cmd: e.GenPrecondCmd,
			Err: fmt.Errorf("%v: %s", err, out)}
	}
	return ss.LogStep(step)
}
