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
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// extCmdInFname is the name of the staging file an external command
// reads its input state from.
const extCmdInFname = "ext_in.nc"

// RunExtCmd hands v to an external asynchronous command that is expected
// to write a result state to resPath. The command receives the input
// file path and resPath as its final two arguments.
//
// If the step has already been logged by a prior invocation, the result
// is read from resPath and returned with no external work performed. If
// the step is unlogged but a result file already exists, the command
// finished between invocations: the result is read and the step is
// logged only then, after verification. Otherwise v is written to the
// staging file, the in-flight step is flushed to the solver state, the
// command is started without waiting for it, and ErrSuspend is returned:
// the caller is expected to let the process exit, and the computation
// resumes in a future invocation triggered after the command completes.
// Nothing is logged when the dispatch itself fails, so a future
// invocation retries the step from scratch. An abandoned job (no result
// file on re-entry) is re-dispatched the same way.
func (v *StateVector) RunExtCmd(cmdName string, args []string, resPath string, ss *SolverState) (*StateVector, error) {
	step := fmt.Sprintf("calling %s for %s", cmdName, resPath)
	ss.SetCurrentStep(step)

	logged, err := ss.CurrentStepLogged()
	if err != nil {
		return nil, err
	}
	if logged {
		logrus.Infof("%q logged, skipping %s and returning result", step, cmdName)
		if err := waitForFile(resPath); err != nil {
			return nil, &ExternalCommandError{Cmd: cmdName, Err: err}
		}
		return LoadStateVector(v.space, resPath)
	}

	if _, err := os.Stat(resPath); err == nil {
		logrus.Infof("%s produced %s, logging %q and returning result", cmdName, resPath, step)
		res, err := LoadStateVector(v.space, resPath)
		if err != nil {
			return nil, err
		}
		if err := ss.LogStep(step); err != nil {
			return nil, err
		}
		return res, nil
	}

	logrus.Infof("%q not logged, invoking %s and suspending", step, cmdName)

	inPath := filepath.Join(ss.Workdir(), extCmdInFname)
	if err := v.Dump(inPath); err != nil {
		return nil, err
	}
	// Record the in-flight step durably before dispatch. The step is
	// only logged as done after the result file has been read back, so a
	// failed or abandoned dispatch leaves the log untouched.
	if err := ss.Flush(); err != nil {
		return nil, err
	}

	cmd := exec.Command(cmdName, append(append([]string{}, args...), inPath, resPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, &ExternalCommandError{Cmd: cmdName, Err: err}
	}
	if err := cmd.Process.Release(); err != nil {
		return nil, &ExternalCommandError{Cmd: cmdName, Err: err}
	}
	return nil, ErrSuspend
}

// waitForFile waits for path to exist, retrying briefly with exponential
// backoff. A resumed solve can be re-entered moments before its result
// file lands on a shared filesystem; a file that never appears means the
// external job was abandoned.
func waitForFile(path string) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.RetryNotify(
		func() error {
			_, err := os.Stat(path)
			return err
		},
		b,
		func(err error, d time.Duration) {
			logrus.Debugf("waiting for %s: %v, retrying in %v", path, err, d)
		},
	)
}
