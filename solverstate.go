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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// solverStateFname is the name of the durable solver-state file inside a
// work directory.
const solverStateFname = "solver_state.json"

// SolverState is the durable record that lets one logical solve survive
// repeated process termination: an append-only set of completed step
// keys, the step currently in flight, and the Newton iteration counter,
// all persisted in the solve's work directory. A step key, once logged,
// is never re-executed by any future invocation sharing that directory;
// the step's output file is read instead.
//
// One work directory belongs to one solve. Concurrent solvers must not
// share a work directory; no lock enforces this.
type SolverState struct {
	workdir string
	fname   string
	state   savedState
	logged  map[string]struct{}
}

// savedState is the on-disk layout of the solver state.
type savedState struct {
	CurrentStep string   `json:"current_step"`
	Iteration   int      `json:"iteration"`
	StepsLogged []string `json:"steps_logged"`
}

// NewSolverState opens the solver state in workdir, creating the
// directory and an empty state if none exists yet.
func NewSolverState(workdir string) (*SolverState, error) {
	if err := os.MkdirAll(workdir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("newton: creating work directory: %v", err)
	}
	ss := &SolverState{
		workdir: workdir,
		fname:   filepath.Join(workdir, solverStateFname),
		logged:  make(map[string]struct{}),
	}
	b, err := os.ReadFile(ss.fname)
	if os.IsNotExist(err) {
		logrus.Debugf("no solver state in %s, starting fresh", workdir)
		return ss, nil
	}
	if err != nil {
		return nil, fmt.Errorf("newton: reading solver state: %v", err)
	}
	if err := json.Unmarshal(b, &ss.state); err != nil {
		return nil, fmt.Errorf("newton: parsing solver state %s: %v", ss.fname, err)
	}
	for _, step := range ss.state.StepsLogged {
		ss.logged[step] = struct{}{}
	}
	logrus.Debugf("loaded solver state from %s, iteration %d, %d steps logged",
		workdir, ss.state.Iteration, len(ss.logged))
	return ss, nil
}

// Workdir returns the work directory the state belongs to.
func (ss *SolverState) Workdir() string { return ss.workdir }

// SetCurrentStep records which step is in flight. It does not mark the
// step complete and does not by itself touch durable storage.
func (ss *SolverState) SetCurrentStep(step string) {
	ss.state.CurrentStep = step
}

// CurrentStep returns the step recorded as in flight.
func (ss *SolverState) CurrentStep() string { return ss.state.CurrentStep }

// CurrentStepLogged reports whether the in-flight step has been logged.
// It returns an UnknownStepError if no step is in flight.
func (ss *SolverState) CurrentStepLogged() (bool, error) {
	if ss.state.CurrentStep == "" {
		return false, &UnknownStepError{Step: ""}
	}
	return ss.StepLogged(ss.state.CurrentStep), nil
}

// StepLogged reports whether step has been durably marked complete.
func (ss *SolverState) StepLogged(step string) bool {
	_, ok := ss.logged[step]
	return ok
}

// LogStep durably marks step complete. Logging an already-logged step is
// a no-op. An empty step key is an UnknownStepError.
func (ss *SolverState) LogStep(step string) error {
	if step == "" {
		return &UnknownStepError{Step: step}
	}
	if ss.StepLogged(step) {
		return nil
	}
	ss.logged[step] = struct{}{}
	ss.state.StepsLogged = append(ss.state.StepsLogged, step)
	return ss.Flush()
}

// LogCurrentStep durably marks the in-flight step complete.
func (ss *SolverState) LogCurrentStep() error {
	return ss.LogStep(ss.state.CurrentStep)
}

// Iteration returns the persisted Newton iteration counter.
func (ss *SolverState) Iteration() int { return ss.state.Iteration }

// IncIteration durably increments the Newton iteration counter and
// returns the new value.
func (ss *SolverState) IncIteration() (int, error) {
	ss.state.Iteration++
	if err := ss.Flush(); err != nil {
		return 0, err
	}
	return ss.state.Iteration, nil
}

// Flush forces a durable write of the state. The write is atomic: the
// state is written to a temporary file which then replaces the old one,
// so a crash mid-flush leaves the previous state intact.
func (ss *SolverState) Flush() error {
	b, err := json.MarshalIndent(&ss.state, "", "  ")
	if err != nil {
		return fmt.Errorf("newton: encoding solver state: %v", err)
	}
	tmp := ss.fname + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("newton: flushing solver state: %v", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("newton: flushing solver state: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("newton: syncing solver state: %v", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("newton: flushing solver state: %v", err)
	}
	if err := os.Rename(tmp, ss.fname); err != nil {
		return fmt.Errorf("newton: replacing solver state: %v", err)
	}
	return nil
}
