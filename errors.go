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
	"errors"
	"fmt"
)

// ErrSuspend signals that the solver has dispatched an external job and
// the current process should exit cleanly. It is control flow, not a
// failure: the solver is re-entered by a later process invocation after
// the job completes. Callers check for it with errors.Is.
var ErrSuspend = errors.New("newton: solver suspended pending external job")

// IsSuspend reports whether err signals a deliberate suspension.
func IsSuspend(err error) bool { return errors.Is(err, ErrSuspend) }

// ShapeMismatchError reports arithmetic between vectors with
// incompatible tracer-module sets or array shapes.
type ShapeMismatchError struct {
	Module string
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("newton: shape mismatch: %s", e.Detail)
	}
	return fmt.Sprintf("newton: shape mismatch in tracer module %s: %s", e.Module, e.Detail)
}

// UnknownStepError reports a malformed or ambiguous step key.
type UnknownStepError struct {
	Step string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("newton: unknown step %q", e.Step)
}

// ConfigurationError reports a missing or invalid required setting,
// detected at startup.
type ConfigurationError struct {
	Setting string
	Detail  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("newton: configuration: %s: %s", e.Setting, e.Detail)
}

// ConvergenceFailureError reports that the outer Newton iteration cap was
// exceeded without the residual converging. It is reported to the
// operator, not retried.
type ConvergenceFailureError struct {
	Iterations int
	Norms      []float64
}

func (e *ConvergenceFailureError) Error() string {
	return fmt.Sprintf("newton: no convergence after %d Newton iterations, residual norms %v",
		e.Iterations, e.Norms)
}

// ExternalCommandError reports a failure dispatching or running an
// external command. The corresponding step is never logged, so a future
// re-invocation retries it from scratch.
type ExternalCommandError struct {
	Cmd string
	Err error
}

func (e *ExternalCommandError) Error() string {
	return fmt.Sprintf("newton: external command %s: %v", e.Cmd, e.Err)
}

func (e *ExternalCommandError) Unwrap() error { return e.Err }
