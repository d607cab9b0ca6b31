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

package newtonutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/klindsay28/newton"
	"github.com/klindsay28/newton/testproblem"
)

// SolverSpace builds the state space from the TracerModules and
// VarSuffixes settings.
func SolverSpace(cfg *viper.Viper) (*newton.Space, error) {
	entries := cast.ToStringSlice(cfg.Get("TracerModules"))
	if len(entries) == 0 {
		return nil, &newton.ConfigurationError{Setting: "TracerModules",
			Detail: "at least one tracer module is required"}
	}
	suffixes := cast.ToStringSlice(cfg.Get("VarSuffixes"))
	defs := make([]newton.ModuleDef, len(entries))
	for i, entry := range entries {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &newton.ConfigurationError{Setting: "TracerModules",
				Detail: fmt.Sprintf("%q is not of the form module:tracer1,tracer2", entry)}
		}
		defs[i] = newton.ModuleDef{
			Name:        parts[0],
			Tracers:     strings.Split(parts[1], ","),
			VarSuffixes: suffixes,
		}
	}
	space, err := newton.NewSpace(defs...)
	if err != nil {
		return nil, &newton.ConfigurationError{Setting: "TracerModules", Detail: err.Error()}
	}
	return space, nil
}

// solverEvaluator builds the evaluator selected by ModelName.
func solverEvaluator(cfg *viper.Viper, space *newton.Space) (newton.Evaluator, error) {
	switch name := cfg.GetString("ModelName"); name {
	case "testproblem":
		target, err := testProblemTarget(cfg, space)
		if err != nil {
			return nil, err
		}
		return &testproblem.Evaluator{
			Space:       space,
			Target:      target,
			MixingCoeff: cast.ToFloat64(cfg.Get("MixingCoeff")),
		}, nil
	case "script":
		for _, setting := range []string{"CompFcnCmd", "PrecondCmd", "GenPrecondCmd"} {
			if cfg.GetString(setting) == "" {
				return nil, &newton.ConfigurationError{Setting: setting,
					Detail: "required when ModelName is 'script'"}
			}
		}
		return &newton.ScriptEvaluator{
			Space:         space,
			CompFcnCmd:    cfg.GetString("CompFcnCmd"),
			PrecondCmd:    cfg.GetString("PrecondCmd"),
			GenPrecondCmd: cfg.GetString("GenPrecondCmd"),
		}, nil
	default:
		return nil, &newton.ConfigurationError{Setting: "ModelName",
			Detail: fmt.Sprintf("%q is not 'testproblem' or 'script'", name)}
	}
}

func testProblemTarget(cfg *viper.Viper, space *newton.Space) (*newton.StateVector, error) {
	fname := cfg.GetString("TargetFname")
	if fname == "" {
		return nil, &newton.ConfigurationError{Setting: "TargetFname",
			Detail: "required when ModelName is 'testproblem'"}
	}
	target, err := newton.LoadStateVector(space, fname)
	if err != nil {
		return nil, fmt.Errorf("newton: loading target state: %v", err)
	}
	return target, nil
}

// Solve runs or resumes the Newton-Krylov iteration described by cfg.
// It returns newton.ErrSuspend when an external job has been dispatched
// and the process should exit cleanly.
func Solve(cfg *viper.Viper) error {
	space, err := SolverSpace(cfg)
	if err != nil {
		return err
	}
	workdir := cfg.GetString("Workdir")
	if !cfg.GetBool("resume") {
		if _, err := os.Stat(filepath.Join(workdir, "solver_state.json")); err == nil {
			return &newton.ConfigurationError{Setting: "Workdir",
				Detail: fmt.Sprintf("%s holds an earlier solve; pass --resume to continue it", workdir)}
		}
	}
	ss, err := newton.NewSolverState(workdir)
	if err != nil {
		return err
	}
	ev, err := solverEvaluator(cfg, space)
	if err != nil {
		return err
	}
	x0, err := initialIterate(cfg, space)
	if err != nil {
		return err
	}
	d := &newton.Driver{
		Space:         space,
		Evaluator:     ev,
		State:         ss,
		MaxIter:       cfg.GetInt("NewtonMaxIter"),
		RelTol:        cast.ToFloat64(cfg.Get("NewtonRelTol")),
		KrylovMaxIter: cfg.GetInt("KrylovMaxIter"),
		KrylovRelTol:  cast.ToFloat64(cfg.Get("KrylovRelTol")),
	}
	x, err := d.Solve(x0)
	if err != nil {
		return err
	}
	x.Log("solution")
	logrus.WithField("workdir", workdir).Info("solve converged")
	return nil
}

// initialIterate loads the configured initial Newton iterate.
func initialIterate(cfg *viper.Viper, space *newton.Space) (*newton.StateVector, error) {
	fname := cfg.GetString("InitialStateFname")
	if fname == "" {
		return nil, &newton.ConfigurationError{Setting: "InitialStateFname", Detail: "required"}
	}
	x0, err := newton.LoadStateVector(space, fname)
	if err != nil {
		return nil, fmt.Errorf("newton: loading initial state: %v", err)
	}
	return x0, nil
}

// CompFcn implements the comp_fcn command: it evaluates the test
// problem's residual on the state in in_fname.
func CompFcn(cfg *viper.Viper) error {
	_, ev, state, err := commandSetup(cfg)
	if err != nil {
		return err
	}
	_, err = ev.CompFcn(state, cfg.GetString("res_fname"), cfg.GetString("hist_fname"), nil)
	return err
}

// ApplyPrecondJacobian implements the apply_precond_jacobian command.
func ApplyPrecondJacobian(cfg *viper.Viper) error {
	_, ev, state, err := commandSetup(cfg)
	if err != nil {
		return err
	}
	_, err = ev.ApplyPrecondJacobian(state, cfg.GetString("precond_fname"),
		cfg.GetString("res_fname"), nil)
	return err
}

// GenPrecondJacobian implements the gen_precond_jacobian command.
func GenPrecondJacobian(cfg *viper.Viper) error {
	space, err := SolverSpace(cfg)
	if err != nil {
		return err
	}
	ev, err := commandEvaluator(cfg, space)
	if err != nil {
		return err
	}
	if cfg.GetString("hist_fname") == "" {
		return &newton.ConfigurationError{Setting: "hist_fname", Detail: "required"}
	}
	if cfg.GetString("precond_fname") == "" {
		return &newton.ConfigurationError{Setting: "precond_fname", Detail: "required"}
	}
	return ev.GenPrecondJacobian(cfg.GetString("hist_fname"), cfg.GetString("precond_fname"), nil)
}

// commandEvaluator builds the evaluator for the standalone evaluation
// commands. Those run without a solver state, so only the built-in test
// problem is allowed; a script evaluator would try to dispatch and log
// further external commands of its own.
func commandEvaluator(cfg *viper.Viper, space *newton.Space) (newton.Evaluator, error) {
	if name := cfg.GetString("ModelName"); name != "testproblem" {
		return nil, &newton.ConfigurationError{Setting: "ModelName",
			Detail: fmt.Sprintf("%q cannot be evaluated directly; this command requires 'testproblem'", name)}
	}
	return solverEvaluator(cfg, space)
}

func commandSetup(cfg *viper.Viper) (*newton.Space, newton.Evaluator, *newton.StateVector, error) {
	space, err := SolverSpace(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ev, err := commandEvaluator(cfg, space)
	if err != nil {
		return nil, nil, nil, err
	}
	inFname := cfg.GetString("in_fname")
	if inFname == "" {
		return nil, nil, nil, &newton.ConfigurationError{Setting: "in_fname", Detail: "required"}
	}
	if cfg.GetString("res_fname") == "" {
		return nil, nil, nil, &newton.ConfigurationError{Setting: "res_fname", Detail: "required"}
	}
	state, err := newton.LoadStateVector(space, inFname)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("newton: loading input state: %v", err)
	}
	return space, ev, state, nil
}
