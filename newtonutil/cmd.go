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

// Package newtonutil holds the configuration and command-line interface
// of the newton solver.
package newtonutil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/klindsay28/newton"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Cfg = viper.New()

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Workdir",
			usage: `
              Workdir is the solve's work directory. It holds the durable
              step log and every intermediate state file; one solve owns
              one work directory.`,
			defaultVal: "newton_workdir",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel sets the logging verbosity (debug, info, warning,
              error).`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile appends the log to the given file instead of
              standard error, so that norms stay inspectable across the
              many short invocations of a suspending solve.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ModelName",
			usage: `
              ModelName selects the model whose steady state is solved
              for: 'testproblem' evaluates the built-in test problem in
              process; 'script' dispatches the configured external
              commands and suspends.`,
			defaultVal: "testproblem",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "TracerModules",
			usage: `
              TracerModules lists the tracer modules of the state space,
              each entry as 'module:tracer1,tracer2'.`,
			defaultVal: []string{"x:x1,x2", "y:y"},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "VarSuffixes",
			usage: `
              VarSuffixes lists the storage suffixes tracers are written
              under in state files (for example _CUR,_OLD); values are
              read back from the first suffix. Empty means bare names.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InitialStateFname",
			usage: `
              InitialStateFname is the state file holding the initial
              Newton iterate.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "TargetFname",
			usage: `
              TargetFname is the state file holding the test problem's
              fixed-point target.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MixingCoeff",
			usage: `
              MixingCoeff is the implicit vertical-mixing strength of the
              test problem's preconditioner. Zero disables mixing.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "NewtonMaxIter",
			usage: `
              NewtonMaxIter caps the outer Newton iteration count;
              exceeding it fails the solve.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "NewtonRelTol",
			usage: `
              NewtonRelTol, if positive, declares convergence once every
              tracer module's residual norm has dropped below this factor
              of its initial value.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "KrylovMaxIter",
			usage: `
              KrylovMaxIter caps the Krylov subspace dimension of each
              inner linear solve.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "KrylovRelTol",
			usage: `
              KrylovRelTol is the relative linear-residual reduction at
              which the inner solve stops.`,
			defaultVal: 1.0e-4,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "CompFcnCmd",
			usage: `
              CompFcnCmd is the external command that evaluates the model
              residual (ModelName 'script' only). It receives the input
              and result state file paths as its final two arguments and
              is expected to re-invoke the driver with --resume when
              done.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "PrecondCmd",
			usage: `
              PrecondCmd is the external command that applies the
              preconditioner (ModelName 'script' only).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GenPrecondCmd",
			usage: `
              GenPrecondCmd is the external command that generates the
              preconditioner artifact (ModelName 'script' only).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "resume",
			usage: `
              resume re-enters a solve in an existing work directory,
              reconstructing its position from the step log.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "in_fname",
			usage: `
              in_fname is the input state file.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{compFcnCmd.Flags(),
				applyPrecondCmd.Flags()},
		},
		{
			name: "res_fname",
			usage: `
              res_fname is the result state file.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{compFcnCmd.Flags(),
				applyPrecondCmd.Flags()},
		},
		{
			name: "hist_fname",
			usage: `
              hist_fname is the model history file.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{compFcnCmd.Flags(),
				genPrecondCmd.Flags()},
		},
		{
			name: "precond_fname",
			usage: `
              precond_fname is the preconditioner artifact file.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{applyPrecondCmd.Flags(),
				genPrecondCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NEWTON")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.String(option.name, option.defaultVal.(string), option.usage)
			case []string:
				set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
			case bool:
				set.Bool(option.name, option.defaultVal.(bool), option.usage)
			case int:
				set.Int(option.name, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64(option.name, option.defaultVal.(float64), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

// setConfig finds and reads in the configuration file, if there is one,
// and configures logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("newton: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return &newton.ConfigurationError{Setting: "LogLevel", Detail: err.Error()}
	}
	logrus.SetLevel(level)
	if logFile := Cfg.GetString("LogFile"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return &newton.ConfigurationError{Setting: "LogFile", Detail: err.Error()}
		}
		logrus.SetOutput(f)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "newton",
	Short: "A restartable Newton-Krylov solver.",
	Long: `newton finds a fixed point of an expensive, externally computed model
residual with a restartable Newton-Krylov iteration. A solve whose residual
evaluations run as external batch jobs exits after dispatching each job and
is re-invoked with --resume when the job completes; the step log in the work
directory carries the solve across process invocations.

Configuration can be changed with a configuration file (--config), with
command-line arguments, or with environment variables.`,
	DisableAutoGenTag: true,
	// Suspension surfaces as an error from Execute; ExitStatus decides
	// what to print, so cobra must not report it itself.
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newton v%s\n", newton.Version)
	},
	DisableAutoGenTag: true,
}

// solveCmd runs or resumes the Newton-Krylov iteration.
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run or resume the Newton-Krylov solve.",
	Long: `solve runs the outer Newton iteration in the configured work directory.
If the configured model dispatches external jobs, solve exits with status 0
after each dispatch and must be re-invoked with --resume once the job has
produced its result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Solve(Cfg)
	},
	DisableAutoGenTag: true,
}

var compFcnCmd = &cobra.Command{
	Use:   "comp_fcn",
	Short: "Evaluate the test-problem residual.",
	Long: `comp_fcn reads the state in in_fname, evaluates the test problem's
residual at it, and writes the result to res_fname (and a history file to
hist_fname, if given).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return CompFcn(Cfg)
	},
	DisableAutoGenTag: true,
}

var applyPrecondCmd = &cobra.Command{
	Use:   "apply_precond_jacobian",
	Short: "Apply the test-problem preconditioner.",
	Long: `apply_precond_jacobian reads the state in in_fname, applies the test
problem's preconditioner using the artifact in precond_fname, and writes the
result to res_fname.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ApplyPrecondJacobian(Cfg)
	},
	DisableAutoGenTag: true,
}

var genPrecondCmd = &cobra.Command{
	Use:   "gen_precond_jacobian",
	Short: "Generate the test-problem preconditioner artifact.",
	Long: `gen_precond_jacobian reduces the model history in hist_fname into the
preconditioner artifact at precond_fname.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return GenPrecondJacobian(Cfg)
	},
	DisableAutoGenTag: true,
}

func init() {
	Root.AddCommand(versionCmd)
	Root.AddCommand(solveCmd)
	Root.AddCommand(compFcnCmd)
	Root.AddCommand(applyPrecondCmd)
	Root.AddCommand(genPrecondCmd)
}

// ExitStatus translates a command error into a process exit code:
// suspension is the designed control-flow exit and maps to 0, every
// other error to 1.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if newton.IsSuspend(err) {
		logrus.Info("external job dispatched, exiting until re-invoked")
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
