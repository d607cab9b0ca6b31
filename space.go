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

import "fmt"

// ModuleDef defines one kind of tracer module: its name, the tracers it
// owns, and the suffixes its tracers are stored under in state files.
// The set of module kinds a solver works with is closed: it is fixed when
// the Space is constructed, so an unknown module name is a construction
// error rather than a runtime fallthrough.
type ModuleDef struct {
	Name    string
	Tracers []string

	// VarSuffixes lists the per-tracer storage suffixes (for example
	// "_CUR" and "_OLD"). Dump writes every suffix; load reads the
	// first. An empty slice means tracers are stored under their bare
	// names.
	VarSuffixes []string
}

// readSuffix returns the suffix under which tracer values are read back.
func (d ModuleDef) readSuffix() string {
	if len(d.VarSuffixes) == 0 {
		return ""
	}
	return d.VarSuffixes[0]
}

// writeSuffixes returns the suffixes under which tracer values are stored.
func (d ModuleDef) writeSuffixes() []string {
	if len(d.VarSuffixes) == 0 {
		return []string{""}
	}
	return d.VarSuffixes
}

// Space is the vector space a solve operates in: an ordered set of
// tracer-module definitions. Two StateVectors are compatible for
// arithmetic only if they belong to the same Space and their modules
// have matching array shapes.
type Space struct {
	defs []ModuleDef
}

// NewSpace validates defs and returns the Space they define.
func NewSpace(defs ...ModuleDef) (*Space, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("newton: a space needs at least one tracer module")
	}
	seen := make(map[string]struct{})
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("newton: tracer module with empty name")
		}
		if _, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("newton: duplicate tracer module %s", d.Name)
		}
		seen[d.Name] = struct{}{}
		if len(d.Tracers) == 0 {
			return nil, fmt.Errorf("newton: tracer module %s has no tracers", d.Name)
		}
	}
	return &Space{defs: defs}, nil
}

// Modules returns the module definitions in order.
func (s *Space) Modules() []ModuleDef { return s.defs }

// ModuleNames returns the module names in order.
func (s *Space) ModuleNames() []string {
	names := make([]string, len(s.defs))
	for i, d := range s.defs {
		names[i] = d.Name
	}
	return names
}
