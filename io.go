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

	"github.com/ctessum/cdf"
)

// Dump writes v to a fresh NetCDF file at path. Every tracer of every
// module is defined (under each of the module's storage suffixes) as a
// float64 variable on the module's spatial dimensions, then written.
// Reading the file back with LoadStateVector reproduces v bit for bit.
func (v *StateVector) Dump(path string) error {
	var dimNames []string
	var dimLens []int
	dimSeen := make(map[string]int)
	for _, m := range v.modules {
		for i, name := range m.dimNames {
			n := m.vals.Shape[i+1]
			if prev, ok := dimSeen[name]; ok {
				if prev != n {
					return &ShapeMismatchError{Module: m.Name(),
						Detail: fmt.Sprintf("dimension %s has length %d here but %d elsewhere", name, n, prev)}
				}
				continue
			}
			dimSeen[name] = n
			dimNames = append(dimNames, name)
			dimLens = append(dimLens, n)
		}
	}

	h := cdf.NewHeader(dimNames, dimLens)
	for _, m := range v.modules {
		for _, tracer := range m.def.Tracers {
			for _, suffix := range m.def.writeSuffixes() {
				h.AddVariable(tracer+suffix, m.dimNames, []float64{0})
			}
		}
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("newton: defining state file %s: %v", path, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("newton: creating state file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("newton: creating state file %s: %v", path, err)
	}

	for _, m := range v.modules {
		n := m.Len() / len(m.def.Tracers)
		begin := make([]int, len(m.dimNames))
		end := m.vals.Shape[1:]
		for i, tracer := range m.def.Tracers {
			vals := m.vals.Elements[i*n : (i+1)*n]
			for _, suffix := range m.def.writeSuffixes() {
				w := f.Writer(tracer+suffix, begin, end)
				if _, err := w.Write(vals); err != nil {
					return fmt.Errorf("newton: writing %s to %s: %v", tracer+suffix, path, err)
				}
			}
		}
	}
	return nil
}

// LoadStateVector reads a StateVector of the given space from the NetCDF
// file at path. The dimensions of each module are taken from its first
// tracer; all tracers of a module must share them.
func LoadStateVector(space *Space, path string) (*StateVector, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("newton: opening state file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("newton: reading state file %s: %v", path, err)
	}

	v := &StateVector{space: space}
	for _, def := range space.Modules() {
		suffix := def.readSuffix()
		first := def.Tracers[0] + suffix
		dimNames := f.Header.Dimensions(first)
		dimLens := f.Header.Lengths(first)
		if len(dimLens) == 0 {
			return nil, fmt.Errorf("newton: reading state file %s: variable %s not in file", path, first)
		}
		if len(dimNames) > maxSpatialDims {
			return nil, &ShapeMismatchError{Module: def.Name,
				Detail: fmt.Sprintf("%d dimensions in %s exceeds limit of %d", len(dimNames), path, maxSpatialDims)}
		}
		m, err := NewTracerModule(def, dimNames, dimLens)
		if err != nil {
			return nil, err
		}
		n := m.Len() / len(def.Tracers)
		for i, tracer := range def.Tracers {
			name := tracer + suffix
			if !sameDims(f.Header.Dimensions(name), dimNames) {
				return nil, &ShapeMismatchError{Module: def.Name,
					Detail: fmt.Sprintf("tracer %s does not share the dimensions of %s in %s", name, first, path)}
			}
			r := f.Reader(name, nil, nil)
			buf := r.Zero(n)
			if _, err := r.Read(buf); err != nil {
				return nil, fmt.Errorf("newton: reading %s from %s: %v", name, path, err)
			}
			copy(m.vals.Elements[i*n:(i+1)*n], buf.([]float64))
		}
		v.modules = append(v.modules, m)
	}
	return v, nil
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, s := range a {
		if b[i] != s {
			return false
		}
	}
	return true
}

// WriteValue writes a single float64 value to a fresh NetCDF file,
// stored as a length-1 variable named name.
func WriteValue(path, name string, val float64) error {
	h := cdf.NewHeader([]string{"scalar"}, []int{1})
	h.AddVariable(name, []string{"scalar"}, []float64{0})
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("newton: defining value file %s: %v", path, err)
	}
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("newton: creating value file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("newton: creating value file %s: %v", path, err)
	}
	w := f.Writer(name, []int{0}, []int{1})
	if _, err := w.Write([]float64{val}); err != nil {
		return fmt.Errorf("newton: writing %s to %s: %v", name, path, err)
	}
	return nil
}

// ReadValue reads a single float64 value written by WriteValue.
func ReadValue(path, name string) (float64, error) {
	ff, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("newton: opening value file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return 0, fmt.Errorf("newton: reading value file %s: %v", path, err)
	}
	if len(f.Header.Lengths(name)) == 0 {
		return 0, fmt.Errorf("newton: reading value file %s: variable %s not in file", path, name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(1)
	if _, err := r.Read(buf); err != nil {
		return 0, fmt.Errorf("newton: reading %s from %s: %v", name, path, err)
	}
	return buf.([]float64)[0], nil
}
