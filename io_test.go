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
	"path/filepath"
	"testing"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	s := testSpace(t)
	v := testVector(t, s, -1.5, 0.75)
	fname := filepath.Join(t.TempDir(), "state.nc")
	if err := v.Dump(fname); err != nil {
		t.Fatal(err)
	}
	got, err := LoadStateVector(s, fname)
	if err != nil {
		t.Fatal(err)
	}
	for im, m := range got.Modules() {
		want := v.Modules()[im].Values().Elements
		for i, val := range m.Values().Elements {
			if val != want[i] {
				t.Errorf("module %s element %d: %g != %g", m.Name(), i, val, want[i])
			}
		}
	}
}

func TestDumpLoadSuffixes(t *testing.T) {
	s, err := NewSpace(ModuleDef{
		Name:        "a",
		Tracers:     []string{"a1", "a2"},
		VarSuffixes: []string{"_CUR", "_OLD"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewStateVector(s, []string{"depth"}, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	for i := range v.Modules()[0].Values().Elements {
		v.Modules()[0].Values().Elements[i] = float64(i) - 2.5
	}
	fname := filepath.Join(t.TempDir(), "state.nc")
	if err := v.Dump(fname); err != nil {
		t.Fatal(err)
	}
	// Values come back from the first suffix.
	got, err := LoadStateVector(s, fname)
	if err != nil {
		t.Fatal(err)
	}
	want := v.Modules()[0].Values().Elements
	for i, val := range got.Modules()[0].Values().Elements {
		if val != want[i] {
			t.Errorf("element %d: %g != %g", i, val, want[i])
		}
	}
}

func TestLoadMissingVariable(t *testing.T) {
	s := testSpace(t)
	v := testVector(t, s, 0, 1)
	fname := filepath.Join(t.TempDir(), "state.nc")
	if err := v.Dump(fname); err != nil {
		t.Fatal(err)
	}
	other, err := NewSpace(ModuleDef{Name: "z", Tracers: []string{"z1"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStateVector(other, fname); err == nil {
		t.Error("expected an error for a variable not in the file")
	}
}

func TestWriteReadValue(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "value.nc")
	const want = 3.25e-7
	if err := WriteValue(fname, "sigma", want); err != nil {
		t.Fatal(err)
	}
	got, err := ReadValue(fname, "sigma")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("read %g, wrote %g", got, want)
	}
	if _, err := ReadValue(fname, "nope"); err == nil {
		t.Error("expected an error for a variable not in the file")
	}
}
