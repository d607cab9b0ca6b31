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
	"math"
	"os"
	"strings"

	"github.com/ctessum/cdf"
)

// GenPrecondArtifact reduces model-history variables into a
// preconditioner artifact file. Each entry of vars is "name" or
// "name:op" where op is one of:
//
//	avg     – mean over the leading (time) axis, stored as name_avg
//	log_avg – exponential of the mean logarithm over the leading axis,
//	          stored as name_log_avg
//	copy    – copied unchanged (also the default for a bare name)
//
// An unknown op is an error.
func GenPrecondArtifact(histPath, precondPath string, vars []string) error {
	ff, err := os.Open(histPath)
	if err != nil {
		return fmt.Errorf("newton: opening history file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return fmt.Errorf("newton: reading history file %s: %v", histPath, err)
	}

	type outVar struct {
		name string
		dims []string
		vals []float64
	}
	var outVars []outVar
	dimLens := make(map[string]int)

	for _, entry := range vars {
		name, op := entry, "copy"
		if i := strings.IndexByte(entry, ':'); i >= 0 {
			name, op = entry[:i], entry[i+1:]
			if op == "" {
				op = "copy"
			}
		}
		dims := f.Header.Dimensions(name)
		lens := f.Header.Lengths(name)
		if len(lens) == 0 {
			return fmt.Errorf("newton: history file %s: variable %s not in file", histPath, name)
		}
		n := 1
		for _, l := range lens {
			n *= l
		}
		r := f.Reader(name, nil, nil)
		buf := r.Zero(n)
		if _, err := r.Read(buf); err != nil {
			return fmt.Errorf("newton: reading %s from %s: %v", name, histPath, err)
		}
		vals := buf.([]float64)

		switch op {
		case "copy":
			outVars = append(outVars, outVar{name: name, dims: dims, vals: vals})
		case "avg", "log_avg":
			if len(lens) < 2 {
				return fmt.Errorf("newton: history variable %s has no time axis to reduce", name)
			}
			nt := lens[0]
			nspace := n / nt
			red := make([]float64, nspace)
			for t := 0; t < nt; t++ {
				for i := 0; i < nspace; i++ {
					v := vals[t*nspace+i]
					if op == "log_avg" {
						v = math.Log(v)
					}
					red[i] += v
				}
			}
			for i := range red {
				red[i] /= float64(nt)
				if op == "log_avg" {
					red[i] = math.Exp(red[i])
				}
			}
			outVars = append(outVars, outVar{name: name + "_" + op, dims: dims[1:], vals: red})
		default:
			return fmt.Errorf("newton: unknown history reduction %q for %s", op, name)
		}

		for i, d := range dims {
			dimLens[d] = lens[i]
		}
	}

	var dimNames []string
	var lens []int
	seen := make(map[string]struct{})
	for _, v := range outVars {
		for _, d := range v.dims {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dimNames = append(dimNames, d)
				lens = append(lens, dimLens[d])
			}
		}
	}

	h := cdf.NewHeader(dimNames, lens)
	for _, v := range outVars {
		h.AddVariable(v.name, v.dims, []float64{0})
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("newton: defining preconditioner artifact %s: %v", precondPath, err)
	}

	out, err := os.Create(precondPath)
	if err != nil {
		return fmt.Errorf("newton: creating preconditioner artifact: %v", err)
	}
	defer out.Close()
	cf, err := cdf.Create(out, h)
	if err != nil {
		return fmt.Errorf("newton: creating preconditioner artifact %s: %v", precondPath, err)
	}
	for _, v := range outVars {
		begin := make([]int, len(v.dims))
		end := make([]int, len(v.dims))
		for i, d := range v.dims {
			end[i] = dimLens[d]
		}
		w := cf.Writer(v.name, begin, end)
		if _, err := w.Write(v.vals); err != nil {
			return fmt.Errorf("newton: writing %s to %s: %v", v.name, precondPath, err)
		}
	}
	return nil
}
