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

// Command newton is a command-line interface for the restartable
// Newton-Krylov solver. A solve that dispatches an external job exits
// with status 0 and is re-invoked with --resume once the job completes.
package main

import (
	"os"

	"github.com/klindsay28/newton/newtonutil"
)

func main() {
	os.Exit(newtonutil.ExitStatus(newtonutil.Root.Execute()))
}
