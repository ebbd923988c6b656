// go-it8951
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-it8951.
//
// go-it8951 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-it8951 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-it8951; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package source opens the byte streams update frames arrive on: standard
// input, a file or FIFO, or a serial port.
package source

import (
	"fmt"
	"io"
	"os"
)

// Stdin names standard input
const Stdin = "-"

// Open returns a reader for path. An empty path or "-" is standard input
// itself; closing it aborts a pending read on a pipe.
func Open(path string) (io.ReadCloser, error) {
	if path == "" || path == Stdin {
		return os.Stdin, nil
	}
	f, err := os.Open(path) //nolint:gosec // path is the user's stream argument
	if err != nil {
		return nil, fmt.Errorf("failed to open update stream %s: %w", path, err)
	}
	return f, nil
}
