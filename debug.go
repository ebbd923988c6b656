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

package it8951

import (
	"fmt"
	"os"
	"time"
)

// debugEnabled controls console output of debug messages
var debugEnabled = false

func init() {
	if os.Getenv("IT8951_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf logs a formatted debug message. It always goes to the session log
// (when one is open) and to stdout only in debug mode.
func Debugf(format string, args ...any) {
	debugWrite(fmt.Sprintf(format, args...))
}

// Debugln logs its operands like fmt.Sprint
func Debugln(args ...any) {
	debugWrite(fmt.Sprint(args...))
}

func debugWrite(message string) {
	sessionLogMu.Lock()
	if sessionLogWriter != nil {
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", time.Now().Format("15:04:05.000"), message)
	}
	sessionLogMu.Unlock()

	if debugEnabled {
		_, _ = fmt.Printf("DEBUG: %s\n", message)
	}
}

// SetDebugEnabled toggles console debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}
