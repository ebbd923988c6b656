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

package testing

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestLoopback_EchoesDataWrites(t *testing.T) {
	t.Parallel()

	l := NewLoopback()
	if err := l.Select(); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(wordsToBytes(preambleDataWrite, 0x1234, 0xABCD)); err != nil {
		t.Fatal(err)
	}
	if err := l.Deselect(); err != nil {
		t.Fatal(err)
	}

	if err := l.Select(); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(wordsToBytes(preambleDataRead)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 6)
	if err := l.Read(buf); err != nil {
		t.Fatal(err)
	}
	if err := l.Deselect(); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(buf, []byte{0, 0, 0x12, 0x34, 0xAB, 0xCD}) {
		t.Fatalf("read % X", buf)
	}

	if !slices.Equal(l.Preambles(), []uint16{preambleDataWrite, preambleDataRead}) {
		t.Fatalf("preambles = %04X", l.Preambles())
	}
	if s, d := l.Selects(); s != 2 || d != 2 {
		t.Fatalf("selects %d deselects %d", s, d)
	}
}

func TestLoopback_CommandsAndFailures(t *testing.T) {
	t.Parallel()

	l := NewLoopback()
	boom := errors.New("boom")
	l.WriteErr = boom
	l.FailWriteAt = 2

	if err := l.Select(); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(wordsToBytes(preambleCommand, cmdGetDevInfo)); err != nil {
		t.Fatal(err)
	}
	if err := l.Write([]byte{0, 1}); !errors.Is(err, boom) {
		t.Fatalf("second write: %v", err)
	}
	if !l.Selected() {
		t.Fatal("Selected() = false inside the window")
	}
	_ = l.Deselect()

	if !slices.Equal(l.Commands(), []uint16{cmdGetDevInfo}) {
		t.Fatalf("commands = %04X", l.Commands())
	}
	if err := l.Deselect(); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("double deselect: %v", err)
	}
}

func TestLoopback_ReadyAndReset(t *testing.T) {
	t.Parallel()

	l := NewLoopback()
	l.SetReady(false)
	if ready, _ := l.Ready(); ready {
		t.Fatal("ready while deasserted")
	}
	l.SetReady(true)
	if ready, _ := l.Ready(); !ready {
		t.Fatal("not ready while asserted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Reset(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Reset with cancelled ctx: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Select(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Select after close: %v", err)
	}
}
