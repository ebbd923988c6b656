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
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"time"

	"github.com/ZaparooProject/go-it8951/internal/syncutil"
)

// LinkConfig configures the word-level bus
type LinkConfig struct {
	// ReadyTimeout bounds every wait on the HRDY line
	ReadyTimeout time.Duration
	// PollInterval is the pause between HRDY samples (0 = spin)
	PollInterval time.Duration
	// ChunkSize is the number of bytes handed to the transport per write
	// during a burst
	ChunkSize int
	// TraceSize is the number of wire entries kept for error reports
	TraceSize int
}

// DefaultLinkConfig returns the default bus configuration
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		ReadyTimeout: 1 * time.Second,
		PollInterval: 50 * time.Microsecond,
		ChunkSize:    4096,
		TraceSize:    16,
	}
}

// Link is the word-oriented command/data channel to the controller. Each
// operation runs inside one chip-select window: wait for HRDY, send the 16-bit
// preamble for the phase, wait for HRDY again, transfer the payload.
// Words travel high byte first.
//
// Thread Safety: operations are serialized by an internal mutex, but a Link is
// meant to be owned by a single Device.
type Link struct {
	transport Transport
	config    *LinkConfig
	trace     *TraceBuffer
	port      string
	mu        syncutil.Mutex
}

// NewLink creates a link over the given transport
func NewLink(transport Transport, config *LinkConfig) *Link {
	if config == nil {
		config = DefaultLinkConfig()
	}
	if config.ChunkSize < 2 {
		config.ChunkSize = 2
	}
	// keep bursts word aligned
	config.ChunkSize &^= 1
	port := portName(transport)
	return &Link{
		transport: transport,
		config:    config,
		trace:     NewTraceBuffer(port, config.TraceSize),
		port:      port,
	}
}

// Transport returns the underlying transport
func (l *Link) Transport() Transport {
	return l.transport
}

// WaitReady polls HRDY until it is asserted or timeout elapses.
func (l *Link) WaitReady(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitReady(ctx, "WaitReady", timeout)
}

// WriteCommand sends a command code
func (l *Link) WriteCommand(ctx context.Context, cmd uint16) error {
	return l.exchange(ctx, "WriteCommand", preambleCommand, func() error {
		return l.write("WriteCommand", wordBytes(cmd), fmt.Sprintf("cmd 0x%04X", cmd))
	})
}

// WriteData sends a single data word
func (l *Link) WriteData(ctx context.Context, word uint16) error {
	return l.exchange(ctx, "WriteData", preambleDataWrite, func() error {
		return l.write("WriteData", wordBytes(word), "data")
	})
}

// WriteWords streams data words in one chip-select window. The sequence is
// consumed lazily in ChunkSize pieces.
func (l *Link) WriteWords(ctx context.Context, words iter.Seq[uint16]) error {
	return l.exchange(ctx, "WriteWords", preambleDataWrite, func() error {
		buf := make([]byte, 0, l.config.ChunkSize)
		total := 0
		for w := range words {
			buf = binary.BigEndian.AppendUint16(buf, w)
			if len(buf) < l.config.ChunkSize {
				continue
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("burst cancelled after %d bytes: %w", total, err)
			}
			if err := l.write("WriteWords", buf, fmt.Sprintf("burst @%d", total)); err != nil {
				return err
			}
			total += len(buf)
			buf = buf[:0]
		}
		if len(buf) > 0 {
			if err := l.write("WriteWords", buf, fmt.Sprintf("burst @%d", total)); err != nil {
				return err
			}
			total += len(buf)
		}
		Debugf("WriteWords: streamed %d bytes", total)
		return nil
	})
}

// ReadData reads a single data word
func (l *Link) ReadData(ctx context.Context) (uint16, error) {
	words, err := l.ReadWords(ctx, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// ReadWords burst-reads n data words. The controller clocks out one dummy
// word before the payload; it is discarded.
func (l *Link) ReadWords(ctx context.Context, n int) ([]uint16, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: read of %d words", ErrInvalidParameter, n)
	}
	words := make([]uint16, n)
	err := l.exchange(ctx, "ReadWords", preambleDataRead, func() error {
		var dummy [2]byte
		if err := l.read("ReadWords", dummy[:], "dummy"); err != nil {
			return err
		}
		if err := l.waitReady(ctx, "ReadWords", l.config.ReadyTimeout); err != nil {
			return err
		}
		raw := make([]byte, 2*n)
		if err := l.read("ReadWords", raw, fmt.Sprintf("%d words", n)); err != nil {
			return err
		}
		for i := range words {
			words[i] = binary.BigEndian.Uint16(raw[2*i:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}

// exchange runs one framed bus operation. Deselect is guaranteed on every exit
// path once Select succeeded, and any failure is returned with the wire trace.
func (l *Link) exchange(ctx context.Context, op string, preamble uint16, payload func() error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() {
		if err != nil {
			err = l.trace.WrapError(err)
		}
	}()

	if err = l.waitReady(ctx, op, l.config.ReadyTimeout); err != nil {
		return err
	}

	if err = l.transport.Select(); err != nil {
		return NewTransportIOError(op, l.port, err)
	}
	defer func() {
		if derr := l.transport.Deselect(); derr != nil && err == nil {
			err = NewTransportIOError(op, l.port, derr)
		}
	}()

	if err = l.write(op, wordBytes(preamble), fmt.Sprintf("preamble 0x%04X", preamble)); err != nil {
		return err
	}
	if err = l.waitReady(ctx, op, l.config.ReadyTimeout); err != nil {
		return err
	}
	return payload()
}

func (l *Link) waitReady(ctx context.Context, op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ready, err := l.transport.Ready()
		if err != nil {
			return NewTransportIOError(op, l.port, err)
		}
		if ready {
			return nil
		}
		if !time.Now().Before(deadline) {
			l.trace.RecordTimeout(op + ": HRDY not asserted")
			return NewTimeoutError(op, l.port)
		}
		if err := sleepContext(ctx, l.config.PollInterval); err != nil {
			return err
		}
	}
}

func (l *Link) write(op string, p []byte, note string) error {
	l.trace.RecordTX(p, note)
	if err := l.transport.Write(p); err != nil {
		return NewTransportIOError(op, l.port, err)
	}
	return nil
}

func (l *Link) read(op string, p []byte, note string) error {
	if err := l.transport.Read(p); err != nil {
		return NewTransportIOError(op, l.port, err)
	}
	l.trace.RecordRX(p, note)
	return nil
}

func wordBytes(w uint16) []byte {
	return []byte{byte(w >> 8), byte(w)}
}

// sleepContext pauses for d, returning early with the context error if ctx
// is done first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("wait cancelled: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
