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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures JitteryReader.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
}

// DefaultJitterConfig returns fragmentation without latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{FragmentMinBytes: 1}
}

// JitteryReader wraps an update stream source and delivers it in random
// fragments with optional latency and a one-time stall, the way a serial
// bridge or pipe hands data to the frame decoder.
type JitteryReader struct {
	backend   io.Reader
	rng       *rand.Rand
	config    JitterConfig
	delivered int
	stalled   bool
}

// NewJitteryReader wraps backend with jitter simulation.
func NewJitteryReader(backend io.Reader, config JitterConfig) *JitteryReader {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryReader{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test code
	}
}

// Read returns between FragmentMinBytes and len(buf) bytes from the backend.
func (j *JitteryReader) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	limit := len(buf)
	if j.config.StallAfterBytes > 0 && !j.stalled {
		if j.delivered >= j.config.StallAfterBytes {
			j.stalled = true
			time.Sleep(j.config.StallDuration)
		} else {
			limit = min(limit, j.config.StallAfterBytes-j.delivered)
		}
	}
	if limit > j.config.FragmentMinBytes {
		limit = j.config.FragmentMinBytes + j.rng.IntN(limit-j.config.FragmentMinBytes+1)
	}

	n, err := j.backend.Read(buf[:limit])
	j.delivered += n
	return n, err //nolint:wrapcheck // pass-through
}

// Delivered returns the number of bytes handed out so far.
func (j *JitteryReader) Delivered() int {
	return j.delivered
}
