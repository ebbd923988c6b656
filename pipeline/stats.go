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

package pipeline

import (
	"time"

	"github.com/ZaparooProject/go-it8951/pkg/frame"
)

// Stats summarizes a session
type Stats struct {
	Started       time.Time
	LastFrame     time.Time
	LastDuration  time.Duration
	Frames        int
	Rects         int
	BytesUploaded int64
	// LastNonWhite is the non-white byte count of the last frame
	LastNonWhite int
}

// Stats returns a snapshot of the session statistics
func (p *Pipeline) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

func (p *Pipeline) record(msg *frame.Message, nonWhite int, took time.Duration) FrameEvent {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	event := FrameEvent{
		Index:    p.stats.Frames,
		Rects:    msg.Rects,
		NonWhite: nonWhite,
		Duration: took,
	}
	p.stats.Frames++
	p.stats.Rects += len(msg.Rects)
	p.stats.BytesUploaded += int64(2 * p.buffer.WordCount())
	p.stats.LastNonWhite = nonWhite
	p.stats.LastFrame = time.Now()
	p.stats.LastDuration = took
	return event
}
