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

package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-it8951"
	"github.com/ZaparooProject/go-it8951/pkg/frame"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// rectList collects repeated -rect flags
type rectList []frame.Rect

func (r *rectList) String() string {
	parts := make([]string, len(*r))
	for i, rect := range *r {
		parts[i] = fmt.Sprintf("%d,%d,%d,%d", rect.X, rect.Y, rect.Width, rect.Height)
	}
	return strings.Join(parts, " ")
}

func (r *rectList) Set(value string) error {
	rect, err := parseRect(value)
	if err != nil {
		return err
	}
	*r = append(*r, rect)
	return nil
}

type config struct {
	input  string
	output string
	scaler string
	rects  rectList
	width  int
	height int
	mode   int
	stop   bool
}

// Package-level flag variables
var (
	flagInput  string
	flagOutput string
	flagScaler string
	flagRects  rectList
	flagWidth  int
	flagHeight int
	flagMode   int
	flagStop   bool
)

func init() {
	flag.StringVar(&flagInput, "in", "", "Image to encode (PNG, JPEG, GIF, BMP, TIFF)")
	flag.StringVar(&flagOutput, "out", "-", "Output file (- for stdout)")
	flag.StringVar(&flagScaler, "scale", "catmullrom", "Scaler: catmullrom, bilinear, approx, nearest")
	flag.Var(&flagRects, "rect", "Region to refresh as x,y,w,h (repeatable, default whole panel)")
	flag.IntVar(&flagWidth, "width", 1872, "Panel width")
	flag.IntVar(&flagHeight, "height", 1404, "Panel height")
	flag.IntVar(&flagMode, "mode", int(it8951.ModeGC16), "Waveform mode for every rect")
	flag.BoolVar(&flagStop, "stop", false, "Emit a stop frame (after the image frame when -in is set)")
}

func parseConfig() (*config, error) {
	cfg := &config{
		input:  flagInput,
		output: flagOutput,
		scaler: flagScaler,
		rects:  flagRects,
		width:  flagWidth,
		height: flagHeight,
		mode:   flagMode,
		stop:   flagStop,
	}
	if cfg.input == "" && !cfg.stop {
		return nil, errors.New("nothing to do: give -in and/or -stop")
	}
	if cfg.width <= 0 || cfg.height <= 0 || cfg.width > 0xFFFF || cfg.height > 0xFFFF {
		return nil, fmt.Errorf("invalid panel size %dx%d", cfg.width, cfg.height)
	}
	if cfg.mode < 0 || cfg.mode > 0xFF {
		return nil, fmt.Errorf("invalid mode %d", cfg.mode)
	}
	return cfg, nil
}

func parseRect(value string) (frame.Rect, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return frame.Rect{}, fmt.Errorf("rect %q: want x,y,w,h", value)
	}
	var nums [4]uint16
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			return frame.Rect{}, fmt.Errorf("rect %q: %w", value, err)
		}
		nums[i] = uint16(n)
	}
	return frame.Rect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, nil
}

func scaler(name string) (draw.Scaler, error) {
	switch strings.ToLower(name) {
	case "catmullrom", "":
		return draw.CatmullRom, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "approx":
		return draw.ApproxBiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q", name)
	}
}

// render scales img to fill the panel, letterboxed on white
func render(img image.Image, width, height int, s draw.Scaler) *it8951.FrameBuffer {
	fb := it8951.NewFrameBuffer(width, height)
	sb := img.Bounds()
	if sb.Empty() {
		return fb
	}

	dw, dh := width, sb.Dy()*width/sb.Dx()
	if dh > height {
		dw, dh = sb.Dx()*height/sb.Dy(), height
	}
	x0, y0 := (width-dw)/2, (height-dh)/2
	s.Scale(fb, image.Rect(x0, y0, x0+dw, y0+dh), img, sb, draw.Src, nil)
	return fb
}

func buildMessage(img image.Image, cfg *config) (*frame.Message, error) {
	s, err := scaler(cfg.scaler)
	if err != nil {
		return nil, err
	}
	fb := render(img, cfg.width, cfg.height, s)

	rects := append([]frame.Rect(nil), cfg.rects...)
	if len(rects) == 0 {
		rects = []frame.Rect{{Width: uint16(cfg.width), Height: uint16(cfg.height)}}
	}
	for i := range rects {
		rects[i].Mode = uint8(cfg.mode)
	}

	return &frame.Message{
		Width:  uint16(cfg.width),
		Height: uint16(cfg.height),
		Rects:  rects,
		Pixels: fb.Bytes(),
	}, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path is the user's -in argument
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s: %s %dx%d\n", path, format, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

func encode(w io.Writer, img image.Image, cfg *config) error {
	bw := bufio.NewWriter(w)
	enc := frame.NewEncoder(bw)
	if img != nil {
		msg, err := buildMessage(img, cfg)
		if err != nil {
			return err
		}
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
	}
	if cfg.stop {
		if err := enc.EncodeStop(); err != nil {
			return fmt.Errorf("failed to encode stop frame: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func run(cfg *config) error {
	var img image.Image
	if cfg.input != "" {
		var err error
		if img, err = decodeImage(cfg.input); err != nil {
			return err
		}
	}

	out := io.Writer(os.Stdout)
	if cfg.output != "" && cfg.output != "-" {
		f, err := os.Create(cfg.output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return encode(out, img, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err == nil {
		err = run(cfg)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
