// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package detection discovers SPI ports an IT8951 panel may be wired to.
package detection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Source records where a port was found
type Source string

const (
	// SourceRegistry is a port registered by a periph host driver
	SourceRegistry Source = "spireg"
	// SourceDevfs is a /dev/spidev* node
	SourceDevfs Source = "devfs"
	// SourceEnv is the port named by IT8951_SPI_DEVICE
	SourceEnv Source = "env"
)

// DeviceInfo represents a candidate SPI port
type DeviceInfo struct {
	// Connection path or periph port name (e.g., "/dev/spidev0.0", "SPI0.0")
	Path string
	// Human-readable name
	Name string
	// Where the port was found
	Source Source
	// Other names the registry knows the port by
	Aliases []string
}

// String returns a human-readable representation of the port
func (d DeviceInfo) String() string {
	return fmt.Sprintf("spi port %s (%s)", d.Path, d.Source)
}

// Options configures the detection behavior
type Options struct {
	// Device paths to explicitly ignore (e.g., ["/dev/spidev0.1"])
	IgnorePaths []string
	// Glob for device nodes (empty = /dev/spidev*)
	DevGlob string
	// Cache TTL duration
	CacheTTL time.Duration
	// Enable result caching
	EnableCache bool
	// Skip the periph host driver registry
	SkipRegistry bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		DevGlob:     "/dev/spidev*",
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Errors
var (
	// ErrNoDevicesFound indicates no SPI port was found
	ErrNoDevicesFound = errors.New("no SPI ports found")
	// ErrDetectionTimeout indicates detection was cancelled
	ErrDetectionTimeout = errors.New("detection timeout")
)

// EnvDevice names an environment variable that pins the port
const EnvDevice = "IT8951_SPI_DEVICE"

// Detect lists SPI ports with the default options
func Detect(ctx context.Context) ([]DeviceInfo, error) {
	opts := DefaultOptions()
	return DetectWithOptions(ctx, &opts)
}

// DetectWithOptions lists candidate SPI ports. The port named by
// IT8951_SPI_DEVICE comes first, then ports registered by periph host
// drivers, then /dev/spidev* nodes, deduplicated by path.
func DetectWithOptions(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrDetectionTimeout
	}

	if opts.EnableCache {
		if cached, found := getCached(opts.CacheTTL); found {
			return finish(filterDevices(cached, opts))
		}
	}

	var devices []DeviceInfo
	if env := os.Getenv(EnvDevice); env != "" {
		devices = append(devices, DeviceInfo{Path: env, Name: "SPI port from environment", Source: SourceEnv})
	}
	if !opts.SkipRegistry {
		devices = append(devices, registryPorts()...)
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrDetectionTimeout
	}
	devices = append(devices, devfsPorts(opts.DevGlob)...)
	devices = deduplicate(devices)

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(devices)
		} else {
			clearCache()
		}
	}
	return finish(filterDevices(devices, opts))
}

func finish(devices []DeviceInfo) ([]DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

// registryPorts initializes the periph host drivers and lists the SPI ports
// they registered
func registryPorts() []DeviceInfo {
	if _, err := host.Init(); err != nil {
		return nil
	}
	var devices []DeviceInfo
	for _, ref := range spireg.All() {
		path := ref.Name
		// spidev-backed ports also answer to their /dev node
		for _, alias := range ref.Aliases {
			if strings.HasPrefix(alias, "/dev/") {
				path = alias
			}
		}
		devices = append(devices, DeviceInfo{
			Path:    path,
			Name:    ref.Name,
			Source:  SourceRegistry,
			Aliases: append([]string(nil), ref.Aliases...),
		})
	}
	return devices
}

func devfsPorts(pattern string) []DeviceInfo {
	if runtime.GOOS != "linux" {
		return nil
	}
	if pattern == "" {
		pattern = "/dev/spidev*"
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	devices := make([]DeviceInfo, 0, len(matches))
	for _, path := range matches {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		devices = append(devices, DeviceInfo{
			Path:   path,
			Name:   "SPI device " + filepath.Base(path),
			Source: SourceDevfs,
		})
	}
	return devices
}

func deduplicate(devices []DeviceInfo) []DeviceInfo {
	seen := make(map[string]bool)
	var unique []DeviceInfo
	for _, device := range devices {
		key := normalizedPath(device.Path)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, device)
	}
	return unique
}

// filterDevices applies IgnorePaths to a device list. Cached results go
// through it too.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 {
		return devices
	}
	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// IsPathIgnored checks if a device path should be ignored
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}
	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}
