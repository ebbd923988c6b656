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

//nolint:paralleltest // Test file - shares the package cache and environment
package detection

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDevfs(t *testing.T, names ...string) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("device node scan is linux only")
	}
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	return filepath.Join(dir, "spidev*")
}

func testOptions(glob string) *Options {
	return &Options{DevGlob: glob, SkipRegistry: true}
}

func TestDeviceInfo_String(t *testing.T) {
	device := DeviceInfo{Path: "/dev/spidev0.0", Source: SourceDevfs}
	assert.Equal(t, "spi port /dev/spidev0.0 (devfs)", device.String())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, "/dev/spidev*", opts.DevGlob)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.False(t, opts.SkipRegistry)
}

func TestDetect_DevfsNodesSorted(t *testing.T) {
	glob := fakeDevfs(t, "spidev0.1", "spidev0.0", "other")
	t.Setenv(EnvDevice, "")

	devices, err := DetectWithOptions(context.Background(), testOptions(glob))
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "spidev0.0", filepath.Base(devices[0].Path))
	assert.Equal(t, "spidev0.1", filepath.Base(devices[1].Path))
	assert.Equal(t, SourceDevfs, devices[0].Source)
	assert.Equal(t, "SPI device spidev0.0", devices[0].Name)
}

func TestDetect_EnvironmentFirstAndDeduplicated(t *testing.T) {
	glob := fakeDevfs(t, "spidev0.0", "spidev1.0")
	pinned := filepath.Join(filepath.Dir(glob), "spidev1.0")
	t.Setenv(EnvDevice, pinned)

	devices, err := DetectWithOptions(context.Background(), testOptions(glob))
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, pinned, devices[0].Path)
	assert.Equal(t, SourceEnv, devices[0].Source)
	assert.Equal(t, "spidev0.0", filepath.Base(devices[1].Path))
}

func TestDetect_IgnorePaths(t *testing.T) {
	glob := fakeDevfs(t, "spidev0.0", "spidev0.1")
	t.Setenv(EnvDevice, "")

	opts := testOptions(glob)
	opts.IgnorePaths = []string{filepath.Join(filepath.Dir(glob), "spidev0.0")}
	devices, err := DetectWithOptions(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "spidev0.1", filepath.Base(devices[0].Path))

	opts.IgnorePaths = append(opts.IgnorePaths, devices[0].Path)
	_, err = DetectWithOptions(context.Background(), opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetect_NoDevices(t *testing.T) {
	glob := fakeDevfs(t)
	t.Setenv(EnvDevice, "")

	devices, err := DetectWithOptions(context.Background(), testOptions(glob))
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Nil(t, devices)
}

func TestDetect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DetectWithOptions(ctx, testOptions("/nonexistent/spidev*"))
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetect_CacheServesAndFilters(t *testing.T) {
	ClearDetectionCache()
	t.Cleanup(ClearDetectionCache)

	glob := fakeDevfs(t, "spidev0.0", "spidev0.1")
	t.Setenv(EnvDevice, "")
	opts := testOptions(glob)
	opts.EnableCache = true
	opts.CacheTTL = time.Minute

	first, err := DetectWithOptions(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// nodes removed after the scan are still served from the cache
	require.NoError(t, os.Remove(first[0].Path))
	cached, err := DetectWithOptions(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	opts.IgnorePaths = []string{first[1].Path}
	filtered, err := DetectWithOptions(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, first[0].Path, filtered[0].Path)
}

func TestCache_Expiry(t *testing.T) {
	ClearDetectionCache()
	t.Cleanup(ClearDetectionCache)

	setCached([]DeviceInfo{{Path: "/dev/spidev0.0"}})
	_, found := getCached(time.Minute)
	assert.True(t, found)

	_, found = getCached(0)
	assert.False(t, found)

	clearCache()
	_, found = getCached(time.Minute)
	assert.False(t, found)
}

func TestIsPathIgnored(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		ignore  []string
		ignored bool
	}{
		{name: "empty path", path: "", ignore: []string{"/dev/spidev0.0"}},
		{name: "no ignores", path: "/dev/spidev0.0"},
		{name: "exact", path: "/dev/spidev0.0", ignore: []string{"/dev/spidev0.0"}, ignored: true},
		{name: "unclean", path: "/dev//spidev0.0", ignore: []string{"/dev/./spidev0.0"}, ignored: true},
		{name: "case", path: "SPI0.0", ignore: []string{"spi0.0"}, ignored: true},
		{name: "blank entry", path: "/dev/spidev0.0", ignore: []string{""}},
		{name: "other", path: "/dev/spidev0.0", ignore: []string{"/dev/spidev0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}
