// mfblock
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of mfblock.
//
// mfblock is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// mfblock is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with mfblock; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
	calls     int
}

func (f *fakeDetector) Transport() string { return f.transport }

func (f *fakeDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}
	return f.devices, f.err
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{name: "Empty_Ignore_List", devicePath: "/dev/ttyUSB0", ignorePaths: []string{}},
		{name: "Empty_Device_Path", devicePath: "", ignorePaths: []string{"/dev/ttyUSB0"}},
		{name: "Exact_Unix_Path", devicePath: "/dev/ttyUSB0", ignorePaths: []string{"/dev/ttyUSB0"}, expected: true},
		{name: "Exact_Windows_Path", devicePath: "COM2", ignorePaths: []string{"COM2"}, expected: true},
		{name: "Case_Insensitive", devicePath: "/dev/i2c-1", ignorePaths: []string{"/DEV/I2C-1"}, expected: true},
		{name: "No_Match", devicePath: "/dev/i2c-2", ignorePaths: []string{"/dev/i2c-1"}},
		{
			name:        "One_Of_Many",
			devicePath:  "/dev/ttyUSB1",
			ignorePaths: []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "COM2"},
			expected:    true,
		},
		{name: "Relative_Components", devicePath: "/dev/../dev/i2c-1", ignorePaths: []string{"/dev/i2c-1"}, expected: true},
		{name: "Empty_Entries_Skipped", devicePath: "/dev/i2c-1", ignorePaths: []string{"", "/dev/i2c-1", ""}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("2341:0043", DefaultBlocklist()))
	assert.True(t, IsBlocked(" 2341:0043 ", []string{"2341:0043"}))
	assert.True(t, IsBlocked(FormatVIDPID("abcd", "ef01"), []string{"ABCD:EF01"}))
	assert.False(t, IsBlocked("1A86:7523", DefaultBlocklist()))
	assert.False(t, IsBlocked("", []string{""}))

	assert.Equal(t, "1A86:7523", FormatVIDPID("1a86", "7523"))
	assert.Empty(t, FormatVIDPID("", "7523"))
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.Nil(t, opts.IgnorePaths)
	assert.Equal(t, DefaultBlocklist(), opts.Blocklist)
	assert.Positive(t, opts.Timeout)
}

func TestDetectWith(t *testing.T) {
	t.Parallel()

	i2cDev := DeviceInfo{Transport: "i2c", Path: "/dev/i2c-1", Confidence: Medium}
	uartDev := DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High}

	t.Run("Sorted_By_Confidence", func(t *testing.T) {
		t.Parallel()

		detectors := []Detector{
			&fakeDetector{transport: "i2c", devices: []DeviceInfo{i2cDev}},
			&fakeDetector{transport: "uart", devices: []DeviceInfo{uartDev}},
		}
		devices, err := detectWith(context.Background(), detectors, &Options{})
		require.NoError(t, err)
		assert.Equal(t, []DeviceInfo{uartDev, i2cDev}, devices)
	})

	t.Run("Transport_Filter", func(t *testing.T) {
		t.Parallel()

		uart := &fakeDetector{transport: "uart", devices: []DeviceInfo{uartDev}}
		detectors := []Detector{&fakeDetector{transport: "i2c", devices: []DeviceInfo{i2cDev}}, uart}

		devices, err := detectWith(context.Background(), detectors, &Options{Transports: []string{"i2c"}})
		require.NoError(t, err)
		assert.Equal(t, []DeviceInfo{i2cDev}, devices)
		assert.Zero(t, uart.calls)
	})

	t.Run("Ignored_Paths_Dropped", func(t *testing.T) {
		t.Parallel()

		detectors := []Detector{&fakeDetector{transport: "i2c", devices: []DeviceInfo{i2cDev}}}
		_, err := detectWith(context.Background(), detectors, &Options{IgnorePaths: []string{"/dev/i2c-1"}})
		require.ErrorIs(t, err, ErrNoDevicesFound)
	})

	t.Run("Detector_Errors_Reported_When_Nothing_Found", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("permission denied")
		detectors := []Detector{
			&fakeDetector{transport: "i2c", err: boom},
			&fakeDetector{transport: "uart", err: ErrUnsupportedPlatform},
		}
		_, err := detectWith(context.Background(), detectors, &Options{})
		require.ErrorIs(t, err, ErrNoDevicesFound)
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrUnsupportedPlatform)
	})

	t.Run("Partial_Failure_Still_Returns_Devices", func(t *testing.T) {
		t.Parallel()

		detectors := []Detector{
			&fakeDetector{transport: "i2c", err: errors.New("bus error")},
			&fakeDetector{transport: "uart", devices: []DeviceInfo{uartDev}},
		}
		devices, err := detectWith(context.Background(), detectors, &Options{})
		require.NoError(t, err)
		assert.Equal(t, []DeviceInfo{uartDev}, devices)
	})

	t.Run("Timeout", func(t *testing.T) {
		t.Parallel()

		slow := &fakeDetector{transport: "a", delay: time.Second}
		next := &fakeDetector{transport: "b", devices: []DeviceInfo{i2cDev}}
		_, err := detectWith(context.Background(), []Detector{slow, next}, &Options{Timeout: 20 * time.Millisecond})
		require.ErrorIs(t, err, ErrDetectionTimeout)
		assert.Zero(t, next.calls)
	})
}

func TestStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "i2c:/dev/i2c-1", DeviceInfo{Transport: "i2c", Path: "/dev/i2c-1"}.String())
}
