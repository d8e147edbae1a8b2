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

package pn532

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/mfblock/detection"
	testutil "github.com/ZaparooProject/mfblock/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDetectorTransport = "connect-test"

type staticDetector struct{}

func (staticDetector) Transport() string { return testDetectorTransport }

func (staticDetector) Detect(context.Context, *detection.Options) ([]detection.DeviceInfo, error) {
	return []detection.DeviceInfo{
		{Transport: testDetectorTransport, Path: "/dev/low", Confidence: detection.Low},
		{Transport: testDetectorTransport, Path: "/dev/high", Confidence: detection.High},
	}, nil
}

func init() {
	detection.RegisterDetector(staticDetector{})
}

func TestConnectDevice(t *testing.T) {
	t.Parallel()

	t.Run("Explicit_Path", func(t *testing.T) {
		t.Parallel()

		mock := newInitMock()
		var gotPath string
		device, err := ConnectDevice(context.Background(), "/dev/i2c-1",
			WithTransportFactory(func(path string) (Transport, error) {
				gotPath = path
				return mock, nil
			}),
			WithConnectTimeout(250*time.Millisecond),
			WithDeviceOptions(WithPassiveActivationRetries(0x10)),
		)
		require.NoError(t, err)
		assert.Equal(t, "/dev/i2c-1", gotPath)
		assert.Equal(t, 250*time.Millisecond, mock.Timeout())
		assert.Equal(t, []byte{0x05, 0xFF, 0x01, 0x10}, mock.LastArgs(testutil.CmdRFConfiguration))
		assert.Same(t, mock, device.Transport())
	})

	t.Run("With_Retries", func(t *testing.T) {
		t.Parallel()

		device, err := ConnectDevice(context.Background(), "/dev/i2c-1",
			WithTransportFactory(func(string) (Transport, error) { return newInitMock(), nil }),
			WithConnectRetries(fastRetryConfig(3)),
		)
		require.NoError(t, err)
		_, ok := device.Transport().(*TransportWithRetry)
		assert.True(t, ok)
	})

	t.Run("Auto_Detect_Picks_Highest_Confidence", func(t *testing.T) {
		t.Parallel()

		var picked detection.DeviceInfo
		_, err := ConnectDevice(context.Background(), "",
			WithAutoDetection(&detection.Options{Transports: []string{testDetectorTransport}}),
			WithTransportFromDeviceFactory(func(dev detection.DeviceInfo) (Transport, error) {
				picked = dev
				return newInitMock(), nil
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, "/dev/high", picked.Path)
	})

	t.Run("Missing_Factory", func(t *testing.T) {
		t.Parallel()

		_, err := ConnectDevice(context.Background(), "/dev/i2c-1")
		require.ErrorContains(t, err, "transport factory not provided")

		_, err = ConnectDevice(context.Background(), "")
		require.ErrorContains(t, err, "transport device factory not provided")
	})

	t.Run("Factory_Error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("permission denied")
		_, err := ConnectDevice(context.Background(), "/dev/i2c-1",
			WithTransportFactory(func(string) (Transport, error) { return nil, boom }))
		require.ErrorIs(t, err, boom)
	})

	t.Run("Init_Failure_Closes_Transport", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport()
		mock.SetResponse(testutil.CmdGetFirmwareVersion, []byte{0x03, 0x07, 0x01, 0x06, 0x07})
		_, err := ConnectDevice(context.Background(), "/dev/i2c-1",
			WithTransportFactory(func(string) (Transport, error) { return mock, nil }))
		require.ErrorIs(t, err, ErrNotPN532)
		assert.False(t, mock.IsConnected())
	})

	t.Run("Invalid_Option", func(t *testing.T) {
		t.Parallel()

		_, err := ConnectDevice(context.Background(), "/dev/i2c-1", WithConnectTimeout(0))
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}
