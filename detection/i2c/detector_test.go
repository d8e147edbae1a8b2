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

package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/mfblock/detection"
	"github.com/ZaparooProject/mfblock/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus answers reads from a queue of status-prefixed replies
type fakeBus struct {
	readErr  error
	replies  [][]byte
	writes   [][]byte
	funcs    uint32
	addr     uint16
	mu       sync.Mutex
	closed   bool
	notReady bool
}

func (b *fakeBus) Funcs() (uint32, error) { return b.funcs, nil }

func (b *fakeBus) SetAddress(addr uint16) error {
	b.addr = addr
	return nil
}

func (b *fakeBus) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return 0, b.readErr
	}
	clear(p)
	if len(p) == 1 || b.notReady || len(b.replies) == 0 {
		return len(p), nil
	}
	copy(p, b.replies[0])
	b.replies = b.replies[1:]
	return len(p), nil
}

func (b *fakeBus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func ready(frm []byte) []byte {
	return append([]byte{pn532Ready}, frm...)
}

func firmwareFrame(ic byte) []byte {
	data := []byte{0x03, ic, 0x01, 0x06, 0x07}
	frm := []byte{0x00, 0x00, 0xFF, byte(len(data) + 1), frame.CalculateLengthChecksum(byte(len(data) + 1)), frame.Pn532ToHost}
	frm = append(frm, data...)
	return append(frm, frame.CalculateDataChecksum(frame.Pn532ToHost, data), 0x00)
}

func newTestDetector(buses map[string]*fakeBus) *detector {
	return &detector{
		listBuses: func() ([]string, error) {
			paths := make([]string, 0, len(buses))
			for _, p := range []string{"/dev/i2c-0", "/dev/i2c-1", "/dev/i2c-2"} {
				if _, ok := buses[p]; ok {
					paths = append(paths, p)
				}
			}
			return paths, nil
		},
		openBus: func(path string) (bus, error) {
			b, ok := buses[path]
			if !ok {
				return nil, errors.New("no such bus")
			}
			return b, nil
		},
	}
}

func TestDetector_Detect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		buses          map[string]*fakeBus
		name           string
		wantPaths      []string
		wantConfidence detection.Confidence
		mode           detection.Mode
		wantErr        bool
	}{
		{
			name: "Probe_Confirms_PN532",
			mode: detection.Safe,
			buses: map[string]*fakeBus{
				"/dev/i2c-1": {funcs: i2cFuncPlain, replies: [][]byte{ready(frame.AckFrame), ready(firmwareFrame(0x32))}},
			},
			wantPaths:      []string{"/dev/i2c-1"},
			wantConfidence: detection.High,
		},
		{
			name: "Passive_Does_Not_Probe",
			mode: detection.Passive,
			buses: map[string]*fakeBus{
				"/dev/i2c-1": {funcs: i2cFuncPlain},
			},
			wantPaths:      []string{"/dev/i2c-1"},
			wantConfidence: detection.Medium,
		},
		{
			name: "Other_Chip_Rejected",
			mode: detection.Safe,
			buses: map[string]*fakeBus{
				"/dev/i2c-1": {funcs: i2cFuncPlain, replies: [][]byte{ready(frame.AckFrame), ready(firmwareFrame(0x07))}},
			},
			wantErr: true,
		},
		{
			name: "No_Device_At_Address",
			mode: detection.Safe,
			buses: map[string]*fakeBus{
				"/dev/i2c-0": {funcs: i2cFuncPlain, readErr: errors.New("remote I/O error")},
				"/dev/i2c-1": {funcs: i2cFuncPlain, replies: [][]byte{ready(frame.AckFrame), ready(firmwareFrame(0x32))}},
			},
			wantPaths:      []string{"/dev/i2c-1"},
			wantConfidence: detection.High,
		},
		{
			name: "SMBus_Only_Adapter_Skipped",
			mode: detection.Passive,
			buses: map[string]*fakeBus{
				"/dev/i2c-2": {funcs: 0x00080000},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newTestDetector(tt.buses)
			devices, err := d.Detect(context.Background(), &detection.Options{Mode: tt.mode})
			if tt.wantErr {
				require.ErrorIs(t, err, detection.ErrNoDevicesFound)
				return
			}
			require.NoError(t, err)

			paths := make([]string, 0, len(devices))
			for _, dev := range devices {
				paths = append(paths, dev.Path)
				assert.Equal(t, TransportName, dev.Transport)
				assert.Equal(t, tt.wantConfidence, dev.Confidence)
				assert.Equal(t, "0x24", dev.Metadata["address"])
			}
			assert.Equal(t, tt.wantPaths, paths)

			for _, b := range tt.buses {
				assert.True(t, b.closed)
			}
		})
	}
}

func TestDetector_ProbeWritesFirmwareCommand(t *testing.T) {
	t.Parallel()

	b := &fakeBus{funcs: i2cFuncPlain, replies: [][]byte{ready(frame.AckFrame), ready(firmwareFrame(0x32))}}
	d := newTestDetector(map[string]*fakeBus{"/dev/i2c-1": b})

	devices, err := d.Detect(context.Background(), &detection.Options{Mode: detection.Full})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "1.6", devices[0].Metadata["firmware"])

	want, err := frame.Build(cmdGetFirmware, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{want}, b.writes)
	assert.Equal(t, uint16(DefaultPN532Address), b.addr)
}

func TestDetector_IgnoredAndCancelled(t *testing.T) {
	t.Parallel()

	t.Run("Ignored_Path", func(t *testing.T) {
		t.Parallel()

		b := &fakeBus{funcs: i2cFuncPlain}
		d := newTestDetector(map[string]*fakeBus{"/dev/i2c-1": b})
		_, err := d.Detect(context.Background(), &detection.Options{
			Mode:        detection.Passive,
			IgnorePaths: []string{"/dev/i2c-1"},
		})
		require.ErrorIs(t, err, detection.ErrNoDevicesFound)
		assert.False(t, b.closed, "ignored bus must not be opened")
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()

		b := &fakeBus{funcs: i2cFuncPlain}
		d := newTestDetector(map[string]*fakeBus{"/dev/i2c-1": b})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := d.Detect(ctx, &detection.Options{Mode: detection.Safe})
		require.ErrorIs(t, err, detection.ErrDetectionTimeout)
	})

	t.Run("Never_Ready", func(t *testing.T) {
		t.Parallel()

		b := &fakeBus{funcs: i2cFuncPlain, notReady: true}
		d := newTestDetector(map[string]*fakeBus{"/dev/i2c-1": b})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := d.Detect(ctx, &detection.Options{Mode: detection.Safe})
		require.ErrorIs(t, err, detection.ErrNoDevicesFound)
		assert.Len(t, b.writes, 1)
	})
}

func TestDetector_Transport(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "i2c", New().Transport())
}
