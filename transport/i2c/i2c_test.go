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
	"sync"
	"testing"
	"time"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

var firmwareResponse = []byte{0x03, 0x32, 0x01, 0x06, 0x07}

// responseFrame encodes data as a PN532-to-host frame
func responseFrame(data []byte) []byte {
	length := byte(len(data) + 1)
	frm := []byte{0x00, 0x00, 0xFF, length, frame.CalculateLengthChecksum(length), frame.Pn532ToHost}
	frm = append(frm, data...)
	return append(frm, frame.CalculateDataChecksum(frame.Pn532ToHost, data), 0x00)
}

// readOp is a full length status-prefixed read returning frm
func readOp(frm []byte) i2ctest.IO {
	buf := make([]byte, readLength)
	buf[0] = pn532Ready
	copy(buf[1:], frm)
	return i2ctest.IO{Addr: Address, R: buf}
}

func writeOp(w []byte) i2ctest.IO {
	return i2ctest.IO{Addr: Address, W: w}
}

func statusOp(status byte) i2ctest.IO {
	return i2ctest.IO{Addr: Address, R: []byte{status}}
}

func ackOp() i2ctest.IO {
	return i2ctest.IO{Addr: Address, R: append([]byte{pn532Ready}, frame.AckFrame...)}
}

func TestTransport_SendCommand(t *testing.T) {
	t.Parallel()

	corrupted := responseFrame(firmwareResponse)
	corrupted[len(corrupted)-2]++ // break the data checksum

	tests := []struct {
		wantErrIs error
		ops       func(frm []byte) []i2ctest.IO
		name      string
		args      []byte
		want      []byte
		cmd       byte
	}{
		{
			name: "Firmware_Version",
			cmd:  0x02,
			ops: func(frm []byte) []i2ctest.IO {
				return []i2ctest.IO{
					writeOp(frm),
					statusOp(pn532Ready),
					ackOp(),
					statusOp(pn532Ready),
					readOp(responseFrame(firmwareResponse)),
				}
			},
			want: firmwareResponse,
		},
		{
			name: "Busy_Before_Ready",
			cmd:  0x14,
			args: []byte{0x01, 0x14, 0x01},
			ops: func(frm []byte) []i2ctest.IO {
				return []i2ctest.IO{
					writeOp(frm),
					statusOp(0x00),
					statusOp(pn532Ready),
					ackOp(),
					statusOp(0x00),
					statusOp(0x00),
					statusOp(pn532Ready),
					readOp(responseFrame([]byte{0x15})),
				}
			},
			want: []byte{0x15},
		},
		{
			name: "Corrupted_Response_Is_NACKed",
			cmd:  0x02,
			ops: func(frm []byte) []i2ctest.IO {
				return []i2ctest.IO{
					writeOp(frm),
					statusOp(pn532Ready),
					ackOp(),
					statusOp(pn532Ready),
					readOp(corrupted),
					writeOp(frame.NackFrame),
					statusOp(pn532Ready),
					readOp(responseFrame(firmwareResponse)),
				}
			},
			want: firmwareResponse,
		},
		{
			name: "NACK_Instead_Of_ACK",
			cmd:  0x02,
			ops: func(frm []byte) []i2ctest.IO {
				return []i2ctest.IO{
					writeOp(frm),
					statusOp(pn532Ready),
					{Addr: Address, R: append([]byte{pn532Ready}, frame.NackFrame...)},
				}
			},
			wantErrIs: pn532.ErrNoACK,
		},
		{
			name: "Application_Error_Frame",
			cmd:  0x02,
			ops: func(frm []byte) []i2ctest.IO {
				return []i2ctest.IO{
					writeOp(frm),
					statusOp(pn532Ready),
					ackOp(),
					statusOp(pn532Ready),
					readOp([]byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}),
					writeOp(frame.AckFrame),
				}
			},
			wantErrIs: pn532.ErrInvalidResponse,
		},
		{
			name: "Frame_Too_Large",
			cmd:  0x40,
			args: make([]byte, 300),
			ops: func([]byte) []i2ctest.IO {
				return nil
			},
			wantErrIs: pn532.ErrDataTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frm, _ := frame.Build(tt.cmd, tt.args)
			bus := &i2ctest.Playback{Ops: tt.ops(frm), DontPanic: true}
			tr := NewWithBus(bus, "playback")

			resp, err := tr.SendCommand(tt.cmd, tt.args)

			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, resp)
			}
			require.NoError(t, bus.Close(), "all recorded I2C operations should be used")
		})
	}
}

// stuckBus ACKs every command but never has a response ready
type stuckBus struct {
	writes [][]byte
	mu     sync.Mutex
	acked  bool
}

func (*stuckBus) String() string                  { return "stuck" }
func (*stuckBus) SetSpeed(physic.Frequency) error { return nil }

func (b *stuckBus) Tx(_ uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(w) > 0 {
		b.writes = append(b.writes, append([]byte(nil), w...))
		return nil
	}

	switch {
	case !b.acked && len(r) == 1:
		r[0] = pn532Ready
	case !b.acked && len(r) == 1+len(frame.AckFrame):
		r[0] = pn532Ready
		copy(r[1:], frame.AckFrame)
		b.acked = true
	default:
		r[0] = 0x00
	}
	return nil
}

func (b *stuckBus) lastWrite() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[len(b.writes)-1]
}

func TestTransport_ResponseTimeoutAbortsCommand(t *testing.T) {
	t.Parallel()

	bus := &stuckBus{}
	tr := NewWithBus(bus, "stuck")
	require.NoError(t, tr.SetTimeout(20*time.Millisecond))

	_, err := tr.SendCommand(0x4A, []byte{0x01, 0x00})
	require.ErrorIs(t, err, pn532.ErrTransportTimeout)
	assert.Equal(t, pn532.ErrorTypeTimeout, pn532.GetErrorType(err))
	assert.Equal(t, frame.AckFrame, bus.lastWrite())
}

func TestTransport_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	bus := &stuckBus{}
	tr := NewWithBus(bus, "stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.SendCommandContext(ctx, 0x4A, []byte{0x01, 0x00})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), DefaultTimeout)
	assert.Equal(t, frame.AckFrame, bus.lastWrite())
}

func TestTransport_ContextCancelledBeforeSend(t *testing.T) {
	t.Parallel()

	bus := &i2ctest.Playback{DontPanic: true}
	tr := NewWithBus(bus, "playback")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.SendCommandContext(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, bus.Close())
}

func TestTransport_Lifecycle(t *testing.T) {
	t.Parallel()

	tr := NewWithBus(&i2ctest.Playback{DontPanic: true}, "playback")
	assert.Equal(t, pn532.TransportI2C, tr.Type())
	assert.True(t, tr.IsConnected())

	require.Error(t, tr.SetTimeout(0))
	require.NoError(t, tr.SetTimeout(time.Second))

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportNotReady)
}
