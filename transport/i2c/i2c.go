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

// Package i2c provides I2C transport implementation for PN532
package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/internal/frame"
	"github.com/ZaparooProject/mfblock/internal/transport"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// Address is the 7-bit I2C address of the PN532
	Address = 0x24

	// pn532Ready is the status byte that prefixes every read once the
	// PN532 has data for the host
	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	// DefaultTimeout bounds the wait for a command response
	DefaultTimeout = time.Second

	ackTimeout    = 100 * time.Millisecond
	readyInterval = 2 * time.Millisecond
	maxNackTries  = 3

	// readLength is the status byte plus the largest normal frame
	readLength = 1 + frame.MaxFrameLength
)

// Transport implements the pn532.Transport interface for I2C communication
type Transport struct {
	dev     *i2c.Dev
	closer  interface{ Close() error }
	busName string
	timeout time.Duration
	mu      sync.Mutex
}

// New opens the named I2C bus (for example "/dev/i2c-1" or "1") and
// returns a transport for the PN532 on it
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, pn532.NewTransportError("open", busName,
			fmt.Errorf("%w: %w", pn532.ErrDeviceNotFound, err), pn532.ErrorTypePermanent)
	}

	// Some adapters cannot change speed; the default clock still works
	_ = bus.SetSpeed(maxClockFreq)

	t := NewWithBus(bus, busName)
	t.closer = bus
	return t, nil
}

// NewWithBus returns a transport on an already opened bus. The bus is not
// closed by Close.
func NewWithBus(bus i2c.Bus, busName string) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: Address, Bus: bus},
		busName: busName,
		timeout: DefaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext writes the command frame, waits for the ACK and then
// for the response frame. If the response does not arrive in time, or ctx
// ends first, an ACK is sent to abort the pending command.
func (t *Transport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before sending command: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, pn532.NewTransportError("send", t.busName, pn532.ErrTransportNotReady, pn532.ErrorTypePermanent)
	}

	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}

	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	resp, err := t.receiveFrame(ctx)
	if err != nil {
		if abortErr := t.sendAck(); abortErr != nil {
			pn532.Logger().WithError(abortErr).Debug("i2c: failed to abort pending command")
		}
		return nil, err
	}

	return resp, nil
}

// sendFrame writes a normal information frame
func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return pn532.NewDataTooLargeError("sendFrame", t.busName)
	}

	if err := t.dev.Tx(frm, nil); err != nil {
		return pn532.NewTransportError("sendFrame", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	return nil
}

// waitReady polls the status byte until the PN532 has data for us
func (t *Transport) waitReady(ctx context.Context, timeout time.Duration, op string) error {
	status := make([]byte, 1)
	_, err := transport.TimeoutRetry(timeout, readyInterval, op, t.busName, func() (struct{}, bool, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, false, fmt.Errorf("%s cancelled: %w", op, err)
		}
		if err := t.dev.Tx(nil, status); err != nil {
			return struct{}{}, false, pn532.NewTransportError(op, t.busName,
				fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
		}
		return struct{}{}, status[0] != pn532Ready, nil
	})
	return err
}

// waitAck waits for the ACK frame that confirms the command was received
func (t *Transport) waitAck(ctx context.Context) error {
	if err := t.waitReady(ctx, ackTimeout, "waitAck"); err != nil {
		var te *pn532.TransportError
		if errors.As(err, &te) && te.Type == pn532.ErrorTypeTimeout {
			return pn532.NewNoACKError("waitAck", t.busName)
		}
		return err
	}

	buf := make([]byte, 1+len(frame.AckFrame))
	if err := t.dev.Tx(nil, buf); err != nil {
		return pn532.NewTransportError("waitAck", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
	}

	if buf[0] != pn532Ready || !frame.IsAck(buf[1:]) {
		pn532.Logger().Debugf("i2c: expected ACK, got % X", buf)
		return pn532.NewNoACKError("waitAck", t.busName)
	}
	return nil
}

// receiveFrame waits for and reads the response frame. Corrupted frames
// are NACKed so the PN532 sends them again.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	if err := t.waitReady(ctx, t.timeout, "receiveFrame"); err != nil {
		return nil, err
	}

	return transport.WithRetry(transport.RetryConfig{
		MaxRetries: maxNackTries,
		Op:         "receiveFrame",
		Port:       t.busName,
		OnRetry: func() error {
			if err := t.sendNack(); err != nil {
				return err
			}
			return t.waitReady(ctx, t.timeout, "receiveFrame")
		},
	}, func() ([]byte, bool, error) {
		return t.readFrame()
	})
}

// readFrame performs one status-prefixed read and decodes the frame in it
func (t *Transport) readFrame() (data []byte, shouldRetry bool, err error) {
	buf := make([]byte, readLength)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, false, pn532.NewTransportError("receiveFrame", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
	}

	if buf[0] != pn532Ready {
		return nil, true, nil
	}

	f, _, err := frame.Parse(buf[1:])
	switch {
	case err == nil && f.Kind == frame.KindData:
		return f.Data, false, nil
	case err == nil:
		pn532.Logger().Debugf("i2c: unexpected %s frame while waiting for response", f.Kind)
		return nil, true, nil
	case errors.Is(err, frame.ErrApplicationError):
		return nil, false, pn532.NewTransportError("receiveFrame", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrInvalidResponse, err), pn532.ErrorTypePermanent)
	default:
		pn532.Logger().Debugf("i2c: bad frame (%v), sending NACK", err)
		return nil, true, nil
	}
}

// sendAck sends an ACK frame, which also aborts a pending command
func (t *Transport) sendAck() error {
	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		return pn532.NewTransportError("sendAck", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	return nil
}

// sendNack asks the PN532 to send its last response again
func (t *Transport) sendNack() error {
	if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
		return pn532.NewTransportError("sendNack", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	return nil
}

// SetTimeout sets the response timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", pn532.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close releases the bus if this transport opened it
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dev = nil
	if t.closer == nil {
		return nil
	}
	closer := t.closer
	t.closer = nil
	if err := closer.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus %s: %w", t.busName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

// Ensure Transport implements pn532.Transport and pn532.TransportContext
var (
	_ pn532.Transport        = (*Transport)(nil)
	_ pn532.TransportContext = (*Transport)(nil)
)
