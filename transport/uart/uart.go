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

// Package uart provides the HSU (UART) transport for PN532 boards attached
// through a serial port or USB-serial adapter
package uart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/internal/frame"
	"github.com/ZaparooProject/mfblock/internal/transport"
	"go.bug.st/serial"
)

const (
	// BaudRate is the PN532 HSU default speed
	BaudRate = 115200

	// DefaultTimeout bounds the wait for a command response
	DefaultTimeout = time.Second

	ackTimeout   = 100 * time.Millisecond
	readTimeout  = 10 * time.Millisecond
	maxNackTries = 3
)

// wakeUpPreamble takes the PN532 out of low power mode before the first
// command. The long run of zeros gives it time to start its oscillator.
var wakeUpPreamble = []byte{
	0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// port is the part of serial.Port the transport uses
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Transport implements the pn532.Transport interface for UART communication
type Transport struct {
	port     port
	pending  []byte
	portName string
	timeout  time.Duration
	mu       sync.Mutex
	awake    bool
}

// New opens portName at 115200 8N1
func New(portName string) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, pn532.NewTransportError("open", portName,
			fmt.Errorf("%w: %w", pn532.ErrDeviceNotFound, err), pn532.ErrorTypePermanent)
	}

	return newWithPort(p, portName), nil
}

func newWithPort(p port, portName string) *Transport {
	return &Transport{
		port:     p,
		portName: portName,
		timeout:  DefaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext writes the command frame, waits for the ACK and then
// for the response frame. A response that does not arrive in time is
// aborted with an ACK.
func (t *Transport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before sending command: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, pn532.NewTransportError("send", t.portName, pn532.ErrTransportNotReady, pn532.ErrorTypePermanent)
	}

	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}

	ack, err := t.readFrame(ctx, ackTimeout, "waitAck")
	if err != nil {
		if pn532.GetErrorType(err) == pn532.ErrorTypeTimeout {
			return nil, pn532.NewNoACKError("waitAck", t.portName)
		}
		return nil, err
	}
	if ack.Kind != frame.KindAck {
		return nil, pn532.NewNoACKError("waitAck", t.portName)
	}

	resp, err := t.receiveResponse(ctx)
	if err != nil {
		if abortErr := t.write(frame.AckFrame, "sendAck"); abortErr != nil {
			pn532.Logger().WithError(abortErr).Debug("uart: failed to abort pending command")
		}
		return nil, err
	}
	return resp, nil
}

func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return pn532.NewDataTooLargeError("sendFrame", t.portName)
	}

	t.pending = nil
	if err := t.port.ResetInputBuffer(); err != nil {
		return pn532.NewTransportError("sendFrame", t.portName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}

	if !t.awake {
		frm = append(append([]byte(nil), wakeUpPreamble...), frm...)
	}

	if err := t.write(frm, "sendFrame"); err != nil {
		return err
	}
	t.awake = true
	return nil
}

func (t *Transport) write(data []byte, op string) error {
	n, err := t.port.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err != nil {
		return pn532.NewTransportError(op, t.portName,
			fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err), pn532.ErrorTypeTransient)
	}
	return nil
}

// receiveResponse reads the response frame, NACKing corrupted ones
func (t *Transport) receiveResponse(ctx context.Context) ([]byte, error) {
	return transport.WithRetry(transport.RetryConfig{
		MaxRetries: maxNackTries,
		Op:         "receiveFrame",
		Port:       t.portName,
		OnRetry: func() error {
			return t.write(frame.NackFrame, "sendNack")
		},
	}, func() ([]byte, bool, error) {
		f, err := t.readFrame(ctx, t.timeout, "receiveFrame")
		switch {
		case err == nil && f.Kind == frame.KindData:
			return f.Data, false, nil
		case err == nil:
			pn532.Logger().Debugf("uart: unexpected %s frame while waiting for response", f.Kind)
			return nil, true, nil
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			pn532.Logger().Debugf("uart: bad frame (%v), sending NACK", err)
			return nil, true, nil
		case errors.Is(err, frame.ErrApplicationError):
			return nil, false, pn532.NewTransportError("receiveFrame", t.portName,
				fmt.Errorf("%w: %w", pn532.ErrInvalidResponse, err), pn532.ErrorTypePermanent)
		default:
			return nil, false, err
		}
	})
}

// readFrame accumulates bytes until a whole frame can be parsed. Bytes
// after the frame are kept for the next call.
func (t *Transport) readFrame(ctx context.Context, timeout time.Duration, op string) (frame.Frame, error) {
	if err := t.port.SetReadTimeout(readTimeout); err != nil {
		return frame.Frame{}, pn532.NewTransportError(op, t.portName,
			fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
	}

	deadline := time.Now().Add(timeout)
	buf := append(make([]byte, 0, frame.MaxFrameLength), t.pending...)
	t.pending = nil
	chunk := make([]byte, frame.MaxFrameLength)

	for {
		if len(buf) > 0 {
			f, n, err := frame.Parse(buf)
			switch {
			case err == nil:
				t.pending = append([]byte(nil), buf[n:]...)
				return f, nil
			case errors.Is(err, frame.ErrIncomplete):
			case errors.Is(err, frame.ErrNoStartCode):
				// keep a trailing 0x00 that may begin the start code
				if last := buf[len(buf)-1]; last == frame.StartCode1 {
					buf = append(buf[:0], last)
				} else {
					buf = buf[:0]
				}
			default:
				return frame.Frame{}, err
			}
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, fmt.Errorf("%s cancelled: %w", op, err)
		}
		if !time.Now().Before(deadline) {
			return frame.Frame{}, pn532.NewTimeoutError(op, t.portName)
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return frame.Frame{}, pn532.NewTransportError(op, t.portName,
				fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
		}
		buf = append(buf, chunk[:n]...)
	}
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

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	p := t.port
	t.port = nil
	if err := p.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

// Ensure Transport implements pn532.Transport and pn532.TransportContext
var (
	_ pn532.Transport        = (*Transport)(nil)
	_ pn532.TransportContext = (*Transport)(nil)
	_ port                   = serial.Port(nil)
)
