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
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportNotReady   = errors.New("transport not ready")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoACK               = errors.New("no ACK received")
	ErrFrameCorrupted      = errors.New("frame corrupted")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrDeviceNotFound      = errors.New("device not found")
)

// Protocol and parameter errors
var (
	ErrDataTooLarge      = errors.New("data too large")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrInvalidResponse   = errors.New("invalid response")
	ErrNotAuthenticated  = errors.New("sector not authenticated")
	ErrProtectedBlock    = errors.New("block is write protected")
	ErrInvalidBlockSize  = errors.New("invalid block size")
	ErrInvalidKey        = errors.New("invalid MIFARE key")
	ErrUnsupportedTarget = errors.New("unsupported target")
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away by retrying
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts, which are also retryable
	ErrorTypeTimeout
)

// String returns the error type name
func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// TransportError carries the failing operation and port of a transport error
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

// Error implements error
func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error. Timeout and transient errors
// are marked retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewFrameCorruptedError creates a retryable frame corruption error
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewDataTooLargeError creates a permanent error for oversize frames
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewNoACKError creates a retryable missing ACK error
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTransient)
}

// NewTransportNotReadyError creates a retryable not-ready error
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTransient)
}

// IsRetryable reports whether err is worth retrying. Only the error itself
// and TransportError wrappers are classified; text matching is never used.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrTransportNotReady),
		errors.Is(err, ErrCommunicationFailed),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case IsRetryable(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// PN532 status codes returned in the status byte of InDataExchange and
// friends (PN532 user manual, table 7.1)
const (
	StatusOK                   byte = 0x00
	StatusTimeout              byte = 0x01
	StatusCRCError             byte = 0x02
	StatusParityError          byte = 0x03
	StatusFramingError         byte = 0x05
	StatusBufferOverflow       byte = 0x09
	StatusRFProtocolError      byte = 0x0B
	StatusInvalidParameter     byte = 0x10
	StatusMifareAuthError      byte = 0x14
	StatusWrongUIDCheckByte    byte = 0x23
	StatusInvalidDeviceState   byte = 0x25
	StatusOperationNotAllowed  byte = 0x26
	StatusCommandNotAcceptable byte = 0x27
	StatusTargetReleased       byte = 0x29
	StatusCardExchanged        byte = 0x2B
	StatusCardDisappeared      byte = 0x2C
)

var statusNames = map[byte]string{
	StatusTimeout:              "target timeout",
	StatusCRCError:             "CRC error",
	StatusParityError:          "parity error",
	StatusFramingError:         "framing error",
	StatusBufferOverflow:       "buffer overflow",
	StatusRFProtocolError:      "RF protocol error",
	StatusInvalidParameter:     "invalid parameter",
	StatusMifareAuthError:      "MIFARE authentication error",
	StatusWrongUIDCheckByte:    "wrong UID check byte",
	StatusInvalidDeviceState:   "invalid device state",
	StatusOperationNotAllowed:  "operation not allowed",
	StatusCommandNotAcceptable: "command not acceptable",
	StatusTargetReleased:       "target released",
	StatusCardExchanged:        "card exchanged",
	StatusCardDisappeared:      "card disappeared",
}

// StatusError is a non-zero status byte reported by the PN532
type StatusError struct {
	Op     string
	Status byte
}

// Code returns the error code with the NAD and MI flag bits masked off
func (e *StatusError) Code() byte {
	return e.Status & 0x3F
}

// Error implements error
func (e *StatusError) Error() string {
	if name, ok := statusNames[e.Code()]; ok {
		return fmt.Sprintf("%s error: %02X (%s)", e.Op, e.Code(), name)
	}
	return fmt.Sprintf("%s error: %02X", e.Op, e.Code())
}

// IsAuthError reports whether err is a MIFARE authentication failure
func IsAuthError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code() == StatusMifareAuthError
}

// ErrorCodeUnknown is reported by ErrorCode for errors without a PN532 status
const ErrorCodeUnknown byte = 0xFF

// ErrorCode maps err to a one byte code for command line reporting: the
// PN532 status for StatusError, StatusTimeout for timeouts and
// ErrorCodeUnknown for everything else.
func ErrorCode(err error) byte {
	if err == nil {
		return StatusOK
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code()
	}

	if GetErrorType(err) == ErrorTypeTimeout {
		return StatusTimeout
	}
	return ErrorCodeUnknown
}
