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

package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Parse errors
var (
	ErrIncomplete       = errors.New("incomplete frame")
	ErrNoStartCode      = errors.New("frame start code not found")
	ErrLengthChecksum   = errors.New("frame length checksum mismatch")
	ErrDataChecksum     = errors.New("frame data checksum mismatch")
	ErrApplicationError = errors.New("PN532 application error frame")
	ErrUnexpectedTFI    = errors.New("unexpected frame identifier")
	ErrDataTooLarge     = errors.New("frame data too large")
)

// Kind identifies the type of a received frame
type Kind int

const (
	// KindData is a normal information frame from the PN532
	KindData Kind = iota
	// KindAck is the 6 byte ACK frame
	KindAck
	// KindNack is the 6 byte NACK frame
	KindNack
)

// String returns the frame kind name
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is a decoded PN532 frame. For KindData, Data holds the bytes after
// the TFI, starting with the response code.
type Frame struct {
	Data []byte
	Kind Kind
}

// Build encodes a host-to-PN532 normal information frame for cmd and args
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args) // TFI + cmd + args
	if dataLen > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, dataLen)
	}

	frm := make([]byte, 0, dataLen+Overhead)
	frm = append(frm, Preamble, StartCode1, StartCode2)
	frm = append(frm, byte(dataLen), CalculateLengthChecksum(byte(dataLen)))
	frm = append(frm, HostToPn532, cmd)
	frm = append(frm, args...)

	payload := append([]byte{cmd}, args...)
	frm = append(frm, CalculateDataChecksum(HostToPn532, payload), Postamble)
	return frm, nil
}

// findStart returns the index of the first 0x00 0xFF start code in buf
func findStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// Parse decodes the first frame in buf. It returns the frame and the number
// of bytes consumed, including any leading garbage and the postamble when
// present. ErrIncomplete means more bytes are needed.
func Parse(buf []byte) (Frame, int, error) {
	start := findStart(buf)
	if start < 0 {
		return Frame{}, 0, ErrNoStartCode
	}

	off := start + 2
	if len(buf) < off+2 {
		return Frame{}, 0, ErrIncomplete
	}

	length, lcs := buf[off], buf[off+1]
	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindAck}, consumed(buf, off+2), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNack}, consumed(buf, off+2), nil
	case length+lcs != 0:
		return Frame{}, off + 2, ErrLengthChecksum
	}

	dataStart := off + 2
	dataEnd := dataStart + int(length)
	if len(buf) < dataEnd+1 {
		return Frame{}, 0, ErrIncomplete
	}

	// data plus DCS must sum to zero
	if !ValidateChecksum(buf[dataStart : dataEnd+1]) {
		return Frame{}, dataEnd + 1, ErrDataChecksum
	}

	n := consumed(buf, dataEnd+1)
	data := buf[dataStart:dataEnd]
	if len(data) == 0 {
		return Frame{}, n, ErrIncomplete
	}

	switch data[0] {
	case Pn532ToHost:
	case ErrorTFI:
		return Frame{}, n, ErrApplicationError
	default:
		return Frame{}, n, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, data[0])
	}

	out := make([]byte, len(data)-1)
	copy(out, data[1:])
	return Frame{Kind: KindData, Data: out}, n, nil
}

// consumed extends n over a trailing postamble byte when one is present
func consumed(buf []byte, n int) int {
	if n < len(buf) && buf[n] == Postamble {
		return n + 1
	}
	return n
}

// IsAck reports whether buf starts with an ACK frame
func IsAck(buf []byte) bool {
	f, _, err := Parse(buf)
	return err == nil && f.Kind == KindAck
}
