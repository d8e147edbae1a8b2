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

package testing

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownCommand is returned for PN532 commands the virtual reader
// does not emulate
var ErrUnknownCommand = errors.New("virtual reader: unknown command")

const (
	blockSize   = 16
	mifare1KLen = 64
)

// VirtualMIFARE1K simulates a PN532 with a MIFARE Classic 1K card in its
// field. Handle answers PN532 commands the way the chip would, so it can
// be plugged into a mock transport.
type VirtualMIFARE1K struct {
	UID        []byte
	memory     [mifare1KLen][blockSize]byte
	mu         sync.Mutex
	authSector int
	reads      int
	writes     int
	auths      int
	present    bool
}

// NewVirtualMIFARE1K creates a present card with factory keys and zeroed
// data blocks. A nil uid uses TestMIFARE1KUID.
func NewVirtualMIFARE1K(uid []byte) *VirtualMIFARE1K {
	if uid == nil {
		uid = TestMIFARE1KUID
	}

	card := &VirtualMIFARE1K{
		UID:        append([]byte(nil), uid...),
		present:    true,
		authSector: -1,
	}

	copy(card.memory[0][:], uid)
	for sector := 0; sector < mifare1KLen/4; sector++ {
		// Key A, access bits FF 07 80 69, Key B
		card.memory[sector*4+3] = [blockSize]byte{
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0xFF, 0x07, 0x80, 0x69,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		}
	}

	return card
}

// GetUIDString returns the UID as a hex string
func (v *VirtualMIFARE1K) GetUIDString() string {
	return hex.EncodeToString(v.UID)
}

// SetKeyA replaces Key A of a sector
func (v *VirtualMIFARE1K) SetKeyA(sector int, key []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.memory[sector*4+3][0:6], key)
}

// Block returns a copy of a block's contents
func (v *VirtualMIFARE1K) Block(block int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.memory[block][:]...)
}

// SetBlock overwrites a block, bypassing keys and access rules
func (v *VirtualMIFARE1K) SetBlock(block int, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.memory[block] = [blockSize]byte{}
	copy(v.memory[block][:], data)
}

// Remove takes the card out of the field
func (v *VirtualMIFARE1K) Remove() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.present = false
	v.authSector = -1
}

// Insert puts the card into the field
func (v *VirtualMIFARE1K) Insert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.present = true
}

// Reads returns the number of block reads the card answered
func (v *VirtualMIFARE1K) Reads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

// Writes returns the number of block writes the card accepted
func (v *VirtualMIFARE1K) Writes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writes
}

// Auths returns the number of authentication attempts
func (v *VirtualMIFARE1K) Auths() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.auths
}

// Handle answers one PN532 command. The response starts with the response
// code, like transport responses do.
func (v *VirtualMIFARE1K) Handle(cmd byte, args []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch cmd {
	case CmdGetFirmwareVersion:
		return BuildFirmwareVersionResponse(), nil
	case CmdSAMConfiguration:
		return BuildSAMConfigurationResponse(), nil
	case CmdRFConfiguration:
		return BuildRFConfigurationResponse(), nil
	case CmdInListPassiveTarget:
		if !v.present {
			return BuildNoTagResponse(), nil
		}
		v.authSector = -1
		return BuildTagDetectionResponse("MIFARE1K", v.UID), nil
	case CmdInRelease:
		v.authSector = -1
		return BuildReleaseResponse(), nil
	case CmdInDataExchange:
		return v.dataExchange(args), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, cmd)
	}
}

func (v *VirtualMIFARE1K) dataExchange(args []byte) []byte {
	if !v.present {
		return BuildDataExchangeErrorResponse(StatusTimeout)
	}
	if len(args) < 3 {
		return BuildDataExchangeErrorResponse(StatusMifareAuthError)
	}

	block := int(args[2])
	if block >= mifare1KLen {
		return BuildDataExchangeErrorResponse(StatusMifareAuthError)
	}

	switch args[1] {
	case MifareCmdAuthA, MifareCmdAuthB:
		return v.authenticate(args[1], block, args[3:])
	case MifareCmdRead:
		if v.authSector != block/4 {
			return BuildDataExchangeErrorResponse(StatusMifareAuthError)
		}
		v.reads++
		return BuildDataExchangeResponse(v.memory[block][:])
	case MifareCmdWrite:
		if v.authSector != block/4 || block == 0 || block%4 == 3 || len(args) != 3+blockSize {
			return BuildDataExchangeErrorResponse(StatusMifareAuthError)
		}
		copy(v.memory[block][:], args[3:])
		v.writes++
		return BuildDataExchangeResponse(nil)
	default:
		return BuildDataExchangeErrorResponse(StatusMifareAuthError)
	}
}

// authenticate checks key and UID against the sector trailer. Any failure
// drops the current authentication, as a real card does.
func (v *VirtualMIFARE1K) authenticate(cmd byte, block int, rest []byte) []byte {
	v.auths++
	v.authSector = -1

	if len(rest) != 6+4 {
		return BuildDataExchangeErrorResponse(StatusMifareAuthError)
	}

	trailer := v.memory[(block/4)*4+3]
	want := trailer[0:6]
	if cmd == MifareCmdAuthB {
		want = trailer[10:16]
	}

	uid := v.UID
	if len(uid) > 4 {
		uid = uid[len(uid)-4:]
	}

	if !bytes.Equal(rest[:6], want) || !bytes.Equal(rest[6:], uid) {
		return BuildDataExchangeErrorResponse(StatusMifareAuthError)
	}

	v.authSector = block / 4
	return BuildDataExchangeResponse(nil)
}
