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
	"encoding/hex"
	"fmt"
	"strings"
)

// MIFARE commands
const (
	mifareCmdAuthA = 0x60
	mifareCmdAuthB = 0x61
	mifareCmdRead  = 0x30
	mifareCmdWrite = 0xA0
)

// MIFARE memory structure
const (
	// MIFAREBlockSize is the size of every MIFARE Classic block
	MIFAREBlockSize         = 16
	mifareSectorSize        = 4
	mifareLargeSectorSize   = 16
	mifareLargeSectorStart  = 128
	mifareManufacturerBlock = 0
	mifareKeySize           = 6
)

// MIFAREKey is a six byte MIFARE Classic sector key
type MIFAREKey [mifareKeySize]byte

// DefaultKey is the factory transport key
var DefaultKey = MIFAREKey{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ParseKey decodes a key from 12 hex digits. Spaces and colons are ignored.
func ParseKey(s string) (MIFAREKey, error) {
	var key MIFAREKey
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return key, fmt.Errorf("%w: %q: %w", ErrInvalidKey, s, err)
	}
	if len(raw) != mifareKeySize {
		return key, fmt.Errorf("%w: %q has %d bytes, want %d", ErrInvalidKey, s, len(raw), mifareKeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// String returns the key as upper case hex
func (k MIFAREKey) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// KeyType selects which sector key authenticates a block
type KeyType byte

// Key types, valued as the MIFARE authentication command that uses them
const (
	KeyTypeA KeyType = mifareCmdAuthA
	KeyTypeB KeyType = mifareCmdAuthB
)

// ParseKeyType accepts "A" or "B" in either case
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyTypeA, nil
	case "B":
		return KeyTypeB, nil
	default:
		return 0, fmt.Errorf("%w: key type %q must be A or B", ErrInvalidParameter, s)
	}
}

// String returns "A" or "B"
func (k KeyType) String() string {
	switch k {
	case KeyTypeA:
		return "A"
	case KeyTypeB:
		return "B"
	default:
		return fmt.Sprintf("KeyType(0x%02X)", byte(k))
	}
}

// SectorOf returns the sector holding block, for both the 1K and 4K layouts
func SectorOf(block uint8) int {
	if block < mifareLargeSectorStart {
		return int(block) / mifareSectorSize
	}
	return mifareLargeSectorStart/mifareSectorSize + (int(block)-mifareLargeSectorStart)/mifareLargeSectorSize
}

// IsSectorTrailer reports whether block holds the keys and access bits of
// its sector
func IsSectorTrailer(block uint8) bool {
	if block < mifareLargeSectorStart {
		return block%mifareSectorSize == mifareSectorSize-1
	}
	return (block-mifareLargeSectorStart)%mifareLargeSectorSize == mifareLargeSectorSize-1
}

// MIFAREClassic performs authenticated block access on a selected MIFARE
// Classic card
type MIFAREClassic struct {
	device      *Device
	tag         *DetectedTag
	authSector  int
	authKeyType KeyType
}

// NewMIFAREClassic wraps a detected tag. It returns ErrUnsupportedTarget
// when the SAK does not identify a MIFARE Classic card.
func NewMIFAREClassic(device *Device, tag *DetectedTag) (*MIFAREClassic, error) {
	if tag == nil {
		return nil, fmt.Errorf("%w: no tag", ErrInvalidParameter)
	}
	if !tag.IsMIFAREClassic() {
		return nil, fmt.Errorf("%w: SAK 0x%02X is not MIFARE Classic", ErrUnsupportedTarget, tag.SAK)
	}
	return &MIFAREClassic{
		device:     device,
		tag:        tag,
		authSector: -1,
	}, nil
}

// Tag returns the card being accessed
func (m *MIFAREClassic) Tag() *DetectedTag {
	return m.tag
}

// Authenticate authenticates the sector holding block. On failure the
// previous authentication state is dropped, as the card also forgets it.
func (m *MIFAREClassic) Authenticate(ctx context.Context, block uint8, keyType KeyType, key MIFAREKey) error {
	if keyType != KeyTypeA && keyType != KeyTypeB {
		return fmt.Errorf("%w: invalid key type 0x%02X", ErrInvalidParameter, byte(keyType))
	}

	uid := m.tag.AuthUID()
	cmd := make([]byte, 0, 2+mifareKeySize+len(uid))
	cmd = append(cmd, byte(keyType), block)
	cmd = append(cmd, key[:]...)
	cmd = append(cmd, uid...)
	defer clear(cmd)

	m.authSector = -1
	if _, err := m.device.SendDataExchangeContext(ctx, cmd); err != nil {
		return fmt.Errorf("authentication of block %d with key %s failed: %w", block, keyType, err)
	}

	m.authSector = SectorOf(block)
	m.authKeyType = keyType
	debugf("authenticated sector %d with key %s", m.authSector, keyType)
	return nil
}

// IsAuthenticated reports whether block lies in the authenticated sector
func (m *MIFAREClassic) IsAuthenticated(block uint8) bool {
	return m.authSector >= 0 && m.authSector == SectorOf(block)
}

// ReadBlock reads one 16 byte block from an authenticated sector
func (m *MIFAREClassic) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	if !m.IsAuthenticated(block) {
		return nil, fmt.Errorf("%w: sector %d (block %d)", ErrNotAuthenticated, SectorOf(block), block)
	}

	data, err := m.device.SendDataExchangeContext(ctx, []byte{mifareCmdRead, block})
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}

	if len(data) < MIFAREBlockSize {
		return nil, fmt.Errorf("%w: read of block %d returned %d bytes", ErrInvalidResponse, block, len(data))
	}

	return data[:MIFAREBlockSize], nil
}

// WriteBlock writes one 16 byte block to an authenticated sector. The
// manufacturer block and sector trailers are refused.
func (m *MIFAREClassic) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if len(data) != MIFAREBlockSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBlockSize, MIFAREBlockSize, len(data))
	}
	if block == mifareManufacturerBlock || IsSectorTrailer(block) {
		return fmt.Errorf("%w: block %d", ErrProtectedBlock, block)
	}
	if !m.IsAuthenticated(block) {
		return fmt.Errorf("%w: sector %d (block %d)", ErrNotAuthenticated, SectorOf(block), block)
	}

	cmd := make([]byte, 0, 2+MIFAREBlockSize)
	cmd = append(cmd, mifareCmdWrite, block)
	cmd = append(cmd, data...)

	if _, err := m.device.SendDataExchangeContext(ctx, cmd); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block, err)
	}

	return nil
}
