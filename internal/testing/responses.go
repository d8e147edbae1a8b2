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

// Responses below start with the response code (command + 1), the way
// transports hand them to the driver.

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response
func BuildFirmwareVersionResponse() []byte {
	// IC, Ver, Rev, Support: PN532 version 1.6, ISO14443A/B and ISO18092
	return []byte{0x03, 0x32, 0x01, 0x06, 0x07}
}

// BuildSAMConfigurationResponse creates a SAMConfiguration response
func BuildSAMConfigurationResponse() []byte {
	return []byte{0x15}
}

// BuildRFConfigurationResponse creates an RFConfiguration response
func BuildRFConfigurationResponse() []byte {
	return []byte{0x33}
}

// BuildTagDetectionResponse creates an InListPassiveTarget response
func BuildTagDetectionResponse(tagType string, uid []byte) []byte {
	switch tagType {
	case "MIFARE1K":
		return buildDetectionResponse(uid, 0x00, 0x04, 0x08)
	case "MIFARE4K":
		return buildDetectionResponse(uid, 0x00, 0x02, 0x18)
	case "NTAG213":
		return buildDetectionResponse(uid, 0x00, 0x44, 0x00)
	default:
		return buildDetectionResponse(uid, 0x00, 0x04, 0x00)
	}
}

// BuildNoTagResponse creates an empty InListPassiveTarget response
func BuildNoTagResponse() []byte {
	return []byte{0x4B, 0x00}
}

// BuildDataExchangeResponse creates a successful InDataExchange response
func BuildDataExchangeResponse(data []byte) []byte {
	response := []byte{0x41, 0x00}
	return append(response, data...)
}

// BuildDataExchangeErrorResponse creates an InDataExchange response carrying
// a PN532 error status
func BuildDataExchangeErrorResponse(status byte) []byte {
	return []byte{0x41, status}
}

// BuildReleaseResponse creates a successful InRelease response
func BuildReleaseResponse() []byte {
	return []byte{0x53, 0x00}
}

// BuildErrorResponse creates an error response for any command
func BuildErrorResponse(cmd, errorCode byte) []byte {
	return []byte{cmd + 1, errorCode}
}

// buildDetectionResponse: NbTg, Tg, ATQA, SAK, UID length and UID
func buildDetectionResponse(uid []byte, atqa0, atqa1, sak byte) []byte {
	response := []byte{0x4B, 0x01, 0x01, atqa0, atqa1, sak, byte(len(uid))}
	return append(response, uid...)
}

// Common UIDs for testing
var (
	// TestMIFARE1KUID is a sample single size MIFARE Classic 1K UID
	TestMIFARE1KUID = []byte{0x12, 0x34, 0x56, 0x78}

	// TestMIFARE1K7UID is a sample double size MIFARE Classic 1K UID
	TestMIFARE1K7UID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}

	// TestNTAG213UID is a sample NTAG213 UID
	TestNTAG213UID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x80}
)

// Command bytes for reference
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// MIFARE Classic card commands carried inside InDataExchange
const (
	MifareCmdAuthA = 0x60
	MifareCmdAuthB = 0x61
	MifareCmdRead  = 0x30
	MifareCmdWrite = 0xA0
)

// PN532 status bytes the virtual card reports
const (
	StatusOK              = 0x00
	StatusTimeout         = 0x01
	StatusMifareAuthError = 0x14
)
