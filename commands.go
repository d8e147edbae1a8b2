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

// PN532 Command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// SAM configuration modes
const (
	samModeNormal byte = 0x01
	// samTimeout is in units of 50ms; only meaningful in virtual card mode
	samTimeout byte = 0x14
	// samUseIRQ asks the PN532 to drive the P70_IRQ pin
	samUseIRQ byte = 0x01
)

// RFConfiguration items
const (
	rfItemMaxRetries byte = 0x05
)

// Baud rate / modulation types for InListPassiveTarget
const (
	// BrTy106kbpsTypeA selects ISO14443A targets (MIFARE, NTAG)
	BrTy106kbpsTypeA byte = 0x00
)

// DefaultPassiveActivationRetries limits InListPassiveTarget to roughly one
// second of internal retries before the PN532 reports zero targets. 0xFF
// would make the PN532 wait forever.
const DefaultPassiveActivationRetries byte = 0x0A
