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

/*
Package pn532 drives a PN532 NFC controller far enough to read and write
single MIFARE Classic blocks.

The device talks to the chip through a Transport. The i2c and uart
packages under transport/ provide the two supported links, and the
detection package can locate a reader on either.

Basic Usage:

	import (
	    pn532 "github.com/ZaparooProject/mfblock"
	    "github.com/ZaparooProject/mfblock/transport/i2c"
	)

	device, err := pn532.ConnectDevice(ctx, "/dev/i2c-1",
	    pn532.WithTransportFactory(func(path string) (pn532.Transport, error) {
	        return i2c.New(path)
	    }),
	)
	if err != nil {
	    return err
	}
	defer device.Close()

	tag, err := device.WaitForTag(ctx)
	if err != nil {
	    return err
	}

	card, err := pn532.NewMIFAREClassic(device, tag)
	if err != nil {
	    return err
	}
	if err := card.Authenticate(ctx, 4, pn532.KeyTypeA, pn532.DefaultKey); err != nil {
	    return err
	}
	data, err := card.ReadBlock(ctx, 4)

Polling:

PollContext runs one bounded InListPassiveTarget and reports either
PollNoTarget or PollTargetFound. WaitForTag repeats it until a card answers
or the context ends; any other failure stops the wait.

Error Handling:

Status bytes reported by the chip come back as *StatusError. ErrorCode
reduces any error to the one byte code printed by the command line tools,
and IsAuthError recognises a rejected key:

	if pn532.IsAuthError(err) {
	    // wrong key for this sector
	}

Thread Safety:

Device operations are not thread-safe. Use one device from one goroutine.
*/
package pn532
