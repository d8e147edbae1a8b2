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
	"fmt"
)

// dataExchangeTarget is the logical number of the single target we select
const dataExchangeTarget byte = 0x01

// SendDataExchange sends a data exchange command to the selected tag
func (d *Device) SendDataExchange(data []byte) ([]byte, error) {
	return d.SendDataExchangeContext(context.Background(), data)
}

// SendDataExchangeContext sends data to target 1 with InDataExchange and
// returns the target's answer. A non-zero PN532 status becomes a StatusError.
func (d *Device) SendDataExchangeContext(ctx context.Context, data []byte) ([]byte, error) {
	args := make([]byte, 0, len(data)+1)
	args = append(args, dataExchangeTarget)
	args = append(args, data...)

	resp, err := d.command(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, err
	}

	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: missing data exchange status", ErrInvalidResponse)
	}

	if resp[0]&0x3F != StatusOK {
		return nil, &StatusError{Op: "data exchange", Status: resp[0]}
	}

	return resp[1:], nil
}
