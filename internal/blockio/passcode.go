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

package blockio

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	pn532 "github.com/ZaparooProject/mfblock"
)

const passcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TrimPasscode turns a raw block into a passcode by dropping a trailing
// line ending and then trailing NUL padding
func TrimPasscode(block []byte) string {
	s := strings.TrimRight(string(block), "\r\n")
	return strings.TrimRight(s, "\x00")
}

// GeneratePasscode returns BlockSize random alphanumeric characters
func GeneratePasscode() (string, error) {
	limit := big.NewInt(int64(len(passcodeAlphabet)))
	out := make([]byte, BlockSize)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate passcode: %w", err)
		}
		out[i] = passcodeAlphabet[n.Int64()]
	}
	return string(out), nil
}

// ReadPasscode reads the block and returns it as a trimmed passcode
func (s *Session) ReadPasscode(ctx context.Context) (string, error) {
	data, err := s.ReadBlock(ctx)
	if err != nil {
		return "", err
	}
	return TrimPasscode(data), nil
}

// ResetPasscode writes a freshly generated passcode to the block, reads it
// back from the same card and returns it
func (s *Session) ResetPasscode(ctx context.Context) (string, error) {
	passcode, err := GeneratePasscode()
	if err != nil {
		return "", err
	}
	data := []byte(passcode)
	if err := s.checkWritable(data); err != nil {
		return "", err
	}

	err = s.withCard(ctx, func(card *pn532.MIFAREClassic) error {
		return card.WriteBlockVerified(ctx, s.opts.Block, data, nil)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("passcode reset")
	return passcode, nil
}
