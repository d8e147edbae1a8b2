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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	frm, err := Build(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, frm)

	frm, err = Build(0x14, []byte{0x01, 0x14, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x14, 0x01, 0x14, 0x01, 0x02, 0x00}, frm)
}

func TestBuild_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := Build(0x40, make([]byte, MaxDataLength))
	require.ErrorIs(t, err, ErrDataTooLarge)
}

// responseFrame builds a PN532-to-host frame around data for test input
func responseFrame(data ...byte) []byte {
	body := append([]byte{Pn532ToHost}, data...)
	frm := []byte{Preamble, StartCode1, StartCode2, byte(len(body)), CalculateLengthChecksum(byte(len(body)))}
	frm = append(frm, body...)
	frm = append(frm, ^CalculateChecksum(body)+1, Postamble)
	return frm
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr  error
		name     string
		input    []byte
		wantData []byte
		wantKind Kind
		wantUsed int
	}{
		{
			name:     "ACK",
			input:    AckFrame,
			wantKind: KindAck,
			wantUsed: 6,
		},
		{
			name:     "NACK",
			input:    NackFrame,
			wantKind: KindNack,
			wantUsed: 6,
		},
		{
			name:     "SAMConfiguration response",
			input:    responseFrame(0x15),
			wantKind: KindData,
			wantData: []byte{0x15},
			wantUsed: 9,
		},
		{
			name:     "leading garbage is skipped",
			input:    append([]byte{0x01, 0x80}, responseFrame(0x41, 0x00)...),
			wantKind: KindData,
			wantData: []byte{0x41, 0x00},
			wantUsed: 12,
		},
		{
			name:    "incomplete header",
			input:   []byte{0x00, 0x00, 0xFF, 0x03},
			wantErr: ErrIncomplete,
		},
		{
			name:    "incomplete body",
			input:   responseFrame(0x41, 0x00)[:7],
			wantErr: ErrIncomplete,
		},
		{
			name:    "no start code",
			input:   []byte{0x01, 0x02, 0x03},
			wantErr: ErrNoStartCode,
		},
		{
			name:    "bad length checksum",
			input:   []byte{0x00, 0x00, 0xFF, 0x03, 0x00, 0xD5, 0x41, 0x00, 0xEA, 0x00},
			wantErr: ErrLengthChecksum,
		},
		{
			name:    "bad data checksum",
			input:   []byte{0x00, 0x00, 0xFF, 0x03, 0xFD, 0xD5, 0x41, 0x00, 0x00, 0x00},
			wantErr: ErrDataChecksum,
		},
		{
			name:    "application error frame",
			input:   []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00},
			wantErr: ErrApplicationError,
		},
		{
			name:    "host frame echoed back",
			input:   []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00},
			wantErr: ErrUnexpectedTFI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, n, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.wantData, f.Data)
			assert.Equal(t, tt.wantUsed, n)
		})
	}
}

func TestBuildParseResponseShape(t *testing.T) {
	t.Parallel()

	// A host frame parses as an unexpected TFI, proving Parse checks direction
	frm, err := Build(0x4A, []byte{0x01, 0x00})
	require.NoError(t, err)
	_, _, err = Parse(frm)
	require.ErrorIs(t, err, ErrUnexpectedTFI)

	assert.True(t, IsAck(AckFrame))
	assert.False(t, IsAck(NackFrame))
}
