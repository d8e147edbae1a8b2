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
	"testing"
	"time"

	testutil "github.com/ZaparooProject/mfblock/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contextTransport is a Transport that also speaks TransportContext
type contextTransport struct {
	*MockTransport
	ctxCalls int
}

func (c *contextTransport) SendCommandContext(_ context.Context, cmd byte, args []byte) ([]byte, error) {
	c.ctxCalls++
	return c.SendCommand(cmd, args)
}

func TestAsTransportContext(t *testing.T) {
	t.Parallel()

	native := &contextTransport{MockTransport: NewMockTransport()}
	assert.Same(t, native, AsTransportContext(native))

	plain := NewMockTransport()
	adapted := AsTransportContext(plain)
	_, ok := adapted.(*transportContextAdapter)
	assert.True(t, ok)
}

func TestSendCommandContext_Cancellation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		wantErrIs  error
		delay      time.Duration
		ctxTimeout time.Duration
	}{
		{
			name:       "Slow_Command_Times_Out",
			delay:      time.Second,
			ctxTimeout: 20 * time.Millisecond,
			wantErrIs:  context.DeadlineExceeded,
		},
		{
			name:       "Fast_Command_Completes",
			delay:      5 * time.Millisecond,
			ctxTimeout: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport()
			mock.SetDelay(tt.delay)
			mock.SetResponse(testutil.CmdInListPassiveTarget, testutil.BuildNoTagResponse())

			ctx, cancel := context.WithTimeout(context.Background(), tt.ctxTimeout)
			defer cancel()

			start := time.Now()
			result, err := AsTransportContext(mock).SendCommandContext(
				ctx, testutil.CmdInListPassiveTarget, []byte{0x01, 0x00})

			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
				assert.Less(t, time.Since(start), tt.delay)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, testutil.BuildNoTagResponse(), result)
		})
	}
}

func TestSendCommandContext_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AsTransportContext(mock).SendCommandContext(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.GetCallCount(0x02))
}

func TestSendCommandContext_RepeatedShortPolls(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetDelay(100 * time.Millisecond)
	mock.SetResponse(testutil.CmdInListPassiveTarget, testutil.BuildNoTagResponse())
	tc := AsTransportContext(mock)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := tc.SendCommandContext(ctx, testutil.CmdInListPassiveTarget, []byte{0x01, 0x00})
		cancel()
		require.Error(t, err, "poll %d", i)
	}

	assert.Equal(t, 3, mock.GetCallCount(testutil.CmdInListPassiveTarget))
}
