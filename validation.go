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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrVerificationFailed means a written block did not read back unchanged
var ErrVerificationFailed = errors.New("block verification failed")

// ValidationConfig controls verified writes
type ValidationConfig struct {
	// RetryDelay is the pause before another write attempt
	RetryDelay time.Duration

	// WriteRetries is the number of extra attempts after a mismatch or a
	// retryable transport error
	WriteRetries int
}

// DefaultValidationConfig returns the settings used when nil is passed
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		WriteRetries: 2,
		RetryDelay:   50 * time.Millisecond,
	}
}

// WriteBlockVerified writes data to block and reads it back until both
// match. Errors that are not retryable, such as a rejected write, end the
// attempt at once.
func (m *MIFAREClassic) WriteBlockVerified(
	ctx context.Context, block uint8, data []byte, config *ValidationConfig,
) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	var lastErr error
	for attempt := 0; attempt <= config.WriteRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, config.RetryDelay); err != nil {
				return err
			}
			debugf("verified write of block %d: attempt %d after %v", block, attempt+1, lastErr)
		}

		lastErr = m.writeAndCompare(ctx, block, data)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrVerificationFailed) && !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("block %d not verified after %d attempts: %w", block, config.WriteRetries+1, lastErr)
}

func (m *MIFAREClassic) writeAndCompare(ctx context.Context, block uint8, data []byte) error {
	if err := m.WriteBlock(ctx, block, data); err != nil {
		return err
	}
	readBack, err := m.ReadBlock(ctx, block)
	if err != nil {
		return err
	}
	if !bytes.Equal(readBack, data) {
		return fmt.Errorf("%w: block %d", ErrVerificationFailed, block)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
