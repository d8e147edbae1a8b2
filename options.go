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
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithRetryConfig sets the retry configuration for the device
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.SetRetryConfig(config)
		return nil
	}
}

// WithTimeout sets the default timeout for device operations
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithMaxRetries sets the maximum number of attempts for transport commands
func WithMaxRetries(maxAttempts int) Option {
	return func(device *Device) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidParameter, maxAttempts)
		}
		if device.config.RetryConfig == nil {
			device.config.RetryConfig = DefaultRetryConfig()
		}
		device.config.RetryConfig.MaxAttempts = maxAttempts
		if tr, ok := device.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(device.config.RetryConfig)
		}
		return nil
	}
}

// WithPollTimeout bounds a single target poll
func WithPollTimeout(timeout time.Duration) Option {
	return func(device *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: poll timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		device.config.PollTimeout = timeout
		return nil
	}
}

// WithPassiveActivationRetries sets how often the PN532 retries passive
// activation before reporting zero targets. 0xFF means retry forever.
func WithPassiveActivationRetries(retries byte) Option {
	return func(device *Device) error {
		device.config.PassiveActivationRetries = retries
		return nil
	}
}
