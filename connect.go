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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/mfblock/detection"
)

// TransportFactory creates a transport for an explicit device path
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory creates a transport for a detected device
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	detectOptions          *detection.Options
	retryConfig            *RetryConfig
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
}

// WithAutoDetection picks the first reader found by the registered
// detectors instead of using a specific path
func WithAutoDetection(opts *detection.Options) ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		c.detectOptions = opts
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout sets the transport response timeout
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: connect timeout must be positive", ErrInvalidParameter)
		}
		c.timeout = timeout
		return nil
	}
}

// WithConnectRetries wraps the transport so transient failures are retried
func WithConnectRetries(config *RetryConfig) ConnectOption {
	return func(c *connectConfig) error {
		c.retryConfig = config
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// ConnectDevice opens a transport for path, or for the first detected
// reader when auto-detection is enabled or path is empty, and returns an
// initialized device. The transport is closed again if initialization
// fails.
//
//	device, err := pn532.ConnectDevice(ctx, "/dev/i2c-1",
//		pn532.WithTransportFactory(func(path string) (pn532.Transport, error) {
//			return i2c.New(path)
//		}))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config := &connectConfig{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDevice(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config)
	}

	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(ctx context.Context, config *connectConfig) (Transport, error) {
	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := config.detectOptions
	if opts == nil {
		def := detection.DefaultOptions()
		opts = &def
	}

	devices, err := detection.DetectAllContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	debugf("using detected reader %s (%s confidence)", devices[0], devices[0].Confidence)
	return config.transportDeviceFactory(devices[0])
}

func setupDevice(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if config.timeout > 0 {
		if err := device.SetTimeout(config.timeout); err != nil {
			return nil, err
		}
	}
	if config.retryConfig != nil {
		device.SetRetryConfig(config.retryConfig)
	}

	if err := device.InitContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}
	return device, nil
}
