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
)

// Device errors
var (
	ErrNoTagDetected = errors.New("no tag detected")
	ErrNotPN532      = errors.New("device is not a PN532")
)

// pn532ICVersion is the IC byte a genuine PN532 reports in GetFirmwareVersion
const pn532ICVersion = 0x32

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior for transport operations
	RetryConfig *RetryConfig
	// Timeout is the default timeout for operations
	Timeout time.Duration
	// PollTimeout bounds a single InListPassiveTarget attempt
	PollTimeout time.Duration
	// PassiveActivationRetries is the PN532 MxRtyPassiveActivation value
	PassiveActivationRetries byte
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:              DefaultRetryConfig(),
		Timeout:                  1 * time.Second,
		PollTimeout:              1 * time.Second,
		PassiveActivationRetries: DefaultPassiveActivationRetries,
	}
}

// FirmwareVersion is the decoded GetFirmwareVersion response
type FirmwareVersion struct {
	Version string
	IC      byte
	Ver     byte
	Rev     byte
	Support byte
}

// SupportsISO14443A reports whether the firmware handles type A targets
func (f *FirmwareVersion) SupportsISO14443A() bool {
	return f.Support&0x01 != 0
}

// Device represents a PN532 NFC reader device
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine or protected with external synchronization.
type Device struct {
	transport       Transport
	config          *DeviceConfig
	firmwareVersion *FirmwareVersion
}

// New creates a new PN532 device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns a copy of the device configuration
func (d *Device) Config() DeviceConfig {
	return *d.config
}

// Init initializes the PN532 device
func (d *Device) Init() error {
	return d.InitContext(context.Background())
}

// InitContext checks the firmware, puts the SAM in normal mode so the PN532
// acts as a reader, and bounds the passive activation retries so target
// polling returns instead of blocking inside the chip.
func (d *Device) InitContext(ctx context.Context) error {
	fw, err := d.GetFirmwareVersionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get firmware version: %w", err)
	}
	if fw.IC != pn532ICVersion {
		return fmt.Errorf("%w: IC 0x%02X", ErrNotPN532, fw.IC)
	}
	debugf("PN532 firmware %s (support 0x%02X)", fw.Version, fw.Support)

	if err := d.SAMConfigurationContext(ctx); err != nil {
		return err
	}

	if err := d.setPassiveActivationRetries(ctx, d.config.PassiveActivationRetries); err != nil {
		return err
	}

	return nil
}

// GetFirmwareVersion returns the PN532 firmware version
func (d *Device) GetFirmwareVersion() (*FirmwareVersion, error) {
	return d.GetFirmwareVersionContext(context.Background())
}

// GetFirmwareVersionContext returns the PN532 firmware version
func (d *Device) GetFirmwareVersionContext(ctx context.Context) (*FirmwareVersion, error) {
	resp, err := d.command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, err
	}

	if len(resp) < 4 {
		return nil, fmt.Errorf("%w: firmware version response too short: %d bytes", ErrInvalidResponse, len(resp))
	}

	fw := &FirmwareVersion{
		IC:      resp[0],
		Ver:     resp[1],
		Rev:     resp[2],
		Support: resp[3],
		Version: fmt.Sprintf("%d.%d", resp[1], resp[2]),
	}
	d.firmwareVersion = fw
	return fw, nil
}

// SAMConfigurationContext configures the Security Access Module for normal
// mode, which is required before the PN532 will talk to cards
func (d *Device) SAMConfigurationContext(ctx context.Context) error {
	_, err := d.command(ctx, cmdSamConfiguration, []byte{samModeNormal, samTimeout, samUseIRQ})
	if err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	return nil
}

// setPassiveActivationRetries sets MxRtyATR, MxRtyPSL and MxRtyPassiveActivation
func (d *Device) setPassiveActivationRetries(ctx context.Context, retries byte) error {
	_, err := d.command(ctx, cmdRFConfiguration, []byte{rfItemMaxRetries, 0xFF, 0x01, retries})
	if err != nil {
		return fmt.Errorf("RF configuration failed: %w", err)
	}
	return nil
}

// command sends cmd and returns the response payload after the response code
func (d *Device) command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	resp, err := AsTransportContext(d.transport).SendCommandContext(ctx, cmd, args)
	if err != nil {
		return nil, fmt.Errorf("command 0x%02X failed: %w", cmd, err)
	}

	if len(resp) < 1 || resp[0] != cmd+1 {
		return nil, fmt.Errorf("%w: unexpected response to command 0x%02X: % X", ErrInvalidResponse, cmd, resp)
	}

	return resp[1:], nil
}

// SetTimeout sets the default timeout for operations
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// SetRetryConfig updates the retry configuration, wrapping the transport
// with retries if it is not wrapped already
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.config.RetryConfig = config
	if tr, ok := d.transport.(*TransportWithRetry); ok {
		tr.SetRetryConfig(config)
		return
	}
	d.transport = NewTransportWithRetry(d.transport, config)
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}
