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

// Package i2c detects PN532 readers on the host's I2C buses. Importing it
// registers the detector with the detection package.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/mfblock/detection"
	"github.com/ZaparooProject/mfblock/internal/frame"
)

const (
	// DefaultPN532Address is the standard I2C address for PN532 (0x48 >> 1)
	DefaultPN532Address = 0x24

	// TransportName is the detection.DeviceInfo transport for I2C readers
	TransportName = "i2c"

	pn532Ready     = 0x01
	cmdGetFirmware = 0x02
	pn532ICVersion = 0x32
	i2cFuncPlain   = 0x00000001

	probeTimeout  = time.Second
	probeInterval = 5 * time.Millisecond
)

// bus is an open I2C adapter with the slave address already selectable
type bus interface {
	Funcs() (uint32, error)
	SetAddress(addr uint16) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// detector implements detection.Detector for I2C buses
type detector struct {
	listBuses func() ([]string, error)
	openBus   func(path string) (bus, error)
}

// New creates an I2C detector for the current platform
func New() detection.Detector {
	return &detector{listBuses: listBuses, openBus: openBus}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return TransportName
}

// Detect looks for a PN532 at 0x24 on every I2C bus. In passive mode a
// bus that answers at the address is reported with medium confidence; in
// the other modes the device must answer GetFirmwareVersion as a PN532.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	paths, err := d.listBuses()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		dev, ok := d.checkBus(ctx, path, opts.Mode)
		if ok {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) checkBus(ctx context.Context, path string, mode detection.Mode) (detection.DeviceInfo, bool) {
	b, err := d.openBus(path)
	if err != nil {
		return detection.DeviceInfo{}, false
	}
	defer func() { _ = b.Close() }()

	if funcs, err := b.Funcs(); err != nil || funcs&i2cFuncPlain == 0 {
		return detection.DeviceInfo{}, false
	}
	if err := b.SetAddress(DefaultPN532Address); err != nil {
		return detection.DeviceInfo{}, false
	}

	status := make([]byte, 1)
	if _, err := b.Read(status); err != nil {
		return detection.DeviceInfo{}, false
	}

	dev := detection.DeviceInfo{
		Transport:  TransportName,
		Path:       path,
		Name:       fmt.Sprintf("PN532 on %s", path),
		Confidence: detection.Medium,
		Metadata: map[string]string{
			"address": fmt.Sprintf("0x%02X", DefaultPN532Address),
		},
	}
	if mode == detection.Passive {
		return dev, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	version, err := probeFirmware(probeCtx, b)
	if err != nil {
		return detection.DeviceInfo{}, false
	}
	dev.Confidence = detection.High
	dev.Metadata["firmware"] = version
	return dev, true
}

// probeFirmware sends GetFirmwareVersion and returns "ver.rev" when the
// answer comes from a PN532
func probeFirmware(ctx context.Context, b bus) (string, error) {
	cmd, err := frame.Build(cmdGetFirmware, nil)
	if err != nil {
		return "", err
	}
	if _, err := b.Write(cmd); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}

	ack := make([]byte, 1+len(frame.AckFrame))
	if err := readWhenReady(ctx, b, ack); err != nil {
		return "", err
	}
	if !frame.IsAck(ack[1:]) {
		return "", errors.New("no ACK")
	}

	resp := make([]byte, 1+frame.MaxFrameLength)
	if err := readWhenReady(ctx, b, resp); err != nil {
		return "", err
	}
	f, _, err := frame.Parse(resp[1:])
	if err != nil {
		return "", err
	}
	if f.Kind != frame.KindData || len(f.Data) < 5 || f.Data[0] != cmdGetFirmware+1 {
		return "", errors.New("unexpected firmware response")
	}
	if f.Data[1] != pn532ICVersion {
		return "", fmt.Errorf("IC 0x%02X is not a PN532", f.Data[1])
	}
	return fmt.Sprintf("%d.%d", f.Data[2], f.Data[3]), nil
}

// readWhenReady reads into buf until the status byte reports ready
func readWhenReady(ctx context.Context, b bus, buf []byte) error {
	for {
		if _, err := b.Read(buf); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if buf[0] == pn532Ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probeInterval):
		}
	}
}
