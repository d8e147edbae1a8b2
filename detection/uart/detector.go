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

// Package uart detects PN532 readers behind serial ports, usually USB-serial
// adapters. Importing it registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/detection"
	"github.com/ZaparooProject/mfblock/transport/uart"
	"go.bug.st/serial/enumerator"
)

// TransportName is the detection.DeviceInfo transport for serial readers
const TransportName = "uart"

// commonBridges are USB-serial chips PN532 boards ship with
var commonBridges = map[string]string{
	"1A86:7523": "CH340",
	"10C4:EA60": "CP210x",
	"0403:6001": "FT232R",
	"067B:2303": "PL2303",
}

type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	probe     func(ctx context.Context, path string) (string, error)
}

// New creates a serial port detector
func New() detection.Detector {
	return &detector{listPorts: enumerator.GetDetailedPortsList, probe: probeFirmware}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return TransportName
}

// Detect lists serial ports and, outside passive mode, asks each candidate
// for its firmware version. Blocklisted USB devices are never opened.
// Ports that are not USB are only probed in full mode.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, p := range ports {
		if err := ctx.Err(); err != nil {
			return devices, detection.ErrDetectionTimeout
		}

		dev, ok := d.check(ctx, p, opts)
		if ok {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) check(ctx context.Context, p *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	if detection.IsPathIgnored(p.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}
	if !p.IsUSB && opts.Mode != detection.Full {
		return detection.DeviceInfo{}, false
	}

	vidpid := detection.FormatVIDPID(p.VID, p.PID)
	if detection.IsBlocked(vidpid, opts.Blocklist) {
		pn532.Logger().Debugf("detect: skipping blocked device %s at %s", vidpid, p.Name)
		return detection.DeviceInfo{}, false
	}

	dev := detection.DeviceInfo{
		Transport:  TransportName,
		Path:       p.Name,
		Name:       p.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}
	if vidpid != "" {
		dev.Metadata["vidpid"] = vidpid
	}
	if p.Product != "" {
		dev.Name = p.Product
		dev.Metadata["product"] = p.Product
	}
	if p.SerialNumber != "" {
		dev.Metadata["serial"] = p.SerialNumber
	}
	if bridge, ok := commonBridges[vidpid]; ok {
		dev.Confidence = detection.Medium
		dev.Metadata["bridge"] = bridge
	}

	if opts.Mode == detection.Passive {
		return dev, dev.Confidence >= detection.Medium
	}

	version, err := d.probe(ctx, p.Name)
	if err != nil {
		pn532.Logger().Debugf("detect: %s did not answer as a PN532: %v", p.Name, err)
		return detection.DeviceInfo{}, false
	}
	dev.Confidence = detection.High
	dev.Metadata["firmware"] = version
	return dev, true
}

// probeFirmware opens path as a PN532 and reads its firmware version
func probeFirmware(ctx context.Context, path string) (string, error) {
	tr, err := uart.New(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = tr.Close() }()

	device, err := pn532.New(tr)
	if err != nil {
		return "", err
	}
	fw, err := device.GetFirmwareVersionContext(ctx)
	if err != nil {
		return "", err
	}
	if fw.IC != 0x32 {
		return "", fmt.Errorf("%w: IC 0x%02X", pn532.ErrNotPN532, fw.IC)
	}
	return fw.Version, nil
}
