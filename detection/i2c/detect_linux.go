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

//go:build linux

package i2c

import (
	"fmt"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

const (
	// I2CSlave is the ioctl command to set slave address
	I2CSlave = 0x0703

	// I2CFuncs is the ioctl command to get adapter functionality
	I2CFuncs = 0x0705
)

// ioctlGetLong reads an ioctl result the kernel stores as unsigned long.
// Go's int has the width of unsigned long on Linux.
var ioctlGetLong = unix.IoctlGetInt

// devBus is an i2c-dev character device
type devBus struct {
	fd int
}

func openBus(path string) (bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &devBus{fd: fd}, nil
}

func (b *devBus) Funcs() (uint32, error) {
	funcs, err := ioctlGetLong(b.fd, I2CFuncs)
	if err != nil {
		return 0, fmt.Errorf("I2C_FUNCS: %w", err)
	}
	return uint32(funcs), nil //nolint:gosec // functionality flags fit in the low 32 bits
}

func (b *devBus) SetAddress(addr uint16) error {
	return unix.IoctlSetInt(b.fd, I2CSlave, int(addr))
}

func (b *devBus) Read(p []byte) (int, error) {
	return unix.Read(b.fd, p)
}

func (b *devBus) Write(p []byte) (int, error) {
	return unix.Write(b.fd, p)
}

func (b *devBus) Close() error {
	return unix.Close(b.fd)
}

// listBuses returns the /dev/i2c-N nodes in bus number order
func listBuses() ([]string, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C devices: %w", err)
	}

	type numbered struct {
		path string
		n    int
	}
	buses := make([]numbered, 0, len(matches))
	for _, path := range matches {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(path), "i2c-%d", &n); err != nil {
			continue
		}
		buses = append(buses, numbered{path: path, n: n})
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].n < buses[j].n })

	paths := make([]string, len(buses))
	for i, b := range buses {
		paths[i] = b.path
	}
	return paths, nil
}
