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

// Command readblock waits for a MIFARE Classic card on a PN532 reader and
// prints one 16 byte block to stdout.
//
// Usage:
//
//	readblock [-device /dev/i2c-1] [-block 4] [-key FFFFFFFFFFFF] [-passcode]
//
// The raw block is printed without a trailing newline. On failure the PN532
// error code is printed as "Error: 0xNN" and the exit status is 1.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/internal/blockio"
	"github.com/ZaparooProject/mfblock/internal/config"
	"github.com/sirupsen/logrus"
)

const exitFailure = 1

type connectFunc func(ctx context.Context, cfg *config.Config) (*pn532.Device, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, blockio.Connect)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, connect connectFunc) int {
	flags := flag.NewFlagSet("readblock", flag.ContinueOnError)
	flags.SetOutput(stderr)
	passcode := flags.Bool("passcode", false, "strip a trailing line ending and NUL padding from the block")

	cfg, err := config.Load(flags, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if errors.Is(err, config.ErrUsage) {
		return exitFailure
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "readblock: %v\n", err)
		return exitFailure
	}
	if flags.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "readblock: unexpected arguments: %v\n", flags.Args())
		return exitFailure
	}

	log := blockio.NewLogger(stderr, cfg.Debug)

	device, err := connect(ctx, cfg)
	if err != nil {
		return fail(stdout, log, err)
	}
	defer func() {
		if err := device.Close(); err != nil {
			log.WithError(err).Warn("failed to close reader")
		}
	}()

	opts, err := blockio.OptionsFromConfig(cfg, log)
	if err != nil {
		return fail(stdout, log, err)
	}
	session := blockio.NewSession(device, opts)

	if *passcode {
		code, err := session.ReadPasscode(ctx)
		if err != nil {
			return fail(stdout, log, err)
		}
		_, _ = io.WriteString(stdout, code)
		return 0
	}

	data, err := session.ReadBlock(ctx)
	if err != nil {
		return fail(stdout, log, err)
	}
	_, _ = stdout.Write(data)
	return 0
}

func fail(stdout io.Writer, log logrus.FieldLogger, err error) int {
	log.WithError(err).Error("read failed")
	_, _ = fmt.Fprintf(stdout, "Error: 0x%02x\r\n", pn532.ErrorCode(err))
	return exitFailure
}
