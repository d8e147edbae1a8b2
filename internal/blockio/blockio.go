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

// Package blockio is the logic shared by the block reader and writer
// commands: open the reader, wait for a card, authenticate one block and
// transfer it.
package blockio

import (
	"context"
	"errors"
	"fmt"
	"time"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/ZaparooProject/mfblock/detection"
	"github.com/ZaparooProject/mfblock/internal/config"
	"github.com/ZaparooProject/mfblock/transport/i2c"
	"github.com/ZaparooProject/mfblock/transport/uart"
	"github.com/sirupsen/logrus"

	// detectors register themselves for -device auto
	_ "github.com/ZaparooProject/mfblock/detection/i2c"
	_ "github.com/ZaparooProject/mfblock/detection/uart"
)

// ErrPayloadTooShort is returned for writer input under one block
var ErrPayloadTooShort = errors.New("payload shorter than one block")

// BlockSize is the number of bytes read or written
const BlockSize = pn532.MIFAREBlockSize

// PayloadFromArg returns the first BlockSize bytes of arg. Shorter input is
// rejected before any reader I/O happens.
func PayloadFromArg(arg string) ([]byte, error) {
	if len(arg) < BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrPayloadTooShort, len(arg), BlockSize)
	}
	return []byte(arg[:BlockSize]), nil
}

// Connect opens the reader described by cfg and initializes it
func Connect(ctx context.Context, cfg *config.Config) (*pn532.Device, error) {
	opts := []pn532.ConnectOption{
		pn532.WithConnectTimeout(cfg.Timeout),
		pn532.WithConnectRetries(pn532.DefaultRetryConfig()),
		pn532.WithDeviceOptions(
			pn532.WithPollTimeout(cfg.PollTimeout),
			pn532.WithPassiveActivationRetries(cfg.PassiveRetries),
		),
		pn532.WithTransportFactory(func(path string) (pn532.Transport, error) {
			return openTransport(cfg.Transport, path)
		}),
		pn532.WithTransportFromDeviceFactory(func(dev detection.DeviceInfo) (pn532.Transport, error) {
			return openTransport(dev.Transport, dev.Path)
		}),
	}

	path := cfg.Device
	if cfg.AutoDetect() {
		detectOpts := detection.DefaultOptions()
		detectOpts.Transports = []string{cfg.Transport}
		opts = append(opts, pn532.WithAutoDetection(&detectOpts))
		path = ""
	}

	device, err := pn532.ConnectDevice(ctx, path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PN532 (%s %s): %w", cfg.Transport, cfg.Device, err)
	}
	return device, nil
}

func openTransport(kind, path string) (pn532.Transport, error) {
	switch kind {
	case config.TransportI2C:
		return i2c.New(path)
	case config.TransportUART:
		return uart.New(path)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}

// Options select the block and the key used to reach it
type Options struct {
	Logger      logrus.FieldLogger
	Key         pn532.MIFAREKey
	WaitTimeout time.Duration
	Block       uint8
	KeyType     pn532.KeyType
}

// OptionsFromConfig builds session options from cfg
func OptionsFromConfig(cfg *config.Config, logger logrus.FieldLogger) (Options, error) {
	key, keyType, err := cfg.AuthKey()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Logger:      logger,
		Key:         key,
		KeyType:     keyType,
		Block:       cfg.Block,
		WaitTimeout: cfg.WaitTimeout,
	}, nil
}

// Session transfers one block between the program and a card
type Session struct {
	device *pn532.Device
	log    logrus.FieldLogger
	opts   Options
}

// NewSession returns a session on an initialized device
func NewSession(device *pn532.Device, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		device: device,
		opts:   opts,
		log:    log.WithField("block", opts.Block),
	}
}

// WaitForCard polls until a card is in the field. With a zero wait
// timeout it waits until ctx ends.
func (s *Session) WaitForCard(ctx context.Context) (*pn532.DetectedTag, error) {
	if s.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WaitTimeout)
		defer cancel()
	}

	s.log.Info("waiting for card")
	tag, err := s.device.WaitForTag(ctx)
	if err != nil {
		return nil, err
	}
	s.log.WithField("uid", tag.UID).Info("card found")
	return tag, nil
}

// ReadBlock waits for a card and reads the configured block
func (s *Session) ReadBlock(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.withCard(ctx, func(card *pn532.MIFAREClassic) error {
		var err error
		data, err = card.ReadBlock(ctx, s.opts.Block)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteBlock waits for a card and writes data, which must be exactly one
// block, to the configured block. The manufacturer block and sector
// trailers are refused before the reader is touched.
func (s *Session) WriteBlock(ctx context.Context, data []byte) error {
	if err := s.checkWritable(data); err != nil {
		return err
	}
	return s.withCard(ctx, func(card *pn532.MIFAREClassic) error {
		return card.WriteBlock(ctx, s.opts.Block, data)
	})
}

func (s *Session) checkWritable(data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("%w: got %d bytes, need %d", pn532.ErrInvalidBlockSize, len(data), BlockSize)
	}
	return CheckWritableBlock(s.opts.Block)
}

// CheckWritableBlock refuses the manufacturer block and sector trailers
func CheckWritableBlock(block uint8) error {
	if block == 0 || pn532.IsSectorTrailer(block) {
		return fmt.Errorf("%w: block %d", pn532.ErrProtectedBlock, block)
	}
	return nil
}

// withCard waits for a card, authenticates the block and runs fn. The
// target is released afterwards.
func (s *Session) withCard(ctx context.Context, fn func(card *pn532.MIFAREClassic) error) error {
	tag, err := s.WaitForCard(ctx)
	if err != nil {
		return err
	}
	defer s.release(tag)

	card, err := pn532.NewMIFAREClassic(s.device, tag)
	if err != nil {
		return err
	}
	if err := card.Authenticate(ctx, s.opts.Block, s.opts.KeyType, s.opts.Key); err != nil {
		return err
	}
	return fn(card)
}

func (s *Session) release(tag *pn532.DetectedTag) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.device.InReleaseContext(ctx, tag.TargetNumber); err != nil {
		s.log.WithError(err).Debug("failed to release target")
	}
}
