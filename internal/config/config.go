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

// Package config loads the settings shared by the block reader and writer.
// Values come from, in increasing priority: built-in defaults, a .env file,
// MFBLOCK_* environment variables and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "MFBLOCK"

// DefaultEnvFile is read by Load when no env files are given
const DefaultEnvFile = ".env"

// Transport names
const (
	TransportI2C  = "i2c"
	TransportUART = "uart"
)

// AutoDevice asks for the reader to be detected instead of opened by path
const AutoDevice = "auto"

var ErrInvalidConfig = errors.New("invalid configuration")

// ErrUsage wraps command line parse errors. The flag set has already
// reported them, together with its usage text.
var ErrUsage = errors.New("usage error")

// Config holds the reader settings
type Config struct {
	Transport      string        `envconfig:"TRANSPORT" default:"i2c"`
	Device         string        `envconfig:"DEVICE" default:"/dev/i2c-1"`
	Key            string        `envconfig:"KEY" default:"FFFFFFFFFFFF"`
	KeyType        string        `envconfig:"KEY_TYPE" default:"A"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"1s"`
	PollTimeout    time.Duration `envconfig:"POLL_TIMEOUT" default:"1s"`
	WaitTimeout    time.Duration `envconfig:"WAIT_TIMEOUT" default:"0s"`
	Block          uint8         `envconfig:"BLOCK" default:"4"`
	PassiveRetries uint8         `envconfig:"PASSIVE_RETRIES" default:"10"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
}

// Load reads env files (DefaultEnvFile when none are given, missing files
// are skipped), the environment and then args parsed with fs. Flags for
// every field are registered on fs, so callers can add their own flags
// to fs before calling Load.
func Load(flags *flag.FlagSet, args []string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	block := uint(cfg.Block)
	retries := uint(cfg.PassiveRetries)

	flags.StringVar(&cfg.Transport, "transport", cfg.Transport, "reader transport: i2c or uart")
	flags.StringVar(&cfg.Device, "device", cfg.Device, "I2C bus or serial port, or \"auto\" to detect the reader")
	flags.StringVar(&cfg.Key, "key", cfg.Key, "6 byte MIFARE key as hex")
	flags.StringVar(&cfg.KeyType, "key-type", cfg.KeyType, "key type: A or B")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "response timeout for a single reader command")
	flags.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "timeout of a single card poll")
	flags.DurationVar(&cfg.WaitTimeout, "wait", cfg.WaitTimeout, "give up waiting for a card after this long (0 waits forever)")
	flags.UintVar(&block, "block", block, "block number")
	flags.UintVar(&retries, "passive-retries", retries, "PN532 passive activation retries per poll (255 retries forever)")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log reader traffic to stderr")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if block > 0xFF {
		return nil, fmt.Errorf("%w: block %d out of range", ErrInvalidConfig, block)
	}
	if retries > 0xFF {
		return nil, fmt.Errorf("%w: passive retries %d out of range", ErrInvalidConfig, retries)
	}
	cfg.Block = uint8(block)
	cfg.PassiveRetries = uint8(retries)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	switch strings.ToLower(c.Transport) {
	case TransportI2C, TransportUART:
		c.Transport = strings.ToLower(c.Transport)
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}

	if strings.TrimSpace(c.Device) == "" {
		return fmt.Errorf("%w: device must not be empty", ErrInvalidConfig)
	}

	if _, _, err := c.AuthKey(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll timeout must be positive, got %v", ErrInvalidConfig, c.PollTimeout)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("%w: wait timeout must not be negative, got %v", ErrInvalidConfig, c.WaitTimeout)
	}
	return nil
}

// AuthKey returns the parsed key and key type
func (c *Config) AuthKey() (pn532.MIFAREKey, pn532.KeyType, error) {
	key, err := pn532.ParseKey(c.Key)
	if err != nil {
		return pn532.MIFAREKey{}, 0, err
	}
	keyType, err := pn532.ParseKeyType(c.KeyType)
	if err != nil {
		return pn532.MIFAREKey{}, 0, err
	}
	return key, keyType, nil
}

// AutoDetect reports whether the reader should be detected
func (c *Config) AutoDetect() bool {
	return strings.EqualFold(c.Device, AutoDevice)
}
