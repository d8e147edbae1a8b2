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
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// pollInterval is the pause between polls that found no target
const pollInterval = 100 * time.Millisecond

// DetectedTag is an ISO14443A target reported by InListPassiveTarget
type DetectedTag struct {
	DetectedAt   time.Time
	UID          string
	UIDBytes     []byte
	ATQ          []byte
	SAK          byte
	TargetNumber byte
}

// IsMIFAREClassic reports whether the SAK identifies a MIFARE Classic card
func (t *DetectedTag) IsMIFAREClassic() bool {
	switch t.SAK {
	case 0x08, 0x09, 0x18, 0x19, 0x28, 0x38, 0x88:
		return true
	default:
		return false
	}
}

// AuthUID returns the four UID bytes used for MIFARE authentication: the
// whole UID for single size cards, the last four bytes otherwise
func (t *DetectedTag) AuthUID() []byte {
	if len(t.UIDBytes) <= 4 {
		return t.UIDBytes
	}
	return t.UIDBytes[len(t.UIDBytes)-4:]
}

// PollStatus is the outcome of a single poll that did not fail
type PollStatus int

const (
	// PollNoTarget means no card answered within the poll window
	PollNoTarget PollStatus = iota
	// PollTargetFound means a card was selected
	PollTargetFound
)

// String returns the status name
func (s PollStatus) String() string {
	switch s {
	case PollNoTarget:
		return "no target"
	case PollTargetFound:
		return "target found"
	default:
		return fmt.Sprintf("PollStatus(%d)", int(s))
	}
}

// PollResult is the tagged result of PollContext. Tag is set only when
// Status is PollTargetFound.
type PollResult struct {
	Tag    *DetectedTag
	Status PollStatus
}

// DetectTag detects a single ISO14443A tag
func (d *Device) DetectTag() (*DetectedTag, error) {
	return d.DetectTagContext(context.Background())
}

// DetectTagContext runs one InListPassiveTarget for at most one 106 kbps
// type A target. It returns ErrNoTagDetected when no card answered.
func (d *Device) DetectTagContext(ctx context.Context) (*DetectedTag, error) {
	resp, err := d.command(ctx, cmdInListPassiveTarget, []byte{0x01, BrTy106kbpsTypeA})
	if err != nil {
		return nil, err
	}

	return parseTargetData(resp)
}

// parseTargetData decodes NbTg Tg ATQA(2) SAK NFCIDLength NFCID1
func parseTargetData(resp []byte) (*DetectedTag, error) {
	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: empty target list", ErrInvalidResponse)
	}
	if resp[0] == 0 {
		return nil, ErrNoTagDetected
	}
	if len(resp) < 6 {
		return nil, fmt.Errorf("%w: target data too short: %d bytes", ErrInvalidResponse, len(resp))
	}

	uidLen := int(resp[5])
	if uidLen != 4 && uidLen != 7 && uidLen != 10 {
		return nil, fmt.Errorf("%w: unsupported UID length %d", ErrInvalidResponse, uidLen)
	}
	if len(resp) < 6+uidLen {
		return nil, fmt.Errorf("%w: UID truncated: want %d bytes, have %d", ErrInvalidResponse, uidLen, len(resp)-6)
	}

	uid := make([]byte, uidLen)
	copy(uid, resp[6:6+uidLen])

	return &DetectedTag{
		TargetNumber: resp[1],
		ATQ:          []byte{resp[2], resp[3]},
		SAK:          resp[4],
		UIDBytes:     uid,
		UID:          hex.EncodeToString(uid),
		DetectedAt:   time.Now(),
	}, nil
}

// PollContext performs one bounded poll. A poll that sees no card, or whose
// per-attempt timeout expires, yields PollNoTarget; every other failure is
// returned as an error.
func (d *Device) PollContext(ctx context.Context) (PollResult, error) {
	attemptCtx := ctx
	if d.config.PollTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.config.PollTimeout)
		defer cancel()
	}

	tag, err := d.DetectTagContext(attemptCtx)
	if err == nil {
		return PollResult{Status: PollTargetFound, Tag: tag}, nil
	}

	if ctx.Err() != nil {
		return PollResult{}, fmt.Errorf("poll cancelled: %w", ctx.Err())
	}

	switch {
	case errors.Is(err, ErrNoTagDetected),
		errors.Is(err, context.DeadlineExceeded),
		GetErrorType(err) == ErrorTypeTimeout:
		debugf("poll: no target (%v)", err)
		return PollResult{Status: PollNoTarget}, nil
	default:
		return PollResult{}, err
	}
}

// WaitForTag polls until a card is presented. Only PollNoTarget leads to
// another poll; hard errors and context cancellation end the wait.
func (d *Device) WaitForTag(ctx context.Context) (*DetectedTag, error) {
	for attempt := 1; ; attempt++ {
		result, err := d.PollContext(ctx)
		if err != nil {
			return nil, err
		}
		if result.Status == PollTargetFound {
			debugf("target %s found after %d poll(s)", result.Tag.UID, attempt)
			return result.Tag, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for tag cancelled: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// InReleaseContext releases a selected target so the PN532 stops talking to it
func (d *Device) InReleaseContext(ctx context.Context, targetNumber byte) error {
	resp, err := d.command(ctx, cmdInRelease, []byte{targetNumber})
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return fmt.Errorf("%w: empty release response", ErrInvalidResponse)
	}
	if resp[0] != StatusOK {
		return &StatusError{Op: "release", Status: resp[0]}
	}
	return nil
}
