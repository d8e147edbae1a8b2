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

package blockio

import (
	"io"

	pn532 "github.com/ZaparooProject/mfblock"
	"github.com/sirupsen/logrus"
)

// NewLogger returns the program logger. Callers often read stdout and
// stderr as one stream, so only warnings and errors are printed unless
// debug is set, in which case reader traffic is logged too.
func NewLogger(w io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: !debug})
	l.SetLevel(logrus.WarnLevel)

	if debug {
		l.SetLevel(logrus.DebugLevel)
		pn532.SetLogger(l)
		pn532.SetDebugEnabled(true)
	}
	return l
}
