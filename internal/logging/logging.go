//
//  Copyright 2024 The AVFS authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//  	http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

// Package logging builds the structured loggers of the mungefs commands.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing records of at least level to w in the given format.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.Newf("unknown log format %q", format)
	}
}

// ParseLevel returns the level named s (debug, info, warn or error).
// An empty string is the info level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level

	if s == "" {
		return slog.LevelInfo, nil
	}

	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, errors.Wrapf(err, "log level %q", s)
	}

	return lvl, nil
}

// Discard returns a logger discarding all records.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OpenFile opens the log file name for appending, creating it if needed.
func OpenFile(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}

	return f, nil
}
