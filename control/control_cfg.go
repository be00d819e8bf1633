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

package control

import (
	"log/slog"
	"time"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/broker"
	"github.com/avfs/mungefs/fault"
)

func newOptions(opts []Option) options {
	o := options{
		addr:    mungefs.DefaultControlAddr,
		timeout: broker.DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// NewServer returns a new stopped server updating table.
func NewServer(table *fault.Table, opts ...Option) *Server {
	return &Server{
		table:   table,
		options: newOptions(opts),
		state:   Stopped,
	}
}

// NewClient returns a new client of the server at addr.
func NewClient(addr string, opts ...Option) *Client {
	if addr == "" {
		addr = mungefs.DefaultControlTarget
	}

	return &Client{
		addr:    addr,
		options: newOptions(opts),
	}
}

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Options

// WithAddr returns an option function which sets the address a server binds to.
func WithAddr(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// WithPortRange returns an option function which makes a server bind to
// the first available port of host in [first, last).
func WithPortRange(host string, first, last int) Option {
	return func(o *options) {
		o.host = host
		o.firstPort = first
		o.lastPort = last
	}
}

// WithTimeout returns an option function which sets the timeout of send and receive operations.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger returns an option function which sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
