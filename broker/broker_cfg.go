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

package broker

import (
	"log/slog"
	"time"

	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"
)

// New returns a new socket of a given role.
// The socket must be bound (Rep) or connected (Req) before use.
func New(role Role, opts ...Option) (*Socket, error) {
	s := &Socket{
		role:    role,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
		pipes:   make(map[uint32]chan struct{}),
		gone:    make(chan struct{}),
		results: make(chan result, 1),
		closed:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	var err error

	switch role {
	case Rep:
		s.sock, err = rep.NewSocket()
	case Req:
		s.sock, err = req.NewSocket()
	default:
		return nil, errors.Mark(errors.Newf("new socket: invalid role %d", role), mungefs.ErrProtocol)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "new %s socket", role)
	}

	err = s.setOptions()
	if err != nil {
		_ = s.sock.Close()

		return nil, err
	}

	s.sock.SetPipeEventHook(s.pipeEvent)

	return s, nil
}

// setOptions applies the timeout and the frame size limit to the underlying socket.
func (s *Socket) setOptions() error {
	opts := map[string]interface{}{
		mangos.OptionSendDeadline: s.timeout,
		mangos.OptionMaxRecvSize:  MaxFrameSize,
	}

	if s.role == Req {
		// Requests are never resent, a lost reply fails the exchange.
		opts[mangos.OptionRetryTime] = time.Duration(0)
	}

	for name, value := range opts {
		if err := s.sock.SetOption(name, value); err != nil {
			return errors.Wrapf(err, "set option %s", name)
		}
	}

	return nil
}

// Role returns the role of the socket.
func (s *Socket) Role() Role {
	return s.role
}

// Timeout returns the timeout of send and receive operations.
func (s *Socket) Timeout() time.Duration {
	return s.timeout
}

// String returns the name of the role.
func (r Role) String() string {
	switch r {
	case Rep:
		return "rep"
	case Req:
		return "req"
	default:
		return "unknown"
	}
}

// Options

// WithTimeout returns an option function which sets the timeout of send and receive operations.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Socket) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger returns an option function which sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Socket) {
		s.logger = logger
	}
}
