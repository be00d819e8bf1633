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
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/broker"
	"github.com/cockroachdb/errors"
)

// Start binds the server and serves requests in a new goroutine
// until a quit request is received, ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return errors.Mark(errors.New("start: server already running"), mungefs.ErrProtocol)
	}

	sock, err := broker.New(broker.Rep, broker.WithTimeout(s.timeout), broker.WithLogger(s.logger))
	if err != nil {
		return err
	}

	if s.lastPort > 0 {
		err = sock.BindInRange(s.host, s.firstPort, s.lastPort)
	} else {
		err = sock.Bind(s.addr)
	}

	if err != nil {
		_ = sock.Close()

		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	s.sock = sock
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Running

	s.logger.Info("control server started", "addr", sock.Addr().String())

	go s.serve(ctx, sock, s.done)

	return nil
}

// Stop sends a quit request to the server and waits for its serving loop to return.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.state != Running {
		s.mu.Unlock()

		return nil
	}

	addr := dialAddr(s.sock.Addr())
	cancel := s.cancel
	done := s.done

	s.mu.Unlock()

	_, err := NewClient(addr, WithTimeout(s.timeout), WithLogger(s.logger)).Quit()
	if err != nil {
		s.logger.Warn("quit request failed, cancelling", "addr", addr, slog.Any("err", err))
		cancel()
	}

	<-done

	return err
}

// Done returns a channel closed when the serving loop returns.
// It returns nil if the server was never started.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// Addr returns the address the server is bound to, or an empty string if it is stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return ""
	}

	return s.sock.Addr().String()
}

// State returns the current state of the server.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Server) serve(ctx context.Context, sock *broker.Socket, done chan struct{}) {
	defer close(done)
	defer s.stopped(sock)

	for {
		msg, err := sock.ReceiveContext(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mungefs.ErrProtocol) {
				s.logger.Info("control server stopping", slog.Any("reason", err))

				return
			}

			s.logger.Error("receive", slog.Any("err", err))

			continue
		}

		reply, quit := s.handle(msg)

		err = sock.Send(reply)
		if err != nil {
			s.logger.Error("send reply", slog.Any("err", err))
		}

		if quit {
			s.logger.Info("control server quit")

			return
		}
	}
}

func (s *Server) stopped(sock *broker.Socket) {
	s.mu.Lock()
	s.state = Stopped
	s.cancel()
	s.mu.Unlock()

	err := sock.Close()
	if err != nil {
		s.logger.Warn("close socket", slog.Any("err", err))
	}
}

// handle applies the request msg and returns the reply.
// quit is true if the server must stop.
func (s *Server) handle(msg []byte) (reply []byte, quit bool) {
	req := string(msg)

	switch {
	case req == mungefs.QuitMessage:
		return []byte(mungefs.AckMessage), true
	case req == mungefs.ClearMessage:
		n := s.table.ClearAll()
		s.logger.Info("faults cleared", "count", n)

		return []byte(mungefs.AckMessage), false
	case strings.HasPrefix(req, mungefs.ClearMessage+" "):
		for _, name := range strings.Fields(req[len(mungefs.ClearMessage):]) {
			if s.table.Clear(name) {
				s.logger.Info("fault cleared", "op", name)
			}
		}

		return []byte(mungefs.AckMessage), false
	}

	cmd, err := Decode(msg)
	if err != nil {
		s.logger.Warn("invalid request", "size", len(msg), slog.Any("err", err))

		return errorReply(err), false
	}

	n, err := s.table.Set(cmd.Operations, cmd.Fault)
	if err != nil {
		s.logger.Warn("invalid command", "command", cmd.String(), slog.Any("err", err))

		return errorReply(err), false
	}

	s.logger.Info("command applied",
		"operations", cmd.Operations,
		"applied", n,
		"random", cmd.Random,
		"err_no", cmd.ErrNo,
		"probability", cmd.Probability,
		"regexp", cmd.Regexp,
		"kill_caller", cmd.KillCaller,
		"delay_us", cmd.DelayUs,
		"auto_delay", cmd.AutoDelay,
		"corrupt_data", cmd.CorruptData,
		"corrupt_size", cmd.CorruptSize)

	return []byte(mungefs.AckMessage), false
}

func errorReply(err error) []byte {
	return []byte(mungefs.ErrPrefix + err.Error())
}

// dialAddr returns an address to connect to a socket bound to addr.
func dialAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}

	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(tcp.Port))
	}

	return tcp.String()
}
