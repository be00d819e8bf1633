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
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
	"go.nanomsg.org/mangos/v3"
	"golang.org/x/sys/unix"

	// Registers the tcp:// transport.
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// Bind binds a Rep socket to the TCP address addr and starts accepting connections.
func (s *Socket) Bind(addr string) error {
	if s.role != Rep {
		return errors.Mark(errors.Newf("bind %s: %s socket", addr, s.role), mungefs.ErrProtocol)
	}

	err := s.listen(addr)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "bind %s", addr), mungefs.ErrConnection)
	}

	return nil
}

// BindInRange binds a Rep socket to the first available port of host in [first, last).
func (s *Socket) BindInRange(host string, first, last int) error {
	if s.role != Rep {
		return errors.Mark(errors.Newf("bind %s: %s socket", host, s.role), mungefs.ErrProtocol)
	}

	for port := first; port < last; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		err := s.listen(addr)
		if err != nil {
			s.logger.Debug("port unavailable", "addr", addr, slog.Any("err", err))

			continue
		}

		return nil
	}

	return errors.Mark(errors.Newf("bind %s: no available port in [%d, %d)", host, first, last),
		mungefs.ErrConnection)
}

// listen starts a listener of the underlying socket on addr.
func (s *Socket) listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing || s.listener != nil {
		return errors.Mark(errors.New("socket closed or already bound"), mungefs.ErrProtocol)
	}

	l, err := s.sock.NewListener(endpoint(addr), nil)
	if err != nil {
		return err
	}

	err = l.Listen()
	if err != nil {
		_ = l.Close()

		return err
	}

	s.listener = l
	s.logger.Debug("socket bound", "addr", l.Address())

	return nil
}

// Connect connects a Req socket to the TCP address addr.
func (s *Socket) Connect(addr string) error {
	if s.role != Req {
		return errors.Mark(errors.Newf("connect %s: %s socket", addr, s.role), mungefs.ErrProtocol)
	}

	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return errors.Mark(errors.New("connect: socket closed"), mungefs.ErrProtocol)
	}

	if s.remote != "" {
		s.mu.Unlock()

		return errors.Mark(errors.Newf("connect %s: already connected", addr), mungefs.ErrProtocol)
	}

	s.mu.Unlock()

	// The pipe event hook takes s.mu while dialing.
	err := s.sock.Dial(endpoint(addr))
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "connect %s", addr), mungefs.ErrConnection)
	}

	s.mu.Lock()
	s.remote = addr
	s.mu.Unlock()

	return nil
}

// Addr returns the address a Rep socket is bound to, or the remote address of a Req socket.
// It returns nil if the socket is neither bound nor connected.
func (s *Socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.listener != nil:
		if v, err := s.listener.GetOption(mangos.OptionLocalAddr); err == nil {
			if addr, ok := v.(net.Addr); ok {
				return addr
			}
		}

		return tcpAddr(strings.TrimPrefix(s.listener.Address(), "tcp://"))
	case s.remote != "":
		return tcpAddr(s.remote)
	default:
		return nil
	}
}

// Send sends the message b.
// A Rep socket replies to the last received request, a Req socket sends a new request.
// Transient failures are retried until the timeout expires.
func (s *Socket) Send(b []byte) error {
	if len(b) > MaxFrameSize {
		return errors.Mark(errors.Newf("send: message of %d bytes exceeds %d bytes", len(b), MaxFrameSize),
			mungefs.ErrProtocol)
	}

	pipe, err := s.sendCheck()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.timeout)

	for {
		err = s.sock.Send(b)
		if err == nil {
			s.sent(pipe)

			return nil
		}

		if isTransient(err) && time.Now().Before(deadline) {
			s.logger.Debug("send retry", "role", s.role.String(), slog.Any("err", err))
			time.Sleep(retryPause)

			continue
		}

		s.sendFailed()

		switch {
		case errors.Is(err, mangos.ErrSendTimeout):
			return errors.Mark(errors.Wrapf(err, "send after %s", s.timeout), mungefs.ErrTimeout)
		case errors.Is(err, mangos.ErrClosed):
			return errors.Mark(errors.Wrap(err, "send"), mungefs.ErrProtocol)
		default:
			return errors.Mark(errors.Wrap(err, "send"), mungefs.ErrConnection)
		}
	}
}

// Receive returns the next message.
// If nonBlocking is true, it returns nil and no error when no message is queued,
// otherwise it waits for a message until the timeout expires.
func (s *Socket) Receive(nonBlocking bool) ([]byte, error) {
	gone, err := s.receiveCheck()
	if err != nil {
		return nil, err
	}

	if nonBlocking {
		select {
		case r := <-s.results:
			return s.received(r)
		default:
			return nil, nil
		}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-s.results:
		return s.received(r)
	case <-timer.C:
		return nil, errors.Mark(errors.Newf("receive after %s", s.timeout), mungefs.ErrTimeout)
	case <-gone:
		return s.receiveLast()
	case <-s.closed:
		return nil, errors.Mark(errors.New("receive: socket closed"), mungefs.ErrProtocol)
	}
}

// ReceiveContext waits for the next message until ctx is done.
func (s *Socket) ReceiveContext(ctx context.Context) ([]byte, error) {
	gone, err := s.receiveCheck()
	if err != nil {
		return nil, err
	}

	select {
	case r := <-s.results:
		return s.received(r)
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "receive")
	case <-gone:
		return s.receiveLast()
	case <-s.closed:
		return nil, errors.Mark(errors.New("receive: socket closed"), mungefs.ErrProtocol)
	}
}

// Close closes the socket and all its connections.
// A Req socket discards unsent messages. A Rep socket first waits, up to the timeout,
// for the peer of its last reply to disconnect, so that the reply reaches it.
func (s *Socket) Close() error {
	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return nil
	}

	s.closing = true
	close(s.closed)

	var linger chan struct{}
	if s.role == Rep && s.lastPipe != 0 {
		linger = s.pipes[s.lastPipe]
	}

	s.mu.Unlock()

	if linger != nil {
		timer := time.NewTimer(s.timeout)

		select {
		case <-linger:
		case <-timer.C:
			s.logger.Debug("close: peer of the last reply still connected")
		}

		timer.Stop()
	}

	err := s.sock.Close()
	s.wg.Wait()

	if err != nil && !errors.Is(err, mangos.ErrClosed) {
		return errors.Wrap(err, "close")
	}

	return nil
}

// pipeEvent tracks the connections of the socket.
func (s *Socket) pipeEvent(ev mangos.PipeEvent, p mangos.Pipe) {
	id := p.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev {
	case mangos.PipeEventAttached:
		s.pipes[id] = make(chan struct{})

		if s.goneShut {
			s.gone = make(chan struct{})
			s.goneShut = false
		}

		s.logger.Debug("peer attached", "role", s.role.String(), "pipe", id)
	case mangos.PipeEventDetached:
		if ch, ok := s.pipes[id]; ok {
			close(ch)
			delete(s.pipes, id)
		}

		if s.role == Req && !s.goneShut {
			close(s.gone)
			s.goneShut = true
		}

		s.logger.Debug("peer detached", "role", s.role.String(), "pipe", id)
	default:
	}
}

// sendCheck checks the alternation of the socket.
// For a Rep socket, it returns the connection the reply is sent to.
func (s *Socket) sendCheck() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return 0, errors.Mark(errors.New("send: socket closed"), mungefs.ErrProtocol)
	}

	switch s.role {
	case Rep:
		if !s.pending {
			return 0, errors.Mark(errors.New("send: no request to reply to"), mungefs.ErrProtocol)
		}

		s.pending = false

		return s.replyPipe, nil
	case Req:
		if s.remote == "" {
			return 0, errors.Mark(errors.New("send: not connected"), mungefs.ErrProtocol)
		}

		if s.waiting {
			return 0, errors.Mark(errors.New("send: reply not received"), mungefs.ErrProtocol)
		}

		s.waiting = true

		return 0, nil
	default:
		return 0, errors.Mark(errors.Newf("send: invalid role %d", s.role), mungefs.ErrProtocol)
	}
}

// sent records the connection a Rep socket replied to.
func (s *Socket) sent(pipe uint32) {
	if s.role != Rep {
		return
	}

	s.mu.Lock()
	s.lastPipe = pipe
	s.mu.Unlock()
}

// sendFailed lets a Req socket send again after a failed request.
func (s *Socket) sendFailed() {
	s.mu.Lock()
	if s.role == Req {
		s.waiting = false
	}
	s.mu.Unlock()
}

// receiveCheck checks the alternation of the socket and starts a receive of the
// underlying socket if none is in progress.
// For a Req socket, it returns a channel closed when the connection is lost.
func (s *Socket) receiveCheck() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil, errors.Mark(errors.New("receive: socket closed"), mungefs.ErrProtocol)
	}

	var gone <-chan struct{}

	switch s.role {
	case Rep:
		if s.listener == nil {
			return nil, errors.Mark(errors.New("receive: not bound"), mungefs.ErrProtocol)
		}

		if s.pending {
			return nil, errors.Mark(errors.New("receive: reply not sent"), mungefs.ErrProtocol)
		}
	case Req:
		if !s.waiting {
			return nil, errors.Mark(errors.New("receive: no request sent"), mungefs.ErrProtocol)
		}

		gone = s.gone
	default:
		return nil, errors.Mark(errors.Newf("receive: invalid role %d", s.role), mungefs.ErrProtocol)
	}

	if !s.receiving {
		s.receiving = true
		s.wg.Add(1)

		go s.receive()
	}

	return gone, nil
}

// receive performs one receive of the underlying socket.
// At most one receive is in progress, its result is kept until a caller takes it.
func (s *Socket) receive() {
	defer s.wg.Done()

	m, err := s.sock.RecvMsg()
	if err != nil {
		s.results <- result{err: err}

		return
	}

	r := result{data: make([]byte, len(m.Body))}
	copy(r.data, m.Body)

	if m.Pipe != nil {
		r.pipe = m.Pipe.ID()
	}

	m.Free()

	s.results <- r
}

// receiveLast returns the reply received just before the connection of a Req socket was lost.
func (s *Socket) receiveLast() ([]byte, error) {
	timer := time.NewTimer(lastGrace)
	defer timer.Stop()

	select {
	case r := <-s.results:
		return s.received(r)
	case <-timer.C:
		return nil, errors.Mark(errors.New("receive: connection closed by peer"), mungefs.ErrConnection)
	}
}

// received updates the alternation state of the socket once r is received.
func (s *Socket) received(r result) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receiving = false

	if r.err != nil {
		if errors.Is(r.err, mangos.ErrClosed) {
			return nil, errors.Mark(errors.Wrap(r.err, "receive"), mungefs.ErrProtocol)
		}

		return nil, errors.Mark(errors.Wrap(r.err, "receive"), mungefs.ErrConnection)
	}

	switch s.role {
	case Rep:
		s.pending = true
		s.replyPipe = r.pipe
		s.lastPipe = 0
	case Req:
		s.waiting = false
	}

	return r.data, nil
}

// endpoint returns the mangos endpoint of the TCP address addr.
func endpoint(addr string) string {
	return "tcp://" + addr
}

// tcpAddr returns addr as a net.Addr, or nil if it cannot be resolved.
func tcpAddr(addr string) net.Addr {
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil
	}

	return a
}

// isTransient returns true if the operation that returned err can be retried.
func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}
