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

// Package broker implements the request/reply sockets of the control channel
// on top of the REQ/REP protocols of mangos.
//
// A Rep socket binds an address and answers requests, a Req socket connects
// to it and sends requests. Both alternate strictly between sending and receiving.
package broker

import (
	"log/slog"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
)

// Role is the role of a socket.
type Role uint8

const (
	// Rep receives requests and sends one reply to each of them.
	Rep Role = iota + 1

	// Req sends requests and receives one reply to each of them.
	Req
)

const (
	// DefaultTimeout is the default timeout of send and receive operations.
	DefaultTimeout = 1500 * time.Millisecond

	// MaxFrameSize is the maximum size of a message.
	MaxFrameSize = 1 << 20

	retryPause = 10 * time.Millisecond
	lastGrace  = 50 * time.Millisecond
)

// Socket is a request/reply socket.
type Socket struct {
	role    Role          // role is the role of the socket.
	timeout time.Duration // timeout is the timeout of send and receive operations.
	sock    mangos.Socket // sock is the underlying mangos socket.
	logger  *slog.Logger  // logger logs transport events.

	mu        sync.Mutex               // mu protects the fields below.
	listener  mangos.Listener          // listener accepts connections of a Rep socket.
	remote    string                   // remote is the address a Req socket is connected to.
	pipes     map[uint32]chan struct{} // pipes are closed when the matching connection is detached.
	gone      chan struct{}            // gone is closed when the connection of a Req socket is lost.
	goneShut  bool                     // goneShut is true once gone is closed.
	pending   bool                     // pending is true when a Rep socket must reply.
	replyPipe uint32                   // replyPipe is the connection of the pending request.
	lastPipe  uint32                   // lastPipe is the connection the last reply was sent to.
	waiting   bool                     // waiting is true when a Req socket expects a reply.
	receiving bool                     // receiving is true while a receive of the underlying socket is in progress.
	closing   bool                     // closing is true once Close is called.

	results chan result    // results receives the outcome of the receive in progress.
	closed  chan struct{}  // closed is closed by Close.
	wg      sync.WaitGroup // wg waits for the receive goroutine.
}

// Option defines the option function used for initializing a Socket.
type Option func(*Socket)

// result is the outcome of one receive of the underlying socket.
type result struct {
	data []byte // data is the payload.
	pipe uint32 // pipe is the id of the connection the payload was received from.
	err  error  // err is the receive error.
}
