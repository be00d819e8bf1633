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

// Package control implements the control channel of mungefs: the codec of
// commands, the server applying them to a fault table and the client sending them.
package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avfs/mungefs/broker"
	"github.com/avfs/mungefs/fault"
)

// State is the state of a Server.
type State uint8

const (
	Stopped State = iota // Stopped is the state of a server not serving requests.
	Running              // Running is the state of a server serving requests.
)

// Server applies the commands received on a Rep socket to a fault table.
type Server struct {
	table *fault.Table // table is the fault table updated by commands.
	options

	mu     sync.Mutex         // mu protects the fields below.
	state  State              // state is the current state of the server.
	sock   *broker.Socket     // sock is the bound socket while running.
	cancel context.CancelFunc // cancel stops the serving loop.
	done   chan struct{}      // done is closed when the serving loop returns.
}

// Client sends requests to a Server.
type Client struct {
	addr string // addr is the address of the server.
	options
}

// Reply is the reply of a Server to a request.
type Reply struct {
	OK     bool   // OK is true if the request was applied.
	Detail string // Detail explains why the request was not applied.
	Raw    []byte // Raw is the reply as received.
}

// Option defines the option function used for initializing a Server or a Client.
type Option func(*options)

// options are the options common to servers and clients.
type options struct {
	addr      string        // addr is the address a server binds to.
	host      string        // host is the host a server binds to when a port range is set.
	firstPort int           // firstPort is the first port of the range.
	lastPort  int           // lastPort is the end of the range (excluded), 0 if no range is set.
	timeout   time.Duration // timeout is the timeout of send and receive operations.
	logger    *slog.Logger  // logger logs requests and errors.
}
