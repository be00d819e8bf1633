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
	"bytes"
	"strconv"
	"strings"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/broker"
)

// Send sends the command cmd and returns the reply of the server.
func (c *Client) Send(cmd *mungefs.Command) (*Reply, error) {
	b, err := Encode(cmd)
	if err != nil {
		return nil, err
	}

	return c.exchange(b)
}

// Clear clears the faults of the named operations.
func (c *Client) Clear(ops ...string) (*Reply, error) {
	if len(ops) == 0 {
		return c.ClearAll()
	}

	return c.exchange([]byte(mungefs.ClearMessage + " " + strings.Join(ops, " ")))
}

// ClearAll clears all faults.
func (c *Client) ClearAll() (*Reply, error) {
	return c.exchange([]byte(mungefs.ClearMessage))
}

// Quit stops the server.
func (c *Client) Quit() (*Reply, error) {
	return c.exchange([]byte(mungefs.QuitMessage))
}

// Addr returns the address of the server.
func (c *Client) Addr() string {
	return c.addr
}

// exchange sends one request on a new connection and waits for its reply.
func (c *Client) exchange(req []byte) (*Reply, error) {
	sock, err := broker.New(broker.Req, broker.WithTimeout(c.timeout), broker.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	defer sock.Close()

	err = sock.Connect(c.addr)
	if err != nil {
		return nil, err
	}

	err = sock.Send(req)
	if err != nil {
		return nil, err
	}

	b, err := sock.Receive(false)
	if err != nil {
		return nil, err
	}

	r := ParseReply(b)
	c.logger.Debug("reply received", "addr", c.addr, "ok", r.OK, "detail", r.Detail)

	return r, nil
}

// ParseReply returns the reply encoded in b.
func ParseReply(b []byte) *Reply {
	r := &Reply{Raw: b}

	switch {
	case bytes.Equal(b, []byte(mungefs.AckMessage)):
		r.OK = true
	case bytes.HasPrefix(b, []byte(mungefs.ErrPrefix)):
		r.Detail = string(b[len(mungefs.ErrPrefix):])
	default:
		r.Detail = "unexpected reply " + strconv.Quote(string(b))
	}

	return r
}

// Err returns a mungefs.ReplyError if the request was not applied.
func (r *Reply) Err() error {
	if r.OK {
		return nil
	}

	return mungefs.ReplyError(r.Detail)
}
