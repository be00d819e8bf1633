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

package mungefs

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConnection is returned when a socket cannot be bound or connected.
	ErrConnection = errors.New("connection error")

	// ErrProtocol is returned when a message is sent or received out of turn,
	// when a frame is oversized or when the socket is closed.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout is returned when a send or a receive exceeds its timeout.
	ErrTimeout = errors.New("timeout")

	// ErrDecode is returned when a control payload is not a valid command.
	ErrDecode = errors.New("malformed command")

	// ErrInvalidPattern is returned when a fault pattern is not a valid regular expression.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// ReplyError is returned by a controller when the control server could not apply a request.
type ReplyError string

func (e ReplyError) Error() string {
	return "control server: " + string(e)
}
