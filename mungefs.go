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

// Package mungefs defines the operation vocabulary, types, interfaces and errors
// shared by the fault-injection file system, its control server and its controller.
package mungefs

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultControlAddr   = ":9000"          // DefaultControlAddr is the address the control server binds to.
	DefaultControlTarget = "localhost:9000" // DefaultControlTarget is the address a controller connects to.

	// ProbabilityScale is the upper bound of the uniform draw compared against Fault.Probability.
	ProbabilityScale = 100000

	// FillerByte replaces every transferred byte of a corrupted read or write.
	FillerByte = 'x'
)

// Reserved payloads of the control channel.
// None of them can be the first bytes of an encoded Command.
const (
	QuitMessage  = "quit"  // QuitMessage stops the control server.
	AckMessage   = "ACK"   // AckMessage is the reply to a request that was applied.
	ClearMessage = "clear" // ClearMessage clears all faults, or the operations that follow it.
	ErrPrefix    = "ERR "  // ErrPrefix starts the reply to a request that could not be applied.
)

// Fault describes how an operation should be disrupted.
// The zero value describes a fault that triggers on every call and does nothing.
type Fault struct {
	Random      bool   // Random draws a random error number when ErrNo is zero.
	ErrNo       int32  // ErrNo is the error number to return (0 = none).
	Probability int32  // Probability skips the fault when a draw in [1, ProbabilityScale] exceeds it (0 = never skip).
	Regexp      string // Regexp skips the fault unless it fully matches the path of the operation.
	KillCaller  bool   // KillCaller terminates the calling process.
	DelayUs     int32  // DelayUs is the delay of the operation in microseconds.
	AutoDelay   bool   // AutoDelay is accepted and currently inert.
	CorruptData bool   // CorruptData overwrites the data of read and write operations.
	CorruptSize bool   // CorruptSize halves the size reported by attribute queries.
}

// String returns a one line description of the fault.
func (f Fault) String() string {
	return fmt.Sprintf("random=%t err_no=%d probability=%d regexp=%q kill_caller=%t "+
		"delay_us=%d auto_delay=%t corrupt_data=%t corrupt_size=%t",
		f.Random, f.ErrNo, f.Probability, f.Regexp, f.KillCaller,
		f.DelayUs, f.AutoDelay, f.CorruptData, f.CorruptSize)
}

// Command is the payload exchanged between a controller and the control server.
// Applying it assigns Fault to every valid operation named in Operations.
type Command struct {
	Operations []string // Operations are the names of the operations to disrupt.
	Fault
}

// String returns a one line description of the command.
func (c Command) String() string {
	return "operations=[" + strings.Join(c.Operations, ",") + "] " + c.Fault.String()
}

// Evaluator is the interface called by a file system before each real operation.
type Evaluator interface {
	// Evaluate returns a negative error number to return instead of performing the operation,
	// or 0 to proceed. corrupt reports that the caller must corrupt the transferred data
	// (read and write) or the reported size (getattr and fgetattr) after the real call succeeds.
	Evaluate(ctx context.Context, path string, op Op) (code int, corrupt bool)

	// Check is Evaluate for callers that ignore corruption.
	Check(ctx context.Context, path string, op Op) int
}

// Terminator terminates processes.
type Terminator interface {
	// Terminate delivers a fatal, non-catchable signal to the process pid.
	Terminate(pid int) error
}
