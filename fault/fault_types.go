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

// Package fault implements the fault table and the evaluation of faults
// performed before each file system operation.
package fault

import (
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/avfs/mungefs"
)

// Table maps each operation to at most one fault descriptor.
// It is safe for concurrent use by one writer and many readers.
type Table struct {
	mu     sync.RWMutex               // mu protects faults.
	faults map[mungefs.Op]*Descriptor // faults are the configured descriptors.
}

// Descriptor is a fault with its compiled path pattern.
// A Descriptor is never modified once stored in a Table.
type Descriptor struct {
	mungefs.Fault
	re *regexp.Regexp // re is the full match regular expression compiled from Fault.Regexp, nil if empty.
}

// Evaluator implements mungefs.Evaluator using a fault Table.
type Evaluator struct {
	table      *Table             // table is the fault table consulted on each evaluation.
	terminator mungefs.Terminator // terminator kills the caller of an operation.
	observer   Observer           // observer is notified of evaluations and injected faults.
	logger     *slog.Logger       // logger logs injected faults.
	rand       RandFunc           // rand returns pseudo random numbers.
	sleep      SleepFunc          // sleep delays an operation.
	selfPid    int                // selfPid is the pid of the current process, never terminated.
}

// Option defines the option function used for initializing an Evaluator.
type Option func(*Evaluator)

// RandFunc returns a pseudo random number in [0, n).
type RandFunc func(n uint32) uint32

// SleepFunc pauses the current goroutine for at least the duration d.
type SleepFunc func(d time.Duration)

// Kind is the kind of an injected fault.
type Kind string

const (
	KindError   Kind = "error"   // KindError is an error number returned instead of the operation result.
	KindDelay   Kind = "delay"   // KindDelay is a delay before the operation.
	KindKill    Kind = "kill"    // KindKill is the termination of the calling process.
	KindCorrupt Kind = "corrupt" // KindCorrupt is a corruption of the data or of the size.
)

// Observer is notified by an Evaluator.
// Its methods are called concurrently from the goroutines serving file system requests.
type Observer interface {
	// Evaluated is called each time a fault is found for an operation.
	Evaluated(op mungefs.Op)

	// Injected is called each time a fault of a given kind is injected.
	Injected(op mungefs.Op, kind Kind)
}

// NopObserver is an Observer that does nothing.
type NopObserver struct{}

func (NopObserver) Evaluated(mungefs.Op)      {}
func (NopObserver) Injected(mungefs.Op, Kind) {}
