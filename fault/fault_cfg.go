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

package fault

import (
	"log/slog"
	"os"
	"time"

	"github.com/avfs/mungefs"
	"github.com/valyala/fastrand"
)

// NewEvaluator returns a new evaluator of the faults of table.
func NewEvaluator(table *Table, opts ...Option) *Evaluator {
	e := &Evaluator{
		table:      table,
		terminator: KillTerminator{},
		observer:   NopObserver{},
		logger:     slog.New(slog.DiscardHandler),
		rand:       fastrand.Uint32n,
		sleep:      time.Sleep,
		selfPid:    os.Getpid(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Table returns the fault table of the evaluator.
func (e *Evaluator) Table() *Table {
	return e.table
}

// Type returns the type of the evaluator.
func (*Evaluator) Type() string {
	return "FaultEvaluator"
}

// Options

// WithTerminator returns an option function which sets the terminator of calling processes.
func WithTerminator(t mungefs.Terminator) Option {
	return func(e *Evaluator) {
		e.terminator = t
	}
}

// WithObserver returns an option function which sets the observer of evaluations.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) {
		e.observer = o
	}
}

// WithLogger returns an option function which sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithRand returns an option function which sets the random number generator.
func WithRand(rand RandFunc) Option {
	return func(e *Evaluator) {
		e.rand = rand
	}
}

// WithSleep returns an option function which sets the function used to delay operations.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Evaluator) {
		e.sleep = sleep
	}
}
