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

package test

import (
	"sync"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
)

var _ fault.Observer = &Observer{}

type injection struct {
	op   mungefs.Op
	kind fault.Kind
}

// Observer is a fault.Observer counting evaluations and injections.
type Observer struct {
	mu        sync.Mutex
	evaluated map[mungefs.Op]int
	injected  map[injection]int
}

// NewObserver returns a new recording observer.
func NewObserver() *Observer {
	return &Observer{
		evaluated: make(map[mungefs.Op]int),
		injected:  make(map[injection]int),
	}
}

// Evaluated implements fault.Observer.
func (o *Observer) Evaluated(op mungefs.Op) {
	o.mu.Lock()
	o.evaluated[op]++
	o.mu.Unlock()
}

// Injected implements fault.Observer.
func (o *Observer) Injected(op mungefs.Op, kind fault.Kind) {
	o.mu.Lock()
	o.injected[injection{op: op, kind: kind}]++
	o.mu.Unlock()
}

// EvaluatedCount returns how many times op was evaluated.
func (o *Observer) EvaluatedCount(op mungefs.Op) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.evaluated[op]
}

// InjectedCount returns how many faults of a kind were injected into op.
func (o *Observer) InjectedCount(op mungefs.Op, kind fault.Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.injected[injection{op: op, kind: kind}]
}
