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
	"slices"
	"sync"

	"github.com/avfs/mungefs"
)

var _ mungefs.Terminator = &Terminator{}

// Terminator is a mungefs.Terminator recording the processes it is asked to terminate.
type Terminator struct {
	mu   sync.Mutex
	pids []int // pids are the recorded pids.
	Err  error // Err is returned by Terminate.
}

// Terminate records pid and returns t.Err.
func (t *Terminator) Terminate(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pids = append(t.pids, pid)

	return t.Err
}

// Pids returns the recorded pids.
func (t *Terminator) Pids() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.pids)
}
