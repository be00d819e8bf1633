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
	"time"

	"github.com/avfs/mungefs/fault"
)

// SeqRand returns a fault.RandFunc returning values in sequence, cycling when exhausted.
// A value greater or equal to n is reduced to n-1.
func SeqRand(values ...uint32) fault.RandFunc {
	var (
		mu sync.Mutex
		i  int
	)

	return func(n uint32) uint32 {
		mu.Lock()
		defer mu.Unlock()

		v := values[i%len(values)]
		i++

		return min(v, n-1)
	}
}

// Sleeper records delays instead of sleeping.
type Sleeper struct {
	mu    sync.Mutex
	calls int
	total time.Duration
}

// Sleep records d.
func (s *Sleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	s.calls++
	s.total += d
	s.mu.Unlock()
}

// Calls returns the number of recorded delays.
func (s *Sleeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// Total returns the sum of the recorded delays.
func (s *Sleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

// NoSleep is a fault.SleepFunc that returns immediately.
func NoSleep(time.Duration) {}
