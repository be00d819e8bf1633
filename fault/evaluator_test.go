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

package fault_test

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/avfs/mungefs/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(t *testing.T, names []string, f mungefs.Fault, opts ...fault.Option) *fault.Evaluator {
	t.Helper()

	table := fault.NewTable()

	_, err := table.Set(names, f)
	require.NoError(t, err)

	opts = append([]fault.Option{fault.WithSleep(test.NoSleep), fault.WithTerminator(&test.Terminator{})}, opts...)

	return fault.NewEvaluator(table, opts...)
}

func TestEvaluateNoFault(t *testing.T) {
	e := newEvaluator(t, nil, mungefs.Fault{})

	for _, op := range mungefs.Ops() {
		code, corrupt := e.Evaluate(context.Background(), "/a", op)
		if code != 0 || corrupt {
			t.Errorf("Evaluate %s : want 0 false, got %d %t", op, code, corrupt)
		}
	}
}

func TestEvaluateErrNo(t *testing.T) {
	e := newEvaluator(t, []string{"open"}, mungefs.Fault{ErrNo: int32(syscall.EIO)})

	code, corrupt := e.Evaluate(context.Background(), "/a", mungefs.OpOpen)
	assert.Equal(t, -int(syscall.EIO), code)
	assert.False(t, corrupt)

	assert.Equal(t, 0, e.Check(context.Background(), "/a", mungefs.OpRead))
}

func TestEvaluateRandomErrNo(t *testing.T) {
	t.Run("Scripted", func(t *testing.T) {
		e := newEvaluator(t, []string{"read"}, mungefs.Fault{Random: true}, fault.WithRand(test.SeqRand(0)))

		code := e.Check(context.Background(), "/a", mungefs.OpRead)
		assert.Equal(t, -int(syscall.E2BIG), code)
	})

	t.Run("Range", func(t *testing.T) {
		e := newEvaluator(t, []string{"read"}, mungefs.Fault{Random: true})

		for range 1000 {
			code := e.Check(context.Background(), "/a", mungefs.OpRead)
			if -code < int(syscall.E2BIG) || code == 0 {
				t.Fatalf("Check : want an error number >= E2BIG, got %d", -code)
			}
		}
	})

	t.Run("ExplicitWins", func(t *testing.T) {
		e := newEvaluator(t, []string{"read"}, mungefs.Fault{Random: true, ErrNo: int32(syscall.ENOSPC)})

		code := e.Check(context.Background(), "/a", mungefs.OpRead)
		assert.Equal(t, -int(syscall.ENOSPC), code)
	})
}

func TestEvaluateProbability(t *testing.T) {
	f := mungefs.Fault{ErrNo: int32(syscall.EIO), Probability: 50000}

	tests := []struct {
		rand uint32
		want int
	}{
		{rand: 0, want: -int(syscall.EIO)},
		{rand: 49999, want: -int(syscall.EIO)},
		{rand: 50000, want: 0},
		{rand: 99999, want: 0},
	}

	for _, tt := range tests {
		e := newEvaluator(t, []string{"write"}, f, fault.WithRand(test.SeqRand(tt.rand)))

		if got := e.Check(context.Background(), "/a", mungefs.OpWrite); got != tt.want {
			t.Errorf("Check draw=%d : want %d, got %d", tt.rand+1, tt.want, got)
		}
	}

	t.Run("Distribution", func(t *testing.T) {
		const trials = 100000

		e := newEvaluator(t, []string{"write"}, f)

		hits := 0
		for range trials {
			if e.Check(context.Background(), "/a", mungefs.OpWrite) != 0 {
				hits++
			}
		}

		assert.InDelta(t, 0.5, float64(hits)/trials, 0.02)
	})

	t.Run("Zero", func(t *testing.T) {
		e := newEvaluator(t, []string{"write"}, mungefs.Fault{ErrNo: 1}, fault.WithRand(test.SeqRand(99999)))

		assert.Equal(t, -1, e.Check(context.Background(), "/a", mungefs.OpWrite))
	})

	t.Run("Full", func(t *testing.T) {
		e := newEvaluator(t, []string{"write"}, mungefs.Fault{ErrNo: 1, Probability: mungefs.ProbabilityScale},
			fault.WithRand(test.SeqRand(99999)))

		assert.Equal(t, -1, e.Check(context.Background(), "/a", mungefs.OpWrite))
	})
}

func TestEvaluateRegexp(t *testing.T) {
	e := newEvaluator(t, []string{"open"}, mungefs.Fault{ErrNo: 1, Regexp: "/foo/.*"})

	assert.Equal(t, -1, e.Check(context.Background(), "/foo/bar", mungefs.OpOpen))
	assert.Equal(t, 0, e.Check(context.Background(), "/x/foo/bar", mungefs.OpOpen))
	assert.Equal(t, 0, e.Check(context.Background(), "/foo", mungefs.OpOpen))
}

func TestEvaluateDelay(t *testing.T) {
	sleeper := &test.Sleeper{}
	obs := test.NewObserver()
	e := newEvaluator(t, []string{"fsync"}, mungefs.Fault{DelayUs: 2000},
		fault.WithSleep(sleeper.Sleep), fault.WithObserver(obs))

	code, corrupt := e.Evaluate(context.Background(), "/a", mungefs.OpFsync)
	assert.Equal(t, 0, code)
	assert.False(t, corrupt)
	assert.Equal(t, 1, sleeper.Calls())
	assert.Equal(t, 2*time.Millisecond, sleeper.Total())
	assert.Equal(t, 1, obs.InjectedCount(mungefs.OpFsync, fault.KindDelay))
	assert.Equal(t, 0, obs.InjectedCount(mungefs.OpFsync, fault.KindError))
}

func TestEvaluateKillCaller(t *testing.T) {
	f := mungefs.Fault{KillCaller: true, ErrNo: int32(syscall.EIO), CorruptData: true}

	t.Run("Caller", func(t *testing.T) {
		term := &test.Terminator{}
		obs := test.NewObserver()
		e := newEvaluator(t, []string{"read"}, f, fault.WithTerminator(term), fault.WithObserver(obs))

		ctx := fault.WithCaller(context.Background(), 4242)

		code, corrupt := e.Evaluate(ctx, "/a", mungefs.OpRead)
		assert.Equal(t, 0, code)
		assert.False(t, corrupt)
		assert.Equal(t, []int{4242}, term.Pids())
		assert.Equal(t, 1, obs.InjectedCount(mungefs.OpRead, fault.KindKill))
	})

	t.Run("NoCaller", func(t *testing.T) {
		term := &test.Terminator{}
		e := newEvaluator(t, []string{"read"}, f, fault.WithTerminator(term))

		code, corrupt := e.Evaluate(context.Background(), "/a", mungefs.OpRead)
		assert.Equal(t, 0, code)
		assert.False(t, corrupt)
		assert.Empty(t, term.Pids())
	})

	t.Run("Self", func(t *testing.T) {
		term := &test.Terminator{}
		e := newEvaluator(t, []string{"read"}, f, fault.WithTerminator(term))

		for _, pid := range []int{0, os.Getpid()} {
			ctx := fault.WithCaller(context.Background(), pid)

			assert.Equal(t, 0, e.Check(ctx, "/a", mungefs.OpRead))
		}

		assert.Empty(t, term.Pids())
	})
}

func TestEvaluateCorrupt(t *testing.T) {
	tests := []struct {
		name string
		f    mungefs.Fault
		op   mungefs.Op
		want bool
	}{
		{name: "DataRead", f: mungefs.Fault{CorruptData: true}, op: mungefs.OpRead, want: true},
		{name: "DataWrite", f: mungefs.Fault{CorruptData: true}, op: mungefs.OpWrite, want: true},
		{name: "DataOpen", f: mungefs.Fault{CorruptData: true}, op: mungefs.OpOpen, want: false},
		{name: "DataGetattr", f: mungefs.Fault{CorruptData: true}, op: mungefs.OpGetattr, want: false},
		{name: "SizeGetattr", f: mungefs.Fault{CorruptSize: true}, op: mungefs.OpGetattr, want: true},
		{name: "SizeFgetattr", f: mungefs.Fault{CorruptSize: true}, op: mungefs.OpFgetattr, want: true},
		{name: "SizeRead", f: mungefs.Fault{CorruptSize: true}, op: mungefs.OpRead, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvaluator(t, []string{tt.op.String()}, tt.f)

			code, corrupt := e.Evaluate(context.Background(), "/a", tt.op)
			assert.Equal(t, 0, code)
			assert.Equal(t, tt.want, corrupt)
		})
	}

	t.Run("WithError", func(t *testing.T) {
		e := newEvaluator(t, []string{"read"}, mungefs.Fault{CorruptData: true, ErrNo: 5})

		code, corrupt := e.Evaluate(context.Background(), "/a", mungefs.OpRead)
		assert.Equal(t, -5, code)
		assert.True(t, corrupt)
		assert.Equal(t, -5, e.Check(context.Background(), "/a", mungefs.OpRead))
	})
}

func TestEvaluateObserver(t *testing.T) {
	obs := test.NewObserver()
	e := newEvaluator(t, []string{"read"}, mungefs.Fault{ErrNo: 5, CorruptData: true, Regexp: "/in/.*"},
		fault.WithObserver(obs))

	e.Check(context.Background(), "/in/a", mungefs.OpRead)
	e.Check(context.Background(), "/out/a", mungefs.OpRead)
	e.Check(context.Background(), "/in/a", mungefs.OpWrite)

	assert.Equal(t, 2, obs.EvaluatedCount(mungefs.OpRead))
	assert.Equal(t, 0, obs.EvaluatedCount(mungefs.OpWrite))
	assert.Equal(t, 1, obs.InjectedCount(mungefs.OpRead, fault.KindError))
	assert.Equal(t, 1, obs.InjectedCount(mungefs.OpRead, fault.KindCorrupt))
}

// TestEvaluateConcurrentSet checks that an evaluation never observes a mix of two descriptors.
func TestEvaluateConcurrentSet(t *testing.T) {
	table := fault.NewTable()
	e := fault.NewEvaluator(table, fault.WithSleep(test.NoSleep))

	fa := mungefs.Fault{ErrNo: 5}
	fb := mungefs.Fault{ErrNo: 28, CorruptData: true}

	_, err := table.Set([]string{"read"}, fa)
	require.NoError(t, err)

	var wg sync.WaitGroup

	done := make(chan struct{})

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}

			f := fa
			if i%2 == 0 {
				f = fb
			}

			_, _ = table.Set([]string{"read", "write"}, f)
		}
	}()

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 10000 {
				code, corrupt := e.Evaluate(context.Background(), "/a", mungefs.OpRead)
				if !(code == -5 && !corrupt) && !(code == -28 && corrupt) {
					t.Errorf("Evaluate : want a consistent result, got %d %t", code, corrupt)

					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(done)
	wg.Wait()
}
