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
	"context"
	"log/slog"
	"time"

	"github.com/avfs/mungefs"
)

var _ mungefs.Evaluator = &Evaluator{}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying the pid of the process calling an operation.
func WithCaller(ctx context.Context, pid int) context.Context {
	return context.WithValue(ctx, callerKey{}, pid)
}

// CallerFrom returns the pid of the process calling an operation, if ctx carries one.
func CallerFrom(ctx context.Context) (int, bool) {
	pid, ok := ctx.Value(callerKey{}).(int)

	return pid, ok
}

// Evaluate decides which fault applies to the operation op on path.
//
// It returns 0 when the operation must proceed, or the negated error number
// to return instead. corrupt is true when the caller must corrupt the data
// (read, write) or the size (getattr, fgetattr) once the real operation succeeds.
// A kill_caller fault terminates the caller found in ctx and returns 0.
func (e *Evaluator) Evaluate(ctx context.Context, path string, op mungefs.Op) (code int, corrupt bool) {
	d, ok := e.table.Lookup(op)
	if !ok {
		return 0, false
	}

	e.observer.Evaluated(op)

	if d.Probability != 0 && int64(e.draw()) > int64(d.Probability) {
		return 0, false
	}

	if !d.Match(path) {
		return 0, false
	}

	errNo := int(d.ErrNo)
	if errNo == 0 && d.Random {
		errNo = e.randomErrNo()
	}

	if d.DelayUs > 0 {
		e.sleep(time.Duration(d.DelayUs) * time.Microsecond)
		e.observer.Injected(op, KindDelay)
	}

	if d.KillCaller {
		e.killCaller(ctx, path, op)

		return 0, false
	}

	corrupt = (d.CorruptData && op.CorruptsData()) || (d.CorruptSize && op.CorruptsSize())

	if errNo != 0 {
		e.observer.Injected(op, KindError)
		e.logger.Debug("inject error", "op", op.String(), "path", path, "errno", errNo)
	}

	if corrupt {
		e.observer.Injected(op, KindCorrupt)
	}

	return -errNo, corrupt
}

// Check is Evaluate ignoring corruption.
func (e *Evaluator) Check(ctx context.Context, path string, op mungefs.Op) int {
	code, _ := e.Evaluate(ctx, path, op)

	return code
}

// draw returns a uniform random number in [1, mungefs.ProbabilityScale].
func (e *Evaluator) draw() uint32 {
	return e.rand(mungefs.ProbabilityScale) + 1
}

func (e *Evaluator) randomErrNo() int {
	n := uint32(maxRandomErrNo - minRandomErrNo + 1)

	return minRandomErrNo + int(e.rand(n))
}

func (e *Evaluator) killCaller(ctx context.Context, path string, op mungefs.Op) {
	pid, ok := CallerFrom(ctx)
	if !ok || pid <= 0 || pid == e.selfPid {
		e.logger.Warn("kill skipped, no caller", "op", op.String(), "path", path, "pid", pid)

		return
	}

	err := e.terminator.Terminate(pid)
	if err != nil {
		e.logger.Error("kill caller", "op", op.String(), "path", path, "pid", pid, slog.Any("err", err))

		return
	}

	e.observer.Injected(op, KindKill)
	e.logger.Info("caller killed", "op", op.String(), "path", path, "pid", pid)
}
