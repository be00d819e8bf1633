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
	"regexp"
	"slices"

	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
)

// NewTable returns a new empty fault table.
func NewTable() *Table {
	return &Table{faults: make(map[mungefs.Op]*Descriptor)}
}

// NewDescriptor returns a descriptor for the fault f.
// The pattern of f, if any, must match a whole path.
func NewDescriptor(f mungefs.Fault) (*Descriptor, error) {
	d := &Descriptor{Fault: f}
	if f.Regexp == "" {
		return d, nil
	}

	re, err := regexp.Compile("^(?:" + f.Regexp + ")$")
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid pattern %q", f.Regexp), mungefs.ErrInvalidPattern)
	}

	d.re = re

	return d, nil
}

// Match returns true if the descriptor has no pattern or if its pattern matches the whole path.
func (d *Descriptor) Match(path string) bool {
	return d.re == nil || d.re.MatchString(path)
}

// Set assigns the fault f to every valid operation named in names,
// replacing any previous fault. Unknown names are ignored.
// All the operations are updated at once: a concurrent Lookup observes either
// none or all of them. If the pattern of f is invalid, nothing is changed and
// an error marked with mungefs.ErrInvalidPattern is returned.
// Set returns the number of operations updated.
func (t *Table) Set(names []string, f mungefs.Fault) (int, error) {
	d, err := NewDescriptor(f)
	if err != nil {
		return 0, err
	}

	ops := make([]mungefs.Op, 0, len(names))

	for _, name := range names {
		op, ok := mungefs.ParseOp(name)
		if ok && !slices.Contains(ops, op) {
			ops = append(ops, op)
		}
	}

	if len(ops) == 0 {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, op := range ops {
		t.faults[op] = d
	}

	return len(ops), nil
}

// Clear removes the fault of the operation named name.
// It returns true if a fault was removed.
func (t *Table) Clear(name string) bool {
	op, ok := mungefs.ParseOp(name)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok = t.faults[op]
	delete(t.faults, op)

	return ok
}

// ClearAll removes all faults and returns how many were removed.
func (t *Table) ClearAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.faults)
	clear(t.faults)

	return n
}

// Lookup returns the descriptor of the operation op.
func (t *Table) Lookup(op mungefs.Op) (*Descriptor, bool) {
	t.mu.RLock()
	d, ok := t.faults[op]
	t.mu.RUnlock()

	return d, ok
}

// Len returns the number of operations having a fault.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.faults)
}

// Ops returns the operations having a fault in vocabulary order.
func (t *Table) Ops() []mungefs.Op {
	t.mu.RLock()
	ops := make([]mungefs.Op, 0, len(t.faults))

	for op := range t.faults {
		ops = append(ops, op)
	}

	t.mu.RUnlock()

	slices.Sort(ops)

	return ops
}
