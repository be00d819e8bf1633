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

import "strconv"

// Op defines the file system operations that can be disrupted (see fault.Table).
type Op uint8

const (
	OpGetattr Op = iota + 1
	OpReadlink
	OpMknod
	OpMkdir
	OpUnlink
	OpRmdir
	OpSymlink
	OpRename
	OpLink
	OpChmod
	OpChown
	OpTruncate
	OpOpen
	OpRead
	OpWrite
	OpStatfs
	OpFlush
	OpRelease
	OpFsync
	OpSetxattr
	OpGetxattr
	OpListxattr
	OpRemovexattr
	OpOpendir
	OpReaddir
	OpReleasedir
	OpFsyncdir
	OpAccess
	OpCreate
	OpFtruncate
	OpFgetattr
	OpLock
	OpBmap
	OpIoctl
	OpPoll
	OpFlock
	OpFallocate

	opCount = int(OpFallocate)
)

// opNames are the wire names of the operations, indexed by Op.
var opNames = [...]string{
	OpGetattr:     "getattr",
	OpReadlink:    "readlink",
	OpMknod:       "mknod",
	OpMkdir:       "mkdir",
	OpUnlink:      "unlink",
	OpRmdir:       "rmdir",
	OpSymlink:     "symlink",
	OpRename:      "rename",
	OpLink:        "link",
	OpChmod:       "chmod",
	OpChown:       "chown",
	OpTruncate:    "truncate",
	OpOpen:        "open",
	OpRead:        "read",
	OpWrite:       "write",
	OpStatfs:      "statfs",
	OpFlush:       "flush",
	OpRelease:     "release",
	OpFsync:       "fsync",
	OpSetxattr:    "setxattr",
	OpGetxattr:    "getxattr",
	OpListxattr:   "listxattr",
	OpRemovexattr: "removexattr",
	OpOpendir:     "opendir",
	OpReaddir:     "readdir",
	OpReleasedir:  "releasedir",
	OpFsyncdir:    "fsyncdir",
	OpAccess:      "access",
	OpCreate:      "create",
	OpFtruncate:   "ftruncate",
	OpFgetattr:    "fgetattr",
	OpLock:        "lock",
	OpBmap:        "bmap",
	OpIoctl:       "ioctl",
	OpPoll:        "poll",
	OpFlock:       "flock",
	OpFallocate:   "fallocate",
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, opCount)
	for _, op := range Ops() {
		m[op.String()] = op
	}

	return m
}()

// Ops returns all valid operations in vocabulary order.
func Ops() []Op {
	ops := make([]Op, 0, opCount)
	for op := OpGetattr; op <= OpFallocate; op++ {
		ops = append(ops, op)
	}

	return ops
}

// OpNames returns the names of all valid operations in vocabulary order.
func OpNames() []string {
	names := make([]string, 0, opCount)
	for _, op := range Ops() {
		names = append(names, op.String())
	}

	return names
}

// ParseOp returns the operation named name.
// ok is false if name is not part of the vocabulary.
func ParseOp(name string) (op Op, ok bool) {
	op, ok = opByName[name]

	return op, ok
}

// IsValid returns true if op is part of the vocabulary.
func (op Op) IsValid() bool {
	return op >= OpGetattr && op <= OpFallocate
}

// String returns the wire name of the operation.
func (op Op) String() string {
	if !op.IsValid() {
		return "Op(" + strconv.Itoa(int(op)) + ")"
	}

	return opNames[op]
}

// CorruptsData returns true if corrupt_data applies to the operation.
func (op Op) CorruptsData() bool {
	return op == OpRead || op == OpWrite
}

// CorruptsSize returns true if corrupt_size applies to the operation (attribute queries).
func (op Op) CorruptsSize() bool {
	return op == OpGetattr || op == OpFgetattr
}
