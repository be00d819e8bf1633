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

// Package fusefs implements a FUSE pass-through file system evaluating
// a mungefs.Evaluator before each operation on the original directory.
package fusefs

import (
	"log/slog"
	"time"

	"github.com/avfs/mungefs"
	"github.com/hanwen/go-fuse/v2/fs"
)

// DefaultAttrTimeout is the default time the kernel caches attributes, as in libfuse.
const DefaultAttrTimeout = time.Second

// FS is a pass-through file system of an original directory.
type FS struct {
	original   string            // original is the absolute path of the directory served by the file system.
	evaluator  mungefs.Evaluator // evaluator decides the faults of each operation.
	logger     *slog.Logger      // logger logs file system events.
	root       *fs.LoopbackRoot  // root is the loopback root of the file system.
	name       string            // name is the name of the file system shown by mount.
	allowOther bool              // allowOther allows other users to access the file system.
	debug      bool              // debug logs every FUSE request.
	attrTTL    time.Duration     // attrTTL is the time the kernel caches attributes.
}

// Option defines the option function used for initializing FS.
type Option func(*FS)

// Node is a directory or a file of FS.
type Node struct {
	fs.LoopbackNode
	fsys *FS // fsys is the file system of the node.
}

// File is an open file of FS.
type File struct {
	fs.FileHandle
	fsys *FS    // fsys is the file system of the file.
	path string // path is the path of the file relative to the mount point, starting with a slash.
}
