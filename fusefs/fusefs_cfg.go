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

package fusefs

import (
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// New returns a new file system serving the directory original.
// Every operation is evaluated by e before being performed.
func New(original string, e mungefs.Evaluator, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(original)
	if err != nil {
		return nil, errors.Wrapf(err, "original directory %s", original)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "original directory %s", original)
	}

	if !info.IsDir() {
		return nil, errors.Newf("original directory %s: not a directory", original)
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, errors.Newf("original directory %s: no device number", original)
	}

	fsys := &FS{
		original:  abs,
		evaluator: e,
		logger:    slog.New(slog.DiscardHandler),
		name:      "mungefs",
		attrTTL:   DefaultAttrTimeout,
	}

	for _, opt := range opts {
		opt(fsys)
	}

	fsys.root = &fs.LoopbackRoot{
		Path:    abs,
		Dev:     uint64(st.Dev),
		NewNode: fsys.newNode,
	}

	return fsys, nil
}

// Root returns the root node of the file system.
func (fsys *FS) Root() *Node {
	return &Node{LoopbackNode: fs.LoopbackNode{RootData: fsys.root}, fsys: fsys}
}

// Mount mounts the file system on the directory mountPoint.
// The returned server serves requests until it is unmounted.
func (fsys *FS) Mount(mountPoint string) (*fuse.Server, error) {
	server, err := fs.Mount(mountPoint, fsys.Root(), fsys.mountOptions())
	if err != nil {
		return nil, errors.Wrapf(err, "mount %s on %s", fsys.original, mountPoint)
	}

	fsys.logger.Info("mounted", "original", fsys.original, "mountpoint", mountPoint)

	return server, nil
}

// mountOptions returns the options of the mount.
// Entries are never cached: every path resolution sends a lookup, evaluated once as getattr,
// whose attributes then answer the stat that triggered it.
func (fsys *FS) mountOptions() *fs.Options {
	entryTTL := time.Duration(0)
	attrTTL := fsys.attrTTL

	opts := &fs.Options{
		AttrTimeout:     &attrTTL,
		EntryTimeout:    &entryTTL,
		NegativeTimeout: &entryTTL,
		NullPermissions: true,
		MountOptions: fuse.MountOptions{
			AllowOther: fsys.allowOther,
			Debug:      fsys.debug,
			FsName:     fsys.original,
			Name:       fsys.name,
		},
	}

	if fsys.allowOther {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "default_permissions")
	}

	return opts
}

// Original returns the absolute path of the original directory.
func (fsys *FS) Original() string {
	return fsys.original
}

// Name returns the name of the file system.
func (fsys *FS) Name() string {
	return fsys.name
}

// Type returns the type of the file system.
func (*FS) Type() string {
	return "MungeFS"
}

func (fsys *FS) newNode(rootData *fs.LoopbackRoot, _ *fs.Inode, _ string, _ *syscall.Stat_t) fs.InodeEmbedder {
	return &Node{LoopbackNode: fs.LoopbackNode{RootData: rootData}, fsys: fsys}
}

// Options

// WithLogger returns an option function which sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(fsys *FS) {
		fsys.logger = logger
	}
}

// WithName returns an option function which sets the name of the file system.
func WithName(name string) Option {
	return func(fsys *FS) {
		fsys.name = name
	}
}

// WithAllowOther returns an option function which allows other users to access the file system.
func WithAllowOther(allowOther bool) Option {
	return func(fsys *FS) {
		fsys.allowOther = allowOther
	}
}

// WithDebug returns an option function which logs every FUSE request.
func WithDebug(debug bool) Option {
	return func(fsys *FS) {
		fsys.debug = debug
	}
}

// WithAttrTimeout returns an option function which sets the time the kernel caches attributes.
// Attribute queries on open files (fgetattr) are evaluated at most once per period.
func WithAttrTimeout(timeout time.Duration) Option {
	return func(fsys *FS) {
		if timeout >= 0 {
			fsys.attrTTL = timeout
		}
	}
}
