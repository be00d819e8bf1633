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
	"bytes"
	"context"
	"syscall"

	"github.com/avfs/mungefs"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// lkFlock is the FUSE_LK_FLOCK flag of lock requests emulating flock(2).
const lkFlock = 1

var (
	_ fs.FileReader    = (*File)(nil)
	_ fs.FileWriter    = (*File)(nil)
	_ fs.FileFlusher   = (*File)(nil)
	_ fs.FileReleaser  = (*File)(nil)
	_ fs.FileFsyncer   = (*File)(nil)
	_ fs.FileAllocater = (*File)(nil)
	_ fs.FileGetlker   = (*File)(nil)
	_ fs.FileSetlker   = (*File)(nil)
	_ fs.FileSetlkwer  = (*File)(nil)
	_ fs.FileGetattrer = (*File)(nil)
	_ fs.FileSetattrer = (*File)(nil)
	_ fs.FileLseeker   = (*File)(nil)
)

func (fsys *FS) newFile(fh fs.FileHandle, path string) *File {
	return &File{FileHandle: fh, fsys: fsys, path: path}
}

// unsupported logs an operation the underlying file handle does not implement.
func (f *File) unsupported(name string) syscall.Errno {
	f.fsys.logger.Warn("unsupported file operation", "op", name, "path", f.path)

	return syscall.ENOTSUP
}

// Read replaces the bytes read with mungefs.FillerByte when the data must be corrupted.
func (f *File) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	errno, corrupt := f.fsys.evaluate(ctx, f.path, mungefs.OpRead)
	if errno != 0 {
		return nil, errno
	}

	fr, ok := f.FileHandle.(fs.FileReader)
	if !ok {
		return nil, f.unsupported("read")
	}

	res, errno := fr.Read(ctx, dest, off)
	if errno != 0 || !corrupt {
		return res, errno
	}

	b, status := res.Bytes(dest)
	res.Done()

	if !status.Ok() {
		return nil, syscall.Errno(status)
	}

	return fuse.ReadResultData(bytes.Repeat([]byte{mungefs.FillerByte}, len(b))), 0
}

// Write writes mungefs.FillerByte instead of data when the data must be corrupted.
func (f *File) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	errno, corrupt := f.fsys.evaluate(ctx, f.path, mungefs.OpWrite)
	if errno != 0 {
		return 0, errno
	}

	fw, ok := f.FileHandle.(fs.FileWriter)
	if !ok {
		return 0, f.unsupported("write")
	}

	if corrupt {
		data = bytes.Repeat([]byte{mungefs.FillerByte}, len(data))
	}

	return fw.Write(ctx, data, off)
}

func (f *File) Flush(ctx context.Context) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, mungefs.OpFlush); errno != 0 {
		return errno
	}

	ff, ok := f.FileHandle.(fs.FileFlusher)
	if !ok {
		return f.unsupported("flush")
	}

	return ff.Flush(ctx)
}

// Release always releases the underlying file handle.
// An injected error is returned after the release.
func (f *File) Release(ctx context.Context) syscall.Errno {
	injected := f.fsys.check(ctx, f.path, mungefs.OpRelease)

	fr, ok := f.FileHandle.(fs.FileReleaser)
	if !ok {
		return f.unsupported("release")
	}

	errno := fr.Release(ctx)
	if injected != 0 {
		return injected
	}

	return errno
}

func (f *File) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, mungefs.OpFsync); errno != 0 {
		return errno
	}

	ff, ok := f.FileHandle.(fs.FileFsyncer)
	if !ok {
		return f.unsupported("fsync")
	}

	return ff.Fsync(ctx, flags)
}

func (f *File) Allocate(ctx context.Context, off, size uint64, mode uint32) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, mungefs.OpFallocate); errno != 0 {
		return errno
	}

	fa, ok := f.FileHandle.(fs.FileAllocater)
	if !ok {
		return f.unsupported("fallocate")
	}

	return fa.Allocate(ctx, off, size, mode)
}

// lockOp returns the operation of a lock request.
func lockOp(flags uint32) mungefs.Op {
	if flags&lkFlock != 0 {
		return mungefs.OpFlock
	}

	return mungefs.OpLock
}

func (f *File) Getlk(ctx context.Context, owner uint64, lk *fuse.FileLock, flags uint32, out *fuse.FileLock) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, lockOp(flags)); errno != 0 {
		return errno
	}

	fl, ok := f.FileHandle.(fs.FileGetlker)
	if !ok {
		return f.unsupported("getlk")
	}

	return fl.Getlk(ctx, owner, lk, flags, out)
}

func (f *File) Setlk(ctx context.Context, owner uint64, lk *fuse.FileLock, flags uint32) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, lockOp(flags)); errno != 0 {
		return errno
	}

	fl, ok := f.FileHandle.(fs.FileSetlker)
	if !ok {
		return f.unsupported("setlk")
	}

	return fl.Setlk(ctx, owner, lk, flags)
}

func (f *File) Setlkw(ctx context.Context, owner uint64, lk *fuse.FileLock, flags uint32) syscall.Errno {
	if errno := f.fsys.check(ctx, f.path, lockOp(flags)); errno != 0 {
		return errno
	}

	fl, ok := f.FileHandle.(fs.FileSetlkwer)
	if !ok {
		return f.unsupported("setlkw")
	}

	return fl.Setlkw(ctx, owner, lk, flags)
}

// Getattr is evaluated by Node.Getattr as fgetattr.
func (f *File) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	fg, ok := f.FileHandle.(fs.FileGetattrer)
	if !ok {
		return f.unsupported("getattr")
	}

	return fg.Getattr(ctx, out)
}

// Setattr is evaluated by Node.Setattr.
func (f *File) Setattr(ctx context.Context, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	fsa, ok := f.FileHandle.(fs.FileSetattrer)
	if !ok {
		return f.unsupported("setattr")
	}

	return fsa.Setattr(ctx, in, out)
}

func (f *File) Lseek(ctx context.Context, off uint64, whence uint32) (uint64, syscall.Errno) {
	fl, ok := f.FileHandle.(fs.FileLseeker)
	if !ok {
		return 0, f.unsupported("lseek")
	}

	return fl.Lseek(ctx, off, whence)
}
