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
	"context"
	"path"
	"path/filepath"
	"syscall"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

var (
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeMknoder    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.NodeOpendirer  = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeFsyncer    = (*Node)(nil)
)

// evaluate evaluates the operation op on path p for the caller of the request ctx.
func (fsys *FS) evaluate(ctx context.Context, p string, op mungefs.Op) (errno syscall.Errno, corrupt bool) {
	if caller, ok := fuse.FromContext(ctx); ok {
		ctx = fault.WithCaller(ctx, int(caller.Pid))
	}

	code, corrupt := fsys.evaluator.Evaluate(ctx, p, op)
	if code < 0 {
		code = -code
	}

	return syscall.Errno(code), corrupt
}

// check is evaluate ignoring corruption.
func (fsys *FS) check(ctx context.Context, p string, op mungefs.Op) syscall.Errno {
	errno, _ := fsys.evaluate(ctx, p, op)

	return errno
}

// path returns the path of the node relative to the mount point, starting with a slash.
func (n *Node) path() string {
	return "/" + n.Path(n.Root())
}

// child returns the path of the entry name of the directory n.
func (n *Node) child(name string) string {
	return path.Join(n.path(), name)
}

// pathOf returns the path of the node e relative to the mount point.
func (n *Node) pathOf(e fs.InodeEmbedder) string {
	return "/" + e.EmbeddedInode().Path(n.Root())
}

// osPath returns the path of the node in the original directory.
func (n *Node) osPath() string {
	return filepath.Join(n.RootData.Path, n.Path(n.Root()))
}

// Lookup is evaluated as getattr, the attribute query resolving a path.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	errno, corrupt := n.fsys.evaluate(ctx, n.child(name), mungefs.OpGetattr)
	if errno != 0 {
		return nil, errno
	}

	ch, errno := n.LoopbackNode.Lookup(ctx, name, out)
	if errno == 0 && corrupt {
		out.Size /= 2
	}

	return ch, errno
}

// Getattr is evaluated as fgetattr when f is not nil, getattr otherwise.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	op := mungefs.OpGetattr
	if f != nil {
		op = mungefs.OpFgetattr
	}

	errno, corrupt := n.fsys.evaluate(ctx, n.path(), op)
	if errno != 0 {
		return errno
	}

	errno = n.LoopbackNode.Getattr(ctx, f, out)
	if errno == 0 && corrupt {
		out.Size /= 2
	}

	return errno
}

// Setattr is evaluated as chmod, chown and truncate (or ftruncate) depending on the attributes set.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	p := n.path()

	if _, ok := in.GetMode(); ok {
		if errno := n.fsys.check(ctx, p, mungefs.OpChmod); errno != 0 {
			return errno
		}
	}

	_, uidOk := in.GetUID()
	_, gidOk := in.GetGID()

	if uidOk || gidOk {
		if errno := n.fsys.check(ctx, p, mungefs.OpChown); errno != 0 {
			return errno
		}
	}

	if _, ok := in.GetSize(); ok {
		op := mungefs.OpTruncate
		if f != nil {
			op = mungefs.OpFtruncate
		}

		if errno := n.fsys.check(ctx, p, op); errno != 0 {
			return errno
		}
	}

	return n.LoopbackNode.Setattr(ctx, f, in, out)
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpReadlink); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Readlink(ctx)
}

func (n *Node) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpMknod); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Mknod(ctx, name, mode, rdev, out)
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpMkdir); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Mkdir(ctx, name, mode, out)
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpUnlink); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Unlink(ctx, name)
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpRmdir); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Rmdir(ctx, name)
}

// Symlink is evaluated on the path of the link, then on its target.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpSymlink); errno != 0 {
		return nil, errno
	}

	if errno := n.fsys.check(ctx, target, mungefs.OpSymlink); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Symlink(ctx, target, name, out)
}

// Rename is evaluated on the old path, then on the new path.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string,
	flags uint32,
) syscall.Errno {
	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpRename); errno != 0 {
		return errno
	}

	if errno := n.fsys.check(ctx, path.Join(n.pathOf(newParent), newName), mungefs.OpRename); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Rename(ctx, name, newParent, newName, flags)
}

// Link is evaluated on the path of the target, then on the path of the new link.
func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode,
	syscall.Errno,
) {
	if errno := n.fsys.check(ctx, n.pathOf(target), mungefs.OpLink); errno != 0 {
		return nil, errno
	}

	if errno := n.fsys.check(ctx, n.child(name), mungefs.OpLink); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Link(ctx, target, name, out)
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	p := n.path()
	if errno := n.fsys.check(ctx, p, mungefs.OpOpen); errno != 0 {
		return nil, 0, errno
	}

	fh, fuseFlags, errno := n.LoopbackNode.Open(ctx, flags)
	if errno != 0 {
		return nil, 0, errno
	}

	return n.fsys.newFile(fh, p), fuseFlags, 0
}

func (n *Node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode,
	fs.FileHandle, uint32, syscall.Errno,
) {
	p := n.child(name)
	if errno := n.fsys.check(ctx, p, mungefs.OpCreate); errno != 0 {
		return nil, nil, 0, errno
	}

	ch, fh, fuseFlags, errno := n.LoopbackNode.Create(ctx, name, flags, mode, out)
	if errno != 0 {
		return nil, nil, 0, errno
	}

	return ch, n.fsys.newFile(fh, p), fuseFlags, 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpStatfs); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Statfs(ctx, out)
}

func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpOpendir); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Opendir(ctx)
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpReaddir); errno != 0 {
		return nil, errno
	}

	return n.LoopbackNode.Readdir(ctx)
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpAccess); errno != 0 {
		return errno
	}

	return fs.ToErrno(unix.Access(n.osPath(), mask))
}

// Fsync is evaluated as fsyncdir when f is nil.
// Otherwise the file f evaluates fsync.
func (n *Node) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	if f != nil {
		if ff, ok := f.(fs.FileFsyncer); ok {
			return ff.Fsync(ctx, flags)
		}

		return syscall.ENOTSUP
	}

	if errno := n.fsys.check(ctx, n.path(), mungefs.OpFsyncdir); errno != 0 {
		return errno
	}

	fd, err := unix.Open(n.osPath(), unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return fs.ToErrno(err)
	}

	defer unix.Close(fd)

	return fs.ToErrno(unix.Fsync(fd))
}
