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
	"syscall"

	"github.com/avfs/mungefs"
	"github.com/hanwen/go-fuse/v2/fs"
)

var (
	_ fs.NodeGetxattrer    = (*Node)(nil)
	_ fs.NodeSetxattrer    = (*Node)(nil)
	_ fs.NodeListxattrer   = (*Node)(nil)
	_ fs.NodeRemovexattrer = (*Node)(nil)
)

func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpGetxattr); errno != 0 {
		return 0, errno
	}

	return n.LoopbackNode.Getxattr(ctx, attr, dest)
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpSetxattr); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Setxattr(ctx, attr, data, flags)
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpListxattr); errno != 0 {
		return 0, errno
	}

	return n.LoopbackNode.Listxattr(ctx, dest)
}

func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	if errno := n.fsys.check(ctx, n.path(), mungefs.OpRemovexattr); errno != 0 {
		return errno
	}

	return n.LoopbackNode.Removexattr(ctx, attr)
}
