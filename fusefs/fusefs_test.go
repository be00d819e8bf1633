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

package fusefs_test

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/avfs/mungefs/fusefs"
	"github.com/avfs/mungefs/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mount mounts a new file system and returns the mount point, the original directory and the fault table.
func mount(t *testing.T, opts ...fault.Option) (mnt, orig string, table *fault.Table) {
	t.Helper()

	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skipf("mount : /dev/fuse unavailable, skipping tests : %v", err)
	}

	orig = t.TempDir()
	mnt = t.TempDir()
	table = fault.NewTable()

	opts = append([]fault.Option{fault.WithSleep(test.NoSleep)}, opts...)

	fsys, err := fusefs.New(orig, fault.NewEvaluator(table, opts...))
	require.NoError(t, err)

	server, err := fsys.Mount(mnt)
	if err != nil {
		t.Skipf("mount : %v, skipping tests", err)
	}

	t.Cleanup(func() { _ = server.Unmount() })

	return mnt, orig, table
}

func setFault(t *testing.T, table *fault.Table, f mungefs.Fault, ops ...string) {
	t.Helper()

	table.ClearAll()

	_, err := table.Set(ops, f)
	require.NoError(t, err)
}

func TestMountPassThrough(t *testing.T) {
	mnt, orig, _ := mount(t)

	require.NoError(t, os.WriteFile(filepath.Join(mnt, "a.txt"), []byte("hello"), 0o644))

	b, err := os.ReadFile(filepath.Join(orig, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, os.Mkdir(filepath.Join(mnt, "dir"), 0o755))
	require.NoError(t, os.Rename(filepath.Join(mnt, "a.txt"), filepath.Join(mnt, "dir", "b.txt")))

	entries, err := os.ReadDir(filepath.Join(mnt, "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name())
}

func TestMountErrors(t *testing.T) {
	mnt, orig, table := mount(t)

	require.NoError(t, os.WriteFile(filepath.Join(orig, "a.txt"), []byte("hello"), 0o644))

	setFault(t, table, mungefs.Fault{ErrNo: int32(syscall.EACCES), Regexp: "/a\\.txt"}, "open")

	_, err := os.Open(filepath.Join(mnt, "a.txt"))
	assert.ErrorIs(t, err, syscall.EACCES)

	setFault(t, table, mungefs.Fault{ErrNo: int32(syscall.ENOSPC)}, "mkdir")

	err = os.Mkdir(filepath.Join(mnt, "dir"), 0o755)
	assert.ErrorIs(t, err, syscall.ENOSPC)

	setFault(t, table, mungefs.Fault{ErrNo: int32(syscall.EIO)}, "unlink")

	err = os.Remove(filepath.Join(mnt, "a.txt"))
	assert.ErrorIs(t, err, syscall.EIO)

	table.ClearAll()
	require.NoError(t, os.Remove(filepath.Join(mnt, "a.txt")))
}

func TestMountCorrupt(t *testing.T) {
	mnt, orig, table := mount(t)

	require.NoError(t, os.WriteFile(filepath.Join(orig, "a.txt"), []byte("hello!"), 0o644))

	setFault(t, table, mungefs.Fault{CorruptData: true}, "read")

	b, err := os.ReadFile(filepath.Join(mnt, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "xxxxxx", string(b))

	setFault(t, table, mungefs.Fault{CorruptSize: true}, "getattr", "fgetattr")
	require.NoError(t, os.WriteFile(filepath.Join(orig, "c.txt"), []byte("hello!"), 0o644))

	info, err := os.Stat(filepath.Join(mnt, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	setFault(t, table, mungefs.Fault{CorruptData: true}, "write")
	require.NoError(t, os.WriteFile(filepath.Join(mnt, "b.txt"), []byte("data"), 0o644))

	table.ClearAll()

	b, err = os.ReadFile(filepath.Join(orig, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "xxxx", string(b))
}

func TestMountStatEvaluatedOnce(t *testing.T) {
	obs := test.NewObserver()
	mnt, orig, table := mount(t, fault.WithObserver(obs))

	require.NoError(t, os.WriteFile(filepath.Join(orig, "s.txt"), []byte("hello!"), 0o644))
	setFault(t, table, mungefs.Fault{CorruptSize: true, Regexp: "/s\\.txt"}, "getattr")

	info, err := os.Stat(filepath.Join(mnt, "s.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())
	assert.Equal(t, 1, obs.InjectedCount(mungefs.OpGetattr, fault.KindCorrupt))

	setFault(t, table, mungefs.Fault{ErrNo: int32(syscall.EIO), Regexp: "/s\\.txt"}, "getattr")

	_, err = os.Stat(filepath.Join(mnt, "s.txt"))
	assert.ErrorIs(t, err, syscall.EIO)
}
