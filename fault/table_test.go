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
	"testing"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSet(t *testing.T) {
	table := fault.NewTable()

	n, err := table.Set([]string{"read", "write", "bogus", "read"}, mungefs.Fault{ErrNo: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, table.Len())

	d, ok := table.Lookup(mungefs.OpRead)
	require.True(t, ok)
	assert.Equal(t, int32(5), d.ErrNo)

	_, ok = table.Lookup(mungefs.OpOpen)
	assert.False(t, ok)

	t.Run("Overwrite", func(t *testing.T) {
		_, err := table.Set([]string{"read"}, mungefs.Fault{DelayUs: 10})
		require.NoError(t, err)

		d, ok := table.Lookup(mungefs.OpRead)
		require.True(t, ok)
		assert.Equal(t, mungefs.Fault{DelayUs: 10}, d.Fault)
	})

	t.Run("UnknownOnly", func(t *testing.T) {
		n, err := table.Set([]string{"bogus", ""}, mungefs.Fault{ErrNo: 1})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("InvalidPattern", func(t *testing.T) {
		n, err := table.Set([]string{"open", "read"}, mungefs.Fault{ErrNo: 2, Regexp: "(["})
		require.Error(t, err)
		assert.True(t, errors.Is(err, mungefs.ErrInvalidPattern))
		assert.Equal(t, 0, n)

		_, ok := table.Lookup(mungefs.OpOpen)
		assert.False(t, ok)

		d, ok := table.Lookup(mungefs.OpRead)
		require.True(t, ok)
		assert.Equal(t, int32(10), d.DelayUs)
	})
}

func TestTableSetAll(t *testing.T) {
	table := fault.NewTable()

	n, err := table.Set(mungefs.OpNames(), mungefs.Fault{ErrNo: 28})
	require.NoError(t, err)
	assert.Equal(t, len(mungefs.Ops()), n)
	assert.Equal(t, mungefs.Ops(), table.Ops())

	first, _ := table.Lookup(mungefs.OpGetattr)
	for _, op := range mungefs.Ops() {
		d, ok := table.Lookup(op)
		if !ok {
			t.Errorf("Lookup %s : want a fault, got none", op)

			continue
		}

		if d != first {
			t.Errorf("Lookup %s : want the same descriptor for every operation", op)
		}
	}
}

func TestTableClear(t *testing.T) {
	table := fault.NewTable()

	_, err := table.Set([]string{"mkdir", "rmdir", "unlink"}, mungefs.Fault{ErrNo: 13})
	require.NoError(t, err)

	assert.True(t, table.Clear("rmdir"))
	assert.False(t, table.Clear("rmdir"))
	assert.False(t, table.Clear("bogus"))
	assert.Equal(t, []mungefs.Op{mungefs.OpMkdir, mungefs.OpUnlink}, table.Ops())

	assert.Equal(t, 2, table.ClearAll())
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Ops())
}

func TestDescriptorMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{pattern: "", path: "/any/path", want: true},
		{pattern: "/foo/.*", path: "/foo/bar", want: true},
		{pattern: "/foo/.*", path: "/x/foo/bar", want: false},
		{pattern: "foo", path: "/foo", want: false},
		{pattern: ".*foo", path: "/foo", want: true},
		{pattern: "/a|/b", path: "/b", want: true},
		{pattern: "/a|/b", path: "/ab", want: false},
		{pattern: ".*\\.txt", path: "/dir/file.txt", want: true},
		{pattern: ".*\\.txt", path: "/dir/file.txt.bak", want: false},
	}

	for _, tt := range tests {
		d, err := fault.NewDescriptor(mungefs.Fault{Regexp: tt.pattern})
		require.NoError(t, err)

		if got := d.Match(tt.path); got != tt.want {
			t.Errorf("Match %q %q : want %t, got %t", tt.pattern, tt.path, tt.want, got)
		}
	}
}
