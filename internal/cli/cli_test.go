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

package cli_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/control"
	"github.com/avfs/mungefs/fault"
	"github.com/avfs/mungefs/internal/cli"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (string, *fault.Table) {
	t.Helper()

	table := fault.NewTable()
	srv := control.NewServer(table, control.WithAddr("127.0.0.1:0"))
	require.NoError(t, srv.Start(context.Background()))

	t.Cleanup(func() { _ = srv.Stop() })

	return srv.Addr(), table
}

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := cli.NewCtlCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	return out.String(), err
}

func TestCtlSend(t *testing.T) {
	addr, table := startServer(t)

	out, err := runCtl(t, "--address", addr, "--operations", "read, write", "--err_no", "5",
		"--probability", "100000", "--regexp", "/data/.*", "--corrupt_data")
	require.NoError(t, err)
	assert.Contains(t, out, "err_no:       5")
	assert.Contains(t, out, mungefs.AckMessage)

	d, ok := table.Lookup(mungefs.OpWrite)
	require.True(t, ok)
	assert.Equal(t, mungefs.Fault{ErrNo: 5, Probability: 100000, Regexp: "/data/.*", CorruptData: true}, d.Fault)
	assert.Equal(t, 2, table.Len())
}

func TestCtlAll(t *testing.T) {
	addr, table := startServer(t)

	_, err := runCtl(t, "--address", addr, "--operations", "all", "--delay_us", "10")
	require.NoError(t, err)
	assert.Equal(t, len(mungefs.Ops()), table.Len())

	_, err = runCtl(t, "--address", addr, "--operations", "read,open", "--clear")
	require.NoError(t, err)
	assert.Equal(t, len(mungefs.Ops())-2, table.Len())

	_, err = runCtl(t, "--address", addr, "--clear_all")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestCtlErrors(t *testing.T) {
	addr, table := startServer(t)

	_, err := runCtl(t, "--address", addr)
	assert.Error(t, err, "missing --operations")

	_, err = runCtl(t, "--address", addr, "--operations", "read", "--err_no", "five")
	assert.Error(t, err, "invalid --err_no")

	_, err = runCtl(t, "--address", addr, "--operations", "read", "--regexp", "([")

	var replyErr mungefs.ReplyError
	assert.True(t, errors.As(err, &replyErr), "want a ReplyError, got %v", err)
	assert.Equal(t, 0, table.Len())

	_, err = runCtl(t, "--address", "127.0.0.1:1", "--operations", "read", "--timeout", "100ms")
	assert.True(t, errors.Is(err, mungefs.ErrConnection), "want ErrConnection, got %v", err)
}

func TestParseOperations(t *testing.T) {
	var warn bytes.Buffer

	ops := cli.ParseOperations("read,write  open,,bogus", &warn)
	assert.Equal(t, []string{"read", "write", "open", "bogus"}, ops)
	assert.Contains(t, warn.String(), "bogus")

	ops = cli.ParseOperations("all", &warn)
	assert.Equal(t, mungefs.OpNames(), ops)

	assert.Empty(t, cli.ParseOperations(" , ", &warn))
}

func TestDaemonInvalidOptions(t *testing.T) {
	var out bytes.Buffer

	cmd := cli.NewDaemonCommand()
	cmd.SetArgs([]string{"/nonexistent/mnt", "/nonexistent/orig"})
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount point")

	cmd = cli.NewDaemonCommand()
	cmd.SetArgs([]string{"a", "b", "c"})
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	assert.Error(t, cmd.Execute())
}
