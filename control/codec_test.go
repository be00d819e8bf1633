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

package control_test

import (
	"testing"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/control"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCommands() []*mungefs.Command {
	return []*mungefs.Command{
		{Operations: []string{}},
		{Operations: []string{"read"}, Fault: mungefs.Fault{ErrNo: 5}},
		{
			Operations: []string{"read", "write", "getattr"},
			Fault: mungefs.Fault{
				Random:      true,
				ErrNo:       -28,
				Probability: 50000,
				Regexp:      "/data/.*\\.db",
				KillCaller:  true,
				DelayUs:     1 << 30,
				AutoDelay:   true,
				CorruptData: true,
				CorruptSize: true,
			},
		},
		{Operations: mungefs.OpNames(), Fault: mungefs.Fault{Regexp: "é/ü"}},
		{Operations: []string{"", "bogus"}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, cmd := range sampleCommands() {
		b, err := control.Encode(cmd)
		require.NoError(t, err)

		got, err := control.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, cmd, got)
	}
}

func TestEncodeBytes(t *testing.T) {
	b, err := control.Encode(&mungefs.Command{Operations: []string{"read"}, Fault: mungefs.Fault{ErrNo: 5}})
	require.NoError(t, err)

	want := []byte{0x02, 0x08, 'r', 'e', 'a', 'd', 0x00, 0x00, 0x0a, 0, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, want, b)

	b, err = control.Encode(&mungefs.Command{})
	require.NoError(t, err)
	assert.Len(t, b, 10)

	got, err := control.Decode(b)
	require.NoError(t, err)
	assert.NotNil(t, got.Operations)
	assert.Empty(t, got.Operations)
}

// TestEncodeNotReserved checks that no encoded command starts like a reserved message.
func TestEncodeNotReserved(t *testing.T) {
	reserved := []string{mungefs.QuitMessage, mungefs.ClearMessage, mungefs.AckMessage, mungefs.ErrPrefix}

	for _, cmd := range sampleCommands() {
		b, err := control.Encode(cmd)
		require.NoError(t, err)

		for _, r := range reserved {
			if b[0] == r[0] {
				t.Errorf("Encode %s : first byte %q collides with %q", cmd, b[0], r)
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := control.Encode(sampleCommands()[2])
	require.NoError(t, err)

	t.Run("Empty", func(t *testing.T) {
		_, err := control.Decode(nil)
		assert.True(t, errors.Is(err, mungefs.ErrDecode))
	})

	t.Run("Truncated", func(t *testing.T) {
		for i := 1; i < len(valid); i++ {
			_, err := control.Decode(valid[:i])
			if !errors.Is(err, mungefs.ErrDecode) {
				t.Errorf("Decode %d/%d bytes : want ErrDecode, got %v", i, len(valid), err)
			}
		}
	})

	t.Run("Trailing", func(t *testing.T) {
		_, err := control.Decode(append(valid[:len(valid):len(valid)], 0x00))
		assert.True(t, errors.Is(err, mungefs.ErrDecode))
	})

	t.Run("OperationsCount", func(t *testing.T) {
		for _, b := range [][]byte{
			{0xfe, 0xff, 0xff, 0xff, 0x0f},
			{0xfd, 0xff, 0xff, 0xff, 0x0f, 0x00},
			{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01},
			{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			{0x80},
			{0x14, 0x02, 'a'},
		} {
			_, err := control.Decode(b)
			assert.True(t, errors.Is(err, mungefs.ErrDecode), "Decode %x : want ErrDecode, got %v", b, err)
		}
	})

	t.Run("NegativeBlock", func(t *testing.T) {
		b := []byte{0x03, 0x08, 0x02, 'a', 0x02, 'b', 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0}

		cmd, err := control.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, cmd.Operations)
	})
}
