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

package fault

import (
	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

var _ mungefs.Terminator = KillTerminator{}

// KillTerminator terminates processes with SIGKILL.
type KillTerminator struct{}

// Terminate sends SIGKILL to the process pid.
func (KillTerminator) Terminate(pid int) error {
	err := unix.Kill(pid, unix.SIGKILL)
	if err != nil {
		return errors.Wrapf(err, "kill %d", pid)
	}

	return nil
}
