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

// Command mungefsctl configures the faults injected by a running mungefs.
//
// Usage:
//
//	mungefsctl --operations read,write --err_no 5 [flags]
package main

import (
	"fmt"
	"os"

	"github.com/avfs/mungefs/internal/cli"
)

func main() {
	if err := cli.NewCtlCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mungefsctl:", err)
		os.Exit(1)
	}
}
