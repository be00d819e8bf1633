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

//go:build mage

// mungefs is the build script for mungefs.
// Run "mage -d mage -w . -l" from the repository root to list the targets.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	goCmd       = "go"
	golangCiCmd = "golangci-lint"
	binDir      = "bin"
	coverDir    = "coverage"
	coverFile   = "coverage.txt"
	raceCount   = 5
)

// commands are the packages of the binaries built by Build.
var commands = []string{"mungefs", "mungefsctl"}

var coverPath = filepath.Join(coverDir, coverFile)

// Env returns the go environment variables.
func Env() error {
	if err := sh.RunV(goCmd, "version"); err != nil {
		return err
	}

	return sh.RunV(goCmd, "env")
}

// Build builds the mungefs and mungefsctl binaries in the bin directory.
func Build() error {
	for _, name := range commands {
		err := sh.RunV(goCmd, "build", "-v", "-o", filepath.Join(binDir, name), "./cmd/"+name)
		if err != nil {
			return err
		}
	}

	return nil
}

// Install installs the mungefs and mungefsctl binaries in $GOPATH/bin.
func Install() error {
	for _, name := range commands {
		if err := sh.RunV(goCmd, "install", "./cmd/"+name); err != nil {
			return err
		}
	}

	return nil
}

// Lint runs golangci-lint.
func Lint() error {
	if !isExecutable(golangCiCmd) {
		return fmt.Errorf("can't find %s in the current path", golangCiCmd)
	}

	return sh.RunV(golangCiCmd, "run", "-v")
}

// CoverInit resets the coverage file.
func CoverInit() error {
	if err := os.MkdirAll(coverDir, 0o777); err != nil {
		return err
	}

	return os.WriteFile(coverPath, nil, 0o666)
}

// Cover opens a web browser with the latest coverage file.
func Cover() error {
	if isCI() {
		return nil
	}

	return sh.RunV(goCmd, "tool", "cover", "-html="+coverPath)
}

// Test runs tests with coverage.
// Mount tests of the fusefs package are skipped when /dev/fuse is not available.
func Test() error {
	mg.Deps(CoverInit)

	err := sh.RunV(goCmd, "test",
		"-race", "-v",
		"-covermode=atomic",
		"-coverprofile="+coverPath,
		"./...")
	if err != nil {
		return err
	}

	return Cover()
}

// Race runs the concurrent tests of the fault table and the broker several times.
func Race() error {
	return sh.RunV(goCmd, "test",
		"-run=Concurrent|RequestReply|Alternation",
		"-race",
		"-count="+strconv.Itoa(raceCount),
		"./fault/...", "./broker/...")
}

// isExecutable checks if name is an executable in the current path.
func isExecutable(name string) bool {
	_, err := exec.LookPath(name)

	return err == nil
}

// isCI tests if we run in a CI environment.
func isCI() bool {
	return os.Getenv("CI") != ""
}
