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

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/broker"
	"github.com/avfs/mungefs/control"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// AllOps is the operation list selecting every operation.
const AllOps = "all"

// ctlOptions are the options of the mungefsctl command.
type ctlOptions struct {
	operations string
	address    string
	timeout    time.Duration
	clear      bool
	clearAll   bool
	mungefs.Fault
}

// NewCtlCommand returns the mungefsctl command sending one request to a mungefs control server.
func NewCtlCommand() *cobra.Command {
	var o ctlOptions

	cmd := &cobra.Command{
		Use:   "mungefsctl --operations OPS [flags]",
		Short: "Configure the faults injected by a running mungefs",
		Long: "mungefsctl sends one command to the control server of a running mungefs.\n" +
			"The fault described by the flags replaces the fault of each operation of --operations.\n" +
			"Valid operations: " + strings.Join(mungefs.OpNames(), ", ") + ", or " + AllOps + ".",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if !o.clearAll && strings.TrimSpace(o.operations) == "" {
				return errors.New("--operations is required")
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			return runCtl(cmd.OutOrStdout(), cmd.ErrOrStderr(), &o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.operations, "operations", "", "comma or space separated operations to configure, or "+AllOps)
	f.BoolVar(&o.Random, "random", false, "return a random error number when --err_no is 0")
	f.Int32Var(&o.ErrNo, "err_no", 0, "error number to return")
	f.Int32Var(&o.Probability, "probability", 0, "inject when a draw in [1, 100000] is at most this value (0 = always)")
	f.StringVar(&o.Regexp, "regexp", "", "inject only when this regular expression matches the whole path")
	f.BoolVar(&o.KillCaller, "kill_caller", false, "kill the calling process")
	f.Int32Var(&o.DelayUs, "delay_us", 0, "delay the operation by this many microseconds")
	f.BoolVar(&o.AutoDelay, "auto_delay", false, "accepted for compatibility, no effect")
	f.BoolVar(&o.CorruptData, "corrupt_data", false, "replace the data of read and write with filler bytes")
	f.BoolVar(&o.CorruptSize, "corrupt_size", false, "halve the size returned by getattr and fgetattr")
	f.StringVar(&o.address, "address", mungefs.DefaultControlTarget, "address of the control server")
	f.BoolVar(&o.clear, "clear", false, "clear the faults of --operations")
	f.BoolVar(&o.clearAll, "clear_all", false, "clear all faults")
	f.DurationVar(&o.timeout, "timeout", broker.DefaultTimeout, "timeout of send and receive")

	return cmd
}

func runCtl(stdout, stderr io.Writer, o *ctlOptions) error {
	client := control.NewClient(o.address, control.WithTimeout(o.timeout))

	var (
		reply *control.Reply
		err   error
	)

	switch {
	case o.clearAll:
		fmt.Fprintln(stdout, "clear all faults")

		reply, err = client.ClearAll()
	case o.clear:
		ops := ParseOperations(o.operations, stderr)
		fmt.Fprintf(stdout, "clear faults of %s\n", strings.Join(ops, ","))

		reply, err = client.Clear(ops...)
	default:
		cmd := &mungefs.Command{Operations: ParseOperations(o.operations, stderr), Fault: o.Fault}
		PrintCommand(stdout, cmd)

		reply, err = client.Send(cmd)
	}

	if err != nil {
		return errors.Wrapf(err, "mungefs at %s", o.address)
	}

	if !reply.OK {
		return reply.Err()
	}

	fmt.Fprintln(stdout, mungefs.AckMessage)

	return nil
}

// ParseOperations returns the operations of a comma or space separated list.
// "all" is replaced by every operation. Unknown names are kept and reported to w,
// the control server ignores them.
func ParseOperations(list string, w io.Writer) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	ops := make([]string, 0, len(fields))

	for _, name := range fields {
		if name == AllOps {
			ops = append(ops, mungefs.OpNames()...)

			continue
		}

		if _, ok := mungefs.ParseOp(name); !ok {
			fmt.Fprintf(w, "warning: unknown operation %q ignored by mungefs\n", name)
		}

		ops = append(ops, name)
	}

	return ops
}

// PrintCommand prints the fields of cmd, one per line.
func PrintCommand(w io.Writer, cmd *mungefs.Command) {
	fmt.Fprintf(w, "operations:   %s\n", strings.Join(cmd.Operations, ","))
	fmt.Fprintf(w, "random:       %t\n", cmd.Random)
	fmt.Fprintf(w, "err_no:       %d\n", cmd.ErrNo)
	fmt.Fprintf(w, "probability:  %d\n", cmd.Probability)
	fmt.Fprintf(w, "regexp:       %s\n", cmd.Regexp)
	fmt.Fprintf(w, "kill_caller:  %t\n", cmd.KillCaller)
	fmt.Fprintf(w, "delay_us:     %d\n", cmd.DelayUs)
	fmt.Fprintf(w, "auto_delay:   %t\n", cmd.AutoDelay)
	fmt.Fprintf(w, "corrupt_data: %t\n", cmd.CorruptData)
	fmt.Fprintf(w, "corrupt_size: %t\n", cmd.CorruptSize)
}
