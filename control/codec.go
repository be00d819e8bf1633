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

package control

import (
	"encoding/binary"

	"github.com/avfs/mungefs"
	"github.com/cockroachdb/errors"
	"github.com/linkedin/goavro/v2"
)

// commandSchema is the Avro schema of a mungefs.Command.
// Fields are encoded in order, without field names.
const commandSchema = `{
	"type": "record",
	"name": "mungefs_ctl",
	"fields": [
		{"name": "operations", "type": {"type": "array", "items": "string"}},
		{"name": "random", "type": "boolean"},
		{"name": "err_no", "type": "int"},
		{"name": "probability", "type": "int"},
		{"name": "regexp", "type": "string"},
		{"name": "kill_caller", "type": "boolean"},
		{"name": "delay_us", "type": "int"},
		{"name": "auto_delay", "type": "boolean"},
		{"name": "corrupt_data", "type": "boolean"},
		{"name": "corrupt_size", "type": "boolean"}
	]
}`

var commandCodec = func() *goavro.Codec {
	codec, err := goavro.NewCodec(commandSchema)
	if err != nil {
		panic("control: invalid command schema: " + err.Error())
	}

	return codec
}()

// Encode returns the binary encoding of cmd.
func Encode(cmd *mungefs.Command) ([]byte, error) {
	ops := make([]interface{}, len(cmd.Operations))
	for i, op := range cmd.Operations {
		ops[i] = op
	}

	native := map[string]interface{}{
		"operations":   ops,
		"random":       cmd.Random,
		"err_no":       cmd.ErrNo,
		"probability":  cmd.Probability,
		"regexp":       cmd.Regexp,
		"kill_caller":  cmd.KillCaller,
		"delay_us":     cmd.DelayUs,
		"auto_delay":   cmd.AutoDelay,
		"corrupt_data": cmd.CorruptData,
		"corrupt_size": cmd.CorruptSize,
	}

	b, err := commandCodec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, errors.Wrap(err, "encode command")
	}

	return b, nil
}

// Decode returns the command encoded in b.
// It returns an error marked with mungefs.ErrDecode if b is not exactly one encoded command.
func Decode(b []byte) (*mungefs.Command, error) {
	if len(b) == 0 {
		return nil, errors.Mark(errors.New("decode command: empty payload"), mungefs.ErrDecode)
	}

	err := checkBlockCount(b)
	if err != nil {
		return nil, err
	}

	native, rest, err := commandCodec.NativeFromBinary(b)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode command"), mungefs.ErrDecode)
	}

	if len(rest) > 0 {
		return nil, errors.Mark(errors.Newf("decode command: %d trailing bytes", len(rest)), mungefs.ErrDecode)
	}

	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, errors.Mark(errors.Newf("decode command: unexpected %T", native), mungefs.ErrDecode)
	}

	d := decoder{fields: fields}
	cmd := &mungefs.Command{
		Operations: d.stringsField("operations"),
		Fault: mungefs.Fault{
			Random:      d.boolField("random"),
			ErrNo:       d.intField("err_no"),
			Probability: d.intField("probability"),
			Regexp:      d.stringField("regexp"),
			KillCaller:  d.boolField("kill_caller"),
			DelayUs:     d.intField("delay_us"),
			AutoDelay:   d.boolField("auto_delay"),
			CorruptData: d.boolField("corrupt_data"),
			CorruptSize: d.boolField("corrupt_size"),
		},
	}

	if d.err != nil {
		return nil, d.err
	}

	return cmd, nil
}

// checkBlockCount checks the item count of the first block of the operations array.
// Each item takes at least one byte, so a count larger than the payload is rejected
// before the decoder allocates room for the items.
func checkBlockCount(b []byte) error {
	count, n := binary.Varint(b)
	if n <= 0 {
		return errors.Mark(errors.New("decode command: invalid operations count"), mungefs.ErrDecode)
	}

	if count > int64(len(b)-n) || count < -int64(len(b)-n) {
		return errors.Mark(errors.Newf("decode command: operations count %d exceeds the %d bytes payload",
			count, len(b)), mungefs.ErrDecode)
	}

	return nil
}

// decoder extracts typed fields from a decoded record, keeping the first error.
type decoder struct {
	fields map[string]interface{}
	err    error
}

func (d *decoder) fail(name string, v interface{}) {
	if d.err == nil {
		d.err = errors.Mark(errors.Newf("decode command: field %s has type %T", name, v), mungefs.ErrDecode)
	}
}

func (d *decoder) boolField(name string) bool {
	v, ok := d.fields[name].(bool)
	if !ok {
		d.fail(name, d.fields[name])
	}

	return v
}

func (d *decoder) intField(name string) int32 {
	v, ok := d.fields[name].(int32)
	if !ok {
		d.fail(name, d.fields[name])
	}

	return v
}

func (d *decoder) stringField(name string) string {
	v, ok := d.fields[name].(string)
	if !ok {
		d.fail(name, d.fields[name])
	}

	return v
}

func (d *decoder) stringsField(name string) []string {
	items, ok := d.fields[name].([]interface{})
	if !ok {
		d.fail(name, d.fields[name])

		return []string{}
	}

	ss := make([]string, 0, len(items))

	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			d.fail(name, item)

			continue
		}

		ss = append(ss, s)
	}

	return ss
}
