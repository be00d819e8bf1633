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

// Package config loads the options of the mungefs daemon from defaults,
// a YAML file, MUNGEFS_ environment variables and command line flags.
package config

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding options.
const EnvPrefix = "MUNGEFS"

// Options are the options of the mungefs daemon.
type Options struct {
	MountPoint   string `mapstructure:"mountpoint"`    // MountPoint is the directory the file system is mounted on.
	Original     string `mapstructure:"original"`      // Original is the directory served by the file system.
	ControlAddr  string `mapstructure:"control-addr"`  // ControlAddr is the address of the control server.
	ControlPorts string `mapstructure:"control-ports"` // ControlPorts is an optional port range "first-last" overriding the port of ControlAddr.
	LogLevel     string `mapstructure:"log-level"`     // LogLevel is the minimum level of logged records.
	LogFormat    string `mapstructure:"log-format"`    // LogFormat is the format of logged records (text or json).
	LogFile      string `mapstructure:"log-file"`      // LogFile is the file records are appended to (default stderr).
	MetricsAddr  string `mapstructure:"metrics-addr"`  // MetricsAddr is the address of the Prometheus endpoint (disabled if empty).
	AllowOther   bool   `mapstructure:"allow-other"`   // AllowOther allows other users to access the file system.
	Debug        bool   `mapstructure:"debug"`         // Debug logs every FUSE request.
	ConfigFile   string `mapstructure:"config"`        // ConfigFile is the configuration file used, if any.
}

// Flags registers the flags of the daemon options to fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "configuration file (default ./mungefs.yaml)")
	fs.String("control-addr", mungefs.DefaultControlAddr, "address of the control server")
	fs.String("control-ports", "", "bind the control server to the first free port of a range first-last")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", logging.FormatText, "log format: text or json")
	fs.String("log-file", "", "append logs to this file instead of stderr")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("allow-other", false, "allow other users to access the file system")
	fs.Bool("debug", false, "log every FUSE request")
}

// Load returns the options built from v, the flags fs and the positional arguments args
// (MOUNTPOINT ORIGINAL).
func Load(v *viper.Viper, fs *pflag.FlagSet, args []string) (*Options, error) {
	v.SetDefault("control-addr", mungefs.DefaultControlAddr)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", logging.FormatText)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mungefs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read configuration")
		}
	}

	if len(args) > 0 {
		v.Set("mountpoint", args[0])
	}

	if len(args) > 1 {
		v.Set("original", args[1])
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}

	opts.ConfigFile = v.ConfigFileUsed()

	return &opts, nil
}

// Validate checks the options.
func (o *Options) Validate() error {
	var err error

	if o.MountPoint == "" {
		err = errors.CombineErrors(err, errors.New("mount point is required"))
	} else if e := checkDir(o.MountPoint); e != nil {
		err = errors.CombineErrors(err, errors.Wrap(e, "mount point"))
	}

	if o.Original == "" {
		err = errors.CombineErrors(err, errors.New("original directory is required"))
	} else if e := checkDir(o.Original); e != nil {
		err = errors.CombineErrors(err, errors.Wrap(e, "original directory"))
	}

	if _, e := logging.New(io.Discard, o.LogLevel, o.LogFormat); e != nil {
		err = errors.CombineErrors(err, e)
	}

	if _, _, e := net.SplitHostPort(o.ControlAddr); e != nil {
		err = errors.CombineErrors(err, errors.Wrapf(e, "control address %q", o.ControlAddr))
	}

	if _, _, e := o.PortRange(); e != nil {
		err = errors.CombineErrors(err, e)
	}

	return err
}

// ControlHost returns the host part of the control address.
func (o *Options) ControlHost() string {
	host, _, err := net.SplitHostPort(o.ControlAddr)
	if err != nil {
		return ""
	}

	return host
}

// PortRange returns the control port range [first, last).
// last is 0 if no range is set.
func (o *Options) PortRange() (first, last int, err error) {
	if o.ControlPorts == "" {
		return 0, 0, nil
	}

	lo, hi, ok := strings.Cut(o.ControlPorts, "-")
	if !ok {
		return 0, 0, errors.Newf("control ports %q: want first-last", o.ControlPorts)
	}

	first, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "control ports %q", o.ControlPorts)
	}

	last, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "control ports %q", o.ControlPorts)
	}

	if first <= 0 || last > 65536 || first >= last {
		return 0, 0, errors.Newf("control ports %q: want 0 < first < last <= 65536", o.ControlPorts)
	}

	return first, last, nil
}

func checkDir(name string) error {
	info, err := os.Stat(name)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return errors.Newf("%s is not a directory", name)
	}

	return nil
}
