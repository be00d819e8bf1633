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

// Package cli implements the mungefs and mungefsctl commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/avfs/mungefs/control"
	"github.com/avfs/mungefs/fault"
	"github.com/avfs/mungefs/fusefs"
	"github.com/avfs/mungefs/internal/config"
	"github.com/avfs/mungefs/internal/logging"
	"github.com/avfs/mungefs/metrics"
	"github.com/cockroachdb/errors"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// NewDaemonCommand returns the mungefs command mounting the file system.
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mungefs [flags] MOUNTPOINT ORIGINAL",
		Short: "Mount ORIGINAL on MOUNTPOINT and inject the faults configured by mungefsctl",
		Long: "mungefs mounts a pass-through file system of the directory ORIGINAL on MOUNTPOINT.\n" +
			"Before each operation it consults a table of faults that mungefsctl updates at runtime.",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(viper.New(), cmd.Flags(), args)
			if err != nil {
				return err
			}

			if err = opts.Validate(); err != nil {
				_ = cmd.Usage()

				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()

			return RunDaemon(ctx, opts, cmd.ErrOrStderr())
		},
	}

	config.Flags(cmd.Flags())

	return cmd
}

// RunDaemon mounts the file system and serves the control channel until ctx is done
// or the file system is unmounted.
func RunDaemon(ctx context.Context, opts *config.Options, stderr io.Writer) error {
	logOut := stderr

	if opts.LogFile != "" {
		f, err := logging.OpenFile(opts.LogFile)
		if err != nil {
			return err
		}

		defer f.Close()

		logOut = f
	}

	logger, err := logging.New(logOut, opts.LogLevel, opts.LogFormat)
	if err != nil {
		return err
	}

	table := fault.NewTable()
	evalOpts := []fault.Option{fault.WithLogger(logger)}

	var metricsSrv *http.Server

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()

		col, err := metrics.NewCollector(reg, table)
		if err != nil {
			return errors.Wrap(err, "register metrics")
		}

		evalOpts = append(evalOpts, fault.WithObserver(col))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsSrv = &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	fsys, err := fusefs.New(opts.Original, fault.NewEvaluator(table, evalOpts...),
		fusefs.WithLogger(logger),
		fusefs.WithAllowOther(opts.AllowOther),
		fusefs.WithDebug(opts.Debug))
	if err != nil {
		return err
	}

	srvOpts := []control.Option{control.WithAddr(opts.ControlAddr), control.WithLogger(logger)}

	first, last, err := opts.PortRange()
	if err != nil {
		return err
	}

	if last > 0 {
		srvOpts = append(srvOpts, control.WithPortRange(opts.ControlHost(), first, last))
	}

	srv := control.NewServer(table, srvOpts...)
	if err = srv.Start(ctx); err != nil {
		return errors.Wrap(err, "start control server")
	}

	server, err := fsys.Mount(opts.MountPoint)
	if err != nil {
		return errors.CombineErrors(err, srv.Stop())
	}

	err = serve(ctx, server, metricsSrv, logger)

	return errors.CombineErrors(err, srv.Stop())
}

// serve waits for the file system to be unmounted, unmounting it when ctx is done.
func serve(ctx context.Context, server *fuse.Server, metricsSrv *http.Server, logger *slog.Logger) error {
	unmounted := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Wait()
		close(unmounted)
		logger.Info("unmounted")

		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("unmounting", slog.Any("reason", context.Cause(gctx)))

			return server.Unmount()
		case <-unmounted:
			return nil
		}
	})

	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsSrv.Addr)

			err := metricsSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}

			return errors.Wrap(err, "serve metrics")
		})

		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-unmounted:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
