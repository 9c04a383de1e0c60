// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command botvisord is the bot supervisor daemon.  It serves the
// control API and the real-time websocket channel, and supervises the
// bots deployed through them.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/botvisor/botvisor"
	"github.com/botvisor/botvisor/rest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:          "botvisord",
		Short:        "Supervise deployed bots",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := LoadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err := NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (default ./botvisord.yaml)")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	f.StringP("listen", "a", "", "listen address (default :$PORT)")
	f.StringP("apps-dir", "d", "apps", "directory holding bot checkouts")
	f.String("log-level", "info", "log level")
	f.String("log-file", "", "also log to this file, with rotation")
	f.Int("max-conns", 0, "limit on concurrent connections (0 = none)")
	_ = v.BindPFlag("listen", f.Lookup("listen"))
	_ = v.BindPFlag("apps_dir", f.Lookup("apps-dir"))
	_ = v.BindPFlag("log.level", f.Lookup("log-level"))
	_ = v.BindPFlag("log.file", f.Lookup("log-file"))
	_ = v.BindPFlag("max_conns", f.Lookup("max-conns"))

	cmd.AddCommand(newHashKeyCmd())
	return cmd
}

// newHashKeyCmd prints a bcrypt hash of a panel key, suitable for use
// as panel_key so that the key itself need not be stored.
func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print a bcrypt hash of a panel key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(h))
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *Config, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := os.MkdirAll(cfg.AppsDir, 0755); err != nil {
		return err
	}

	reg := botvisor.NewRegistry()
	sup := botvisor.NewSupervisor(reg, botvisor.NewBroadcaster(0), botvisor.ExecSpawner{}, cfg.Options())
	sup.SetLogger(logger)
	gate := botvisor.NewTokenGate(cfg.PanelKey, cfg.TokenTTL)
	status := botvisor.NewStatusEmitter(reg, cfg.StatusInterval)
	h := rest.NewHandler(sup, gate, status)
	h.SetLogger(logger)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go status.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	logger.WithFields(logrus.Fields{
		"addr": ln.Addr().String(),
		"apps": cfg.AppsDir,
	}).Info("botvisord listening")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			sup.Shutdown(context.Background())
			return err
		}
	}

	// Bots first, so that their exits are still visible to observers.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer cancel()
	if err := sup.Shutdown(sctx); err != nil {
		logger.WithError(err).Warn("bots did not all stop in time")
	}
	if err := srv.Shutdown(sctx); err != nil {
		srv.Close()
	}
	return nil
}
