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

// Command botvisor is the operator client for botvisord.
//
// The connection flags are
//
//	-a, --addr <url>	- daemon address, default http://127.0.0.1:3000
//	-k, --key <key>		- panel key (or BOTVISOR_KEY, or prompted)
//	-t, --token <token>	- a token from "botvisor login" (or BOTVISOR_TOKEN)
//
// Subcommands are
//
//	login                 - print a session token
//	list                  - list all bots
//	info <bot>            - show details for a bot
//	deploy <repo>         - clone, install and start a bot
//	start <bot>           - start a bot
//	stop <bot>            - stop a bot
//	restart <bot>         - restart a bot
//	update <bot>          - pull, reinstall and start a bot
//	delete <bot>          - delete a bot
//	logs <bot>            - print (or follow) a bot's log
//	ui                    - full screen console (the default)
//
// A bot may be named by id, or by name when that is unambiguous.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/botvisor/botvisor"
	"github.com/botvisor/botvisor/botvisor/util"
	"github.com/botvisor/botvisor/rest"
)

const defaultAddr = "http://127.0.0.1:3000"

// cli carries what every subcommand needs.
type cli struct {
	v      *viper.Viper
	client *rest.Client
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:          "botvisor",
		Short:        "Operate bots supervised by botvisord",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.out = cmd.OutOrStdout()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runUI(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringP("addr", "a", defaultAddr, "botvisord address")
	pf.StringP("key", "k", "", "panel key")
	pf.StringP("token", "t", "", "session token")
	for _, name := range []string{"addr", "key", "token"} {
		_ = c.v.BindPFlag(name, pf.Lookup(name))
	}
	c.v.SetEnvPrefix("BOTVISOR")
	c.v.AutomaticEnv()

	root.AddCommand(
		c.loginCmd(),
		c.listCmd(),
		c.infoCmd(),
		c.deployCmd(),
		c.controlCmd("start", "Start a bot", (*rest.Client).Start),
		c.controlCmd("stop", "Stop a bot", (*rest.Client).Stop),
		c.controlCmd("restart", "Restart a bot", (*rest.Client).Restart),
		c.controlCmd("update", "Pull, reinstall and start a bot", (*rest.Client).Update),
		c.deleteCmd(),
		c.logsCmd(),
		&cobra.Command{
			Use:   "ui",
			Short: "Full screen console",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.runUI(cmd.Context())
			},
		},
	)
	return root
}

// readKey returns the panel key from flags or the environment, asking
// on the terminal when there is none.
func (c *cli) readKey() (string, error) {
	if key := c.v.GetString("key"); key != "" {
		return key, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no panel key (use --key or BOTVISOR_KEY)")
	}
	fmt.Fprint(os.Stderr, "Panel key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// connect prepares an authenticated client.
func (c *cli) connect(ctx context.Context) (*rest.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	client := rest.NewClient(c.v.GetString("addr"))
	if tok := c.v.GetString("token"); tok != "" {
		client.SetToken(tok)
	} else {
		key, err := c.readKey()
		if err != nil {
			return nil, err
		}
		if _, err := client.Login(ctx, key); err != nil {
			return nil, errors.Wrap(err, "login")
		}
	}
	c.client = client
	return client, nil
}

// resolve maps a bot name to its id.  Ids are passed through.
func (c *cli) resolve(ctx context.Context, key string) (string, error) {
	bots, err := c.client.Bots(ctx)
	if err != nil {
		return "", err
	}
	if b := util.Find(bots, key); b != nil {
		n := 0
		for i := range bots {
			if bots[i].Name == key {
				n++
			}
		}
		if b.ID != key && n > 1 {
			return "", errors.Errorf("%q names %d bots; use an id", key, n)
		}
		return b.ID, nil
	}
	return "", errors.Wrap(botvisor.ErrNoBot, key)
}

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.readKey()
			if err != nil {
				return err
			}
			client := rest.NewClient(c.v.GetString("addr"))
			r, err := client.Login(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, r.Value)
			fmt.Fprintf(os.Stderr, "expires %s\n", r.Expires.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "status"},
		Short:   "List all bots",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			bots, err := client.Bots(cmd.Context())
			if err != nil {
				return err
			}
			util.SortBots(bots)
			printBots(c.out, bots, time.Now())
			return nil
		},
	}
}

func printBots(w io.Writer, bots []botvisor.BotInfo, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLANG\tSTATUS\tUPTIME\tPORT\tRESTARTS")
	for i := range bots {
		b := &bots[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			util.ShortID(b.ID), b.Name, b.Language, b.Status,
			util.Uptime(b, now), b.Port, b.Restarts)
	}
	tw.Flush()
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info BOT",
		Short: "Show details for a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.connect(ctx)
			if err != nil {
				return err
			}
			id, err := c.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			b, err := client.Bot(ctx, id)
			if err != nil {
				return err
			}
			printInfo(c.out, b)
			return nil
		},
	}
}

func printInfo(w io.Writer, b *botvisor.BotInfo) {
	fmt.Fprintf(w, "ID:        %s\n", b.ID)
	fmt.Fprintf(w, "Name:      %s\n", b.Name)
	fmt.Fprintf(w, "Repo:      %s\n", b.RepoURL)
	fmt.Fprintf(w, "Dir:       %s\n", b.Dir)
	fmt.Fprintf(w, "Entry:     %s (%s)\n", b.Entry, b.Language)
	fmt.Fprintf(w, "Port:      %d\n", b.Port)
	fmt.Fprintf(w, "Status:    %s\n", b.Status)
	if b.Pid != 0 {
		fmt.Fprintf(w, "PID:       %d\n", b.Pid)
	}
	fmt.Fprintf(w, "Uptime:    %s\n", b.Uptime)
	fmt.Fprintf(w, "Restarts:  %d\n", b.Restarts)
	fmt.Fprintf(w, "Created:   %s\n", b.Created.Local().Format(time.RFC1123))
}

func (c *cli) deployCmd() *cobra.Command {
	req := &rest.DeployRequest{}
	cmd := &cobra.Command{
		Use:   "deploy REPO",
		Short: "Clone, install and start a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			req.RepoURL = args[0]
			r, err := client.Deploy(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deployed %s (%s) in %s\n", r.Name, r.ID, r.Dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "bot name")
	cmd.Flags().StringVarP(&req.Entry, "entry", "e", "", "entry file")
	cmd.Flags().StringVarP(&req.Language, "lang", "l", "", "language (node or python)")
	return cmd
}

func (c *cli) controlCmd(use, short string, fn func(*rest.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " BOT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.connect(ctx)
			if err != nil {
				return err
			}
			id, err := c.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return fn(client, ctx, id)
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:     "delete BOT",
		Aliases: []string{"rm"},
		Short:   "Delete a stopped bot",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.connect(ctx)
			if err != nil {
				return err
			}
			id, err := c.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return client.Delete(ctx, id, purge)
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove the checkout")
	return cmd
}

func (c *cli) logsCmd() *cobra.Command {
	var follow bool
	var stamps bool
	cmd := &cobra.Command{
		Use:   "logs BOT",
		Short: "Print a bot's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.connect(ctx)
			if err != nil {
				return err
			}
			id, err := c.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return followLogs(ctx, client, id, follow, func(r botvisor.LogRecord) {
				if stamps {
					fmt.Fprintf(c.out, "%s %s\n", r.Time.Format(time.StampMilli), r.Text)
				} else {
					fmt.Fprintln(c.out, r.Text)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().BoolVar(&stamps, "timestamps", false, "show record times")
	return cmd
}

// followLogs prints the buffered log, and with follow keeps polling for
// new records until ctx ends.
func followLogs(ctx context.Context, client *rest.Client, id string, follow bool, emit func(botvisor.LogRecord)) error {
	var last int64
	var wait time.Duration
	for {
		r, err := client.Logs(ctx, id, last, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, rec := range r.Records {
			emit(rec)
		}
		if r.Last != 0 {
			last = r.Last
		}
		if !follow {
			return nil
		}
		wait = time.Minute
		if last == 0 {
			// the server only holds requests that carry a position
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *cli) runUI(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return doUI(client, c.v.GetString("addr"))
}
