package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/internal/authclient"
	"github.com/rfpdesk/rfpdesk/internal/session"
)

type options struct {
	server      string
	sessionFile string
	timeout     time.Duration
	verbose     bool
}

// cli carries what every subcommand shares. Store is built lazily so the
// offline commands never touch the network or the session file.
type cli struct {
	opts  options
	in    *bufio.Reader
	store *session.Store
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	c := &cli{in: bufio.NewReader(stdin)}
	root := &cobra.Command{
		Use:           "rfpctl",
		Short:         "Command line client for rfpdesk",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.store != nil {
				c.store.Close()
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.server, "server", envOr("RFPCTL_SERVER", "http://localhost:8080"), "rfpdesk base URL")
	flags.StringVar(&c.opts.sessionFile, "session-file", os.Getenv("RFPCTL_SESSION_FILE"), "where the session is kept (default: user config dir)")
	flags.DurationVar(&c.opts.timeout, "timeout", session.DefaultCallTimeout, "per request timeout")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "log session activity")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.signupCmd(),
		c.whoamiCmd(),
		c.resetPasswordCmd(),
		c.changePasswordCmd(),
		c.watchCmd(),
		c.permissionsCmd(),
		c.checkRouteCmd(),
	)
	return root
}

// session starts the store over the persisted session.
func (c *cli) session(ctx context.Context) (*session.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	path := c.opts.sessionFile
	if path == "" {
		var err error
		if path, err = authclient.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	provider, err := authclient.New(c.opts.server, authclient.NewFileStore(path))
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if c.opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	store := session.NewStore(provider, session.WithLogger(logger), session.WithCallTimeout(c.opts.timeout))
	if err := store.Start(ctx); err != nil {
		logger.Debug("no stored session", slog.Any("error", err))
	}
	c.store = store
	return store, nil
}

// prompt reads one line, writing label to w first.
func (c *cli) prompt(w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
