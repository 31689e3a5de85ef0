// Command sipcard is the client for the dispense backend: it signs in, keeps
// the token pair in an encrypted local store, and talks to the API through
// the authorizing transport.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sipcard/dispense/internal/client/api"
	"github.com/sipcard/dispense/internal/client/securestore"
	"github.com/sipcard/dispense/internal/client/session"
	"github.com/sipcard/dispense/internal/client/transport"
	"github.com/sipcard/dispense/internal/pkg/config"
	"github.com/sipcard/dispense/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs one command line. A session that ended during the command is
// reported whether or not the command itself failed.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	a.expiredHint(stderr)
	return err
}

// app holds the client components. They are built on first use so that
// offline commands such as decode need no configuration.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	session *session.Manager
	api     *api.Client
}

func (a *app) init(ctx context.Context) error {
	if a.session != nil {
		return nil
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Store.Passphrase == "" {
		return errors.New("SIPCARD_STORE_PASSPHRASE is required to open the token store")
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: "sipcard"})

	backend, err := securestore.NewFile(cfg.Store.Path, []byte(cfg.Store.Passphrase))
	if err != nil {
		return err
	}
	policy, err := transport.NewPolicy(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	// The manager refreshes through the client and the client authorizes
	// through the manager, so the transport gets its session last.
	tr := transport.New(nil, nil, policy, log)
	client := api.New(cfg.APIBaseURL, &http.Client{Transport: tr, Timeout: cfg.HTTPTimeout})
	mgr := session.NewManager(session.NewTokenStore(backend), client, session.NewNotifier(), session.Config{
		ExpiryGrace:    cfg.Session.ExpiryGrace,
		RefreshTimeout: cfg.Session.RefreshTimeout,
	}, log)
	tr.Session = mgr

	a.cfg, a.log, a.session, a.api = cfg, log, mgr, client
	return nil
}

// expiredHint tells the user to sign in again when a command ended the session.
func (a *app) expiredHint(w io.Writer) {
	if a.session != nil && a.session.Notifier().Expired() {
		fmt.Fprintln(w, "session expired; run `sipcard login` to sign in again")
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sipcard",
		Short:         "Client for the sipcard dispense backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newDecodeCommand())
	cmd.AddCommand(newLoginCommand(a))
	cmd.AddCommand(newLogoutCommand(a))
	cmd.AddCommand(newRegisterCommand(a))
	cmd.AddCommand(newForgotPasswordCommand(a))
	cmd.AddCommand(newStatusCommand(a))
	cmd.AddCommand(newRefreshCommand(a))
	cmd.AddCommand(newProfileCommand(a))
	cmd.AddCommand(newCardCommand(a))
	cmd.AddCommand(newTapCommand(a))
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
