package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipcard/dispense/internal/client/api"
	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/pkg/nfcguid"
)

func newDecodeCommand() *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode the GUID stored in NFC tag pages 4-7",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := nfcguid.DecodeHex(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), g)
			if dump {
				raw, err := nfcguid.Encode(g)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), nfcguid.HexDump(raw[:]))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Also print the tag bytes as they would be written back")
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and a password are required")
			}

			tok, err := a.session.SignIn(cmd.Context(), domain.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			if err := a.session.MarkFirstLaunchSeen(cmd.Context()); err != nil {
				a.log.Warn().Err(err).Msg("persist first launch flag")
			}

			name := email
			if tok.DisplayName != nil {
				name = strings.TrimSpace(tok.DisplayName.FirstName + " " + tok.DisplayName.LastName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newRegisterCommand(a *app) *cobra.Command {
	var req api.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a member account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			user, err := a.api.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (8 characters or more)")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newForgotPasswordCommand(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if err := a.api.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "if the account exists, a reset email is on its way")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and token state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "session: %s\n", a.session.SessionState(ctx))
			fmt.Fprintf(out, "tokens:  %s\n", a.session.State(ctx))

			tok, ok, err := a.session.Tokens(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if tok.DisplayName != nil {
				fmt.Fprintf(out, "name:    %s %s\n", tok.DisplayName.FirstName, tok.DisplayName.LastName)
			}
			fmt.Fprintf(out, "access:  expires %s\n", time.Unix(tok.AccessTokenExpiresAt, 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "refresh: expires %s\n", time.Unix(tok.RefreshTokenExpiresAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new pair now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			tok, err := a.session.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed; access token valid until %s\n",
				time.Unix(tok.AccessTokenExpiresAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newProfileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			user, err := a.api.Profile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
}

// cardGUID accepts either a canonical GUID or the raw tag hex it is stored as.
func cardGUID(arg string) (nfcguid.Guid, error) {
	if g, err := nfcguid.Parse(arg); err == nil {
		return g, nil
	}
	return nfcguid.DecodeHex(arg)
}

func newCardCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card <guid|tag-hex>",
		Short: "Show a card's balance and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := cardGUID(args[0])
			if err != nil {
				return err
			}
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			card, err := a.api.Card(cmd.Context(), g.String())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), card)
		},
	}

	cmd.AddCommand(newCardCreateCommand(a))
	return cmd
}

func newCardCreateCommand(a *app) *cobra.Command {
	var (
		card    string
		owner   string
		balance int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a card (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := cardGUID(card)
			if err != nil {
				return err
			}
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			created, err := a.api.CreateCard(cmd.Context(), api.CreateCardRequest{
				GUID:         g.String(),
				OwnerID:      owner,
				BalanceCents: balance,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}

	cmd.Flags().StringVar(&card, "card", "", "Card GUID or tag hex")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user ID")
	cmd.Flags().Int64Var(&balance, "balance", 0, "Initial balance in cents")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTapCommand(a *app) *cobra.Command {
	var (
		card      string
		dispenser string
		volume    int
		at        string
	)

	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Report a dispense for charging",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := cardGUID(card)
			if err != nil {
				return err
			}
			ts := time.Now().UTC()
			if at != "" {
				if ts, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			if err := a.init(cmd.Context()); err != nil {
				return err
			}

			accepted, err := a.api.Tap(cmd.Context(), api.TapRequest{
				CardGUID:    g.String(),
				DispenserID: dispenser,
				VolumeML:    volume,
				Timestamp:   ts,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tap %s queued for card %s\n", accepted.ID, accepted.CardGUID)
			return nil
		},
	}

	cmd.Flags().StringVar(&card, "card", "", "Card GUID or tag hex")
	cmd.Flags().StringVar(&dispenser, "dispenser", "", "Dispenser ID")
	cmd.Flags().IntVar(&volume, "volume", 0, "Dispensed volume in ml")
	cmd.Flags().StringVar(&at, "at", "", "Tap time (RFC 3339), defaults to now")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("dispenser")
	_ = cmd.MarkFlagRequired("volume")
	return cmd
}
