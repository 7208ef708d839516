package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/session"
)

func (c *cli) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if email == "" {
				var err error
				if email, err = c.prompt(out, "Email: "); err != nil {
					return err
				}
			}
			password, err := c.prompt(out, "Password: ")
			if err != nil {
				return err
			}
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			id, err := store.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed in as %s (%s)\n", id.Email, id.Role.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) signupCmd() *cobra.Command {
	var req auth.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var err error
			if req.Password, err = c.prompt(out, "Password: "); err != nil {
				return err
			}
			if req.PasswordConfirm, err = c.prompt(out, "Confirm password: "); err != nil {
				return err
			}
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			user, err := store.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !user.EmailConfirmed {
				fmt.Fprintf(out, "Account created for %s. Check your inbox to confirm it.\n", user.Email)
				return nil
			}
			fmt.Fprintf(out, "Account created for %s. You can sign in now.\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&req.TermsAccepted, "accept-terms", false, "accept the terms of use")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			id, ok := snap.Principal()
			if !ok {
				return errors.New("not signed in")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:    %s\nEmail:   %s\nRole:    %s\n", id.Name, id.Email, id.Role.Label())
			if snap.Session != nil {
				fmt.Fprintf(out, "Expires: %s\n", snap.Session.Expiry().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Mail a password recovery link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.ResetPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the address has an account, a recovery link is on its way.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (c *cli) changePasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var req auth.UpdatePasswordRequest
			var err error
			if req.CurrentPassword, err = c.prompt(out, "Current password: "); err != nil {
				return err
			}
			if req.NewPassword, err = c.prompt(out, "New password: "); err != nil {
				return err
			}
			if req.NewPasswordConfirm, err = c.prompt(out, "Confirm new password: "); err != nil {
				return err
			}
			store, err := c.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.UpdatePassword(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintln(out, "Password changed")
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh and print every change until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := c.session(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			unsubscribe := store.Subscribe(func(ev session.Event) {
				line := fmt.Sprintf("%s %s %s", time.Now().Format(time.TimeOnly), ev.Type, ev.Snapshot.Status)
				if ev.Snapshot.Session != nil {
					line += " expires " + ev.Snapshot.Session.Expiry().Format(time.TimeOnly)
				}
				fmt.Fprintln(out, line)
			})
			defer unsubscribe()

			snap := store.Snapshot()
			if !snap.IsAuthenticated() {
				return errors.New("not signed in")
			}
			fmt.Fprintf(out, "watching session for %s, expires %s\n", snap.Identity.Email, snap.Session.Expiry().Format(time.RFC3339))
			<-ctx.Done()
			return nil
		},
	}
}
