package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tasklane/cmd/internal/auth/session"
)

func newLoginCmd(g *globalFlags) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
		remember      bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in against the auth API.

With --remember the session is written to the durable tier and survives
restarts; otherwise it only lives as long as this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("a password is required (--password or --password-stdin)")
			}

			a, err := g.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			dest, err := a.Login(cmd.Context(), username, password, remember)
			if err != nil {
				var ue *session.UserError
				if errors.As(err, &ue) {
					return errors.New(ue.Message)
				}
				return err
			}

			id := a.Session().Identity()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", displayName(id.DisplayName, id.Username, id.Subject()), a.Session().Status())
			switch dest.Kind {
			case session.DestinationProject:
				fmt.Fprintf(out, "Next: project %s\n", dest.ProjectID)
			default:
				fmt.Fprintf(out, "Next: %s\n", dest.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().BoolVar(&remember, "remember", false, "Keep the session across restarts")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("signed out, but clearing stored credentials failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.Session().Snapshot()
			out := cmd.OutOrStdout()
			if s.Identity == nil {
				fmt.Fprintf(out, "Not signed in (%s)\n", s.Status)
				return nil
			}

			id := s.Identity
			fmt.Fprintf(out, "User:    %s\n", displayName(id.DisplayName, id.Username, id.Subject()))
			fmt.Fprintf(out, "ID:      %s\n", id.Subject())
			if id.Email != "" {
				fmt.Fprintf(out, "Email:   %s\n", id.Email)
			}
			if id.IsAdmin() {
				fmt.Fprintln(out, "Role:    admin")
			}
			fmt.Fprintf(out, "Scope:   %s\n", s.Scope)
			if pid := a.ActiveProject(); pid != "" {
				fmt.Fprintf(out, "Project: %s\n", pid)
			}
			return nil
		},
	}
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return "unknown user"
}
