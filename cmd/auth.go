package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/internal/client"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/session"
)

func newLoginCmd(deps *dependencies) *cobra.Command {
	var idToken string

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a Google ID token for a SentinAI session",
		Long: `Exchanges a Google ID token for a SentinAI session token and stores it in
session.path with owner-only permissions. Pass "-" to read the ID token from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			if idToken == "-" {
				raw, err := io.ReadAll(deps.stdin)
				if err != nil {
					return fmt.Errorf("failed to read ID token from stdin: %w", err)
				}
				idToken = string(raw)
			}

			c, err := client.New(cfg.API(), client.WithLogger(logger))
			if err != nil {
				return err
			}
			auth, err := c.GoogleLogin(ctx, idToken)
			if err != nil {
				return err
			}

			sess := session.New(*auth, deps.now())
			if err := session.Save(cfg.Session().Path, sess); err != nil {
				return err
			}
			logger.Debug("Session stored", zap.String("path", cfg.Session().Path))

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(auth.User.Name, auth.User.Email))
			return nil
		},
	}

	loginCmd.Flags().StringVar(&idToken, "id-token", "", "Google ID token, or - to read it from stdin (required)")
	_ = loginCmd.MarkFlagRequired("id-token")
	return loginCmd
}

func newLogoutCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session and remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			sess, err := session.Load(cfg.Session().Path)
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}

			// The local token is removed even when the server call fails; an
			// expired or revoked token has nothing left to end server side.
			if sess.Check(deps.now()) == nil {
				c, err := client.New(cfg.API(), client.WithSession(sess), client.WithLogger(logger))
				if err != nil {
					return err
				}
				if err := c.Logout(ctx); err != nil {
					logger.Warn("Server-side logout failed", zap.Error(err))
				}
			}

			if err := session.Clear(cfg.Session().Path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the stored session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			c, err := newAPIClient(cfg, true)
			if err != nil {
				return err
			}
			user, err := c.Me(ctx)
			if err != nil {
				return err
			}

			var expires string
			if exp, ok := c.Session().ExpiresAt(); ok {
				expires = exp.Format(time.RFC3339)
			}

			view := struct {
				ID        string `json:"id" yaml:"id"`
				Name      string `json:"name" yaml:"name"`
				Email     string `json:"email" yaml:"email"`
				ExpiresAt string `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
			}{user.ID, user.Name, user.Email, expires}

			return printStructured(cmd, cfg, view, func(w io.Writer) {
				fmt.Fprintf(w, "User:\t%s\n", displayName(user.Name, user.Email))
				fmt.Fprintf(w, "ID:\t%s\n", user.ID)
				if expires != "" {
					fmt.Fprintf(w, "Session expires:\t%s\n", expires)
				}
			})
		},
	}
}

func displayName(name, email string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return email
	case email == "":
		return name
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
