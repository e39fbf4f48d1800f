package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func loginCommand(opts *options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Example: color.HiBlackString(`  # Prompt for the password on stdin
  mallctl login -u alice

  # Non-interactive
  MALL_PASSWORD=secret mallctl login -u alice`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				password = os.Getenv("MALL_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = line
			}

			res, err := opts.application.Client().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s logged in as %s (id %d)\n",
				color.HiGreenString("✓"), res.User.Username, res.User.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prefer MALL_PASSWORD or the prompt)")
	return cmd
}

func logoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.application.Client().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.application.Client().CheckSession(cmd.Context())
			if err != nil {
				return explain(opts, err)
			}
			if id == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), id)
		},
	}
}

func sessionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Ask the gateway who the stored token belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := opts.application.Client().SessionInfo(cmd.Context())
			if err != nil {
				return explain(opts, err)
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func refreshCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.application.Client()
			token, err := client.Refresh(cmd.Context())
			if err != nil {
				return explain(opts, err)
			}
			return printJSON(cmd.OutOrStdout(), client.Inspector().Describe(token))
		},
	}
}

func tokenCommand(opts *options) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Describe the stored access token",
		Long:  "Describe the stored access token: expiry, time remaining and whether it is due for refresh. The signature is not checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.application.Client()
			token, err := client.Store().AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("no access token stored")
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), client.Inspector().Describe(token))
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the token itself")
	return cmd
}
