// Package cli is the mallctl command tree.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wh01sJake/mall-cloud/internal/mallctl/app"
	"github.com/wh01sJake/mall-cloud/pkg/mallsdk"
)

type options struct {
	baseURL string
	backend string
	profile string
	env     string
	verbose bool

	application *app.Application
}

// Execute runs the command tree and releases the credential store however
// the command ended.
func Execute(ctx context.Context) error {
	cmd, opts := newRootCMD()
	err := cmd.ExecuteContext(ctx)
	if opts.application != nil {
		if closeErr := opts.application.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// newRootCMD builds the command tree. Configuration comes from the
// environment; flags override it.
func newRootCMD() (*cobra.Command, *options) {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mallctl",
		Short: "Command line client for the mall API gateway",
		Long: fmt.Sprintf(`mallctl talks to the mall API gateway with a persistent, self-refreshing session.

Credentials are stored in SQLite by default (%s), or Redis with
MALL_CREDENTIAL_BACKEND=redis. Set %s to encrypt them at rest.`,
			color.HiCyanString("~/.mall/credentials.db"), color.HiCyanString("MALL_MASTER_KEY")),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       app.BuildVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if opts.env != "" {
				cfg.Env = opts.env
				if opts.baseURL == "" && os.Getenv("MALL_API_BASE_URL") == "" {
					cfg.BaseURL = app.BaseURLFor(cfg.Env)
				}
			}
			if opts.baseURL != "" {
				cfg.BaseURL = opts.baseURL
			}
			if opts.backend != "" {
				cfg.Backend = opts.backend
			}
			if opts.profile != "" {
				cfg.Profile = opts.profile
			}
			if opts.verbose {
				cfg.LogLevel = "debug"
			}

			application, err := app.New(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.application = application
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", "", "gateway base URL (overrides MALL_API_BASE_URL)")
	flags.StringVar(&opts.backend, "backend", "", "credential backend: sqlite, redis or memory")
	flags.StringVar(&opts.profile, "profile", "", "credential profile, e.g. customer or admin")
	flags.StringVar(&opts.env, "env", "", "environment: dev or prod")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		loginCommand(opts),
		logoutCommand(opts),
		whoamiCommand(opts),
		sessionCommand(opts),
		refreshCommand(opts),
		tokenCommand(opts),
		getCommand(opts),
		postCommand(opts),
	)

	return cmd, opts
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// explain turns session-ending failures into a hint to log in again.
func explain(opts *options, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mallsdk.ErrSessionExpired) || errors.Is(err, mallsdk.ErrRefreshFailed) {
		route := opts.application.Router().CurrentPath()
		return fmt.Errorf("%w\nsession ended (redirected to %s); run %s", err, route, color.HiCyanString("mallctl login"))
	}
	return err
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
