package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
	"github.com/wh01sJake/mall-cloud/pkg/credstore/drivers/redis"
	"github.com/wh01sJake/mall-cloud/pkg/credstore/drivers/sqlite"
	"github.com/wh01sJake/mall-cloud/pkg/cryptox"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
	"github.com/wh01sJake/mall-cloud/pkg/mallsdk"
	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the CLI's configured dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store  *credstore.Store
	router *mallsdk.Router
	client *mallsdk.Client
}

// New wires the credential backend, the sealer and the gateway client.
// Logs go to logOut.
func New(ctx context.Context, cfg Config, logOut io.Writer) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mallctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  logOut,
		}),
		router: mallsdk.NewRouter("/"),
	}

	backend, err := app.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	sealer, err := cryptox.SealerFromEnv()
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("invalid %s: %w", cryptox.MasterKeyEnv, err)
	}

	opts := []credstore.Option{credstore.WithLogger(app.logger)}
	if sealer != nil {
		opts = append(opts, credstore.WithSealer(sealer))
	}
	app.store = credstore.New(backend, opts...)

	app.client = mallsdk.NewClient(cfg.BaseURL,
		mallsdk.WithStore(app.store),
		mallsdk.WithTimeout(cfg.Timeout),
		mallsdk.WithInspector(jwtx.Inspector{Skew: inspectorWindow(cfg.ExpirySkew), Horizon: inspectorWindow(cfg.RefreshHorizon)}),
		mallsdk.WithNotifier(mallsdk.LogNotifier{Logger: app.logger}),
		mallsdk.WithNavigator(app.router),
		mallsdk.WithLoginRoute(cfg.LoginRoute),
		mallsdk.WithRateLimiter(cfg.RateLimit.NewLimiter()),
		mallsdk.WithLogger(app.logger),
	)

	app.logger.Debug("mallctl initialised",
		"base_url", cfg.BaseURL,
		"backend", cfg.Backend,
		"sealed", sealer != nil,
	)
	return app, nil
}

func (app *Application) openBackend(ctx context.Context) (credstore.Backend, error) {
	switch app.cfg.Backend {
	case BackendMemory:
		return credstore.NewMemory(), nil

	case BackendRedis:
		s, err := redis.Dial(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB, app.cfg.RedisKeyPrefix())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		return s, nil

	case BackendSQLite, "":
		if dir := filepath.Dir(app.cfg.CredentialFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create credential directory: %w", err)
			}
		}
		s, err := sqlite.Open(app.cfg.CredentialFile, app.cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown credential backend %q", app.cfg.Backend)
	}
}

// Client returns the gateway client.
func (app *Application) Client() *mallsdk.Client { return app.client }

// Store returns the credential store.
func (app *Application) Store() *credstore.Store { return app.store }

// Router returns the in-memory router the client redirects through.
func (app *Application) Router() *mallsdk.Router { return app.router }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Config returns the loaded configuration.
func (app *Application) Config() Config { return app.cfg }

// Close releases the credential backend.
func (app *Application) Close() error {
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
		return err
	}
	return nil
}

// inspectorWindow maps a configured window onto jwtx.Inspector, where zero
// means default. LoadConfig already filled in defaults, so a zero here was
// set explicitly and turns the window off.
func inspectorWindow(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
