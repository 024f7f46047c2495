// Command server runs the termin scheduled-posting gateway.
//
// The gateway serves the scheduling tools over MCP streamable HTTP,
// proxies the upstream OAuth flow, and runs the background publisher
// daemon. Configuration is loaded from a YAML file with TERMIN_*
// environment overrides; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/termin/pkg/ambient"
	"github.com/rhuss/termin/pkg/config"
	"github.com/rhuss/termin/pkg/daemon"
	"github.com/rhuss/termin/pkg/httpmw"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/oauth"
	"github.com/rhuss/termin/pkg/observability"
	"github.com/rhuss/termin/pkg/scheduler"
	"github.com/rhuss/termin/pkg/schedstore"
	"github.com/rhuss/termin/pkg/tokens"
	tokensmemory "github.com/rhuss/termin/pkg/tokens/memory"
	tokenspostgres "github.com/rhuss/termin/pkg/tokens/postgres"
)

const version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create the upstream credential store.
	store, err := newTokenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating token store: %w", err)
	}
	defer closeTokenStore(store)

	// Install the ambient accessors before anything can resolve through
	// them. Both are write-once for the process lifetime.
	clientOpts := []linkedin.Option{}
	if cfg.Provider.APIBaseURL != "" {
		clientOpts = append(clientOpts, linkedin.WithBaseURL(cfg.Provider.APIBaseURL))
	}
	if err := ambient.InstallClientAccessor(ambient.ScopedClient(clientOpts...)); err != nil {
		return fmt.Errorf("installing client accessor: %w", err)
	}
	if err := ambient.InstallStorageAccessor(ambient.CachedStorage(cfg.Storage.Path)); err != nil {
		return fmt.Errorf("installing storage accessor: %w", err)
	}

	// OAuth proxy and session middleware.
	provider, err := oauth.NewProvider(oauth.Config{
		ProviderName:  cfg.Provider.Name,
		AuthorizeURL:  cfg.Provider.AuthorizeURL,
		TokenURL:      cfg.Provider.TokenURL,
		UserInfoURL:   cfg.Provider.UserInfoURL,
		ClientID:      cfg.Provider.ClientID,
		ClientSecret:  cfg.Provider.ClientSecret,
		Scopes:        cfg.Provider.Scopes,
		BaseURL:       cfg.Server.BaseURL,
		SessionSecret: cfg.Session.Secret,
		SessionTTL:    cfg.Session.TTL,
	}, store, slog.Default())
	if err != nil {
		return err
	}

	// MCP server with the scheduling tools.
	server := mcp.NewServer(
		&mcp.Implementation{Name: "termin", Version: version},
		nil,
	)
	scheduler.AddTools(server)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	// Request handles are cached per request owner and released when
	// the request completes.
	requestCache := schedstore.NewDBCache()
	defer requestCache.Close()

	mux := http.NewServeMux()
	mux.Handle("/mcp", observability.MetricsMiddleware(
		provider.Middleware(requestCache)(mcpHandler)))
	provider.Mount(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	// Background publisher daemon.
	if cfg.Daemon.Enabled {
		d := daemon.New(store, slog.Default(),
			daemon.WithPollInterval(cfg.Daemon.PollInterval),
			daemon.WithClientOptions(clientOpts...),
		)
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("starting publisher daemon: %w", err)
		}
		defer d.Stop(context.Background())
	}

	var handler http.Handler = mux
	handler = httpmw.Logging(slog.Default())(handler)
	handler = httpmw.Recovery(slog.Default())(handler)
	handler = httpmw.RequestID(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.Server.Port,
			"base_url", cfg.Server.BaseURL,
			"provider", cfg.Provider.Name,
			"tokens", cfg.Storage.Tokens.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newTokenStore builds the configured upstream credential store.
func newTokenStore(ctx context.Context, cfg *config.Config) (tokens.Store, error) {
	switch cfg.Storage.Tokens.Type {
	case "postgres":
		pg := cfg.Storage.Tokens.Postgres
		store, err := tokenspostgres.New(ctx, tokenspostgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			MigrateOnStart: pg.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("token storage enabled", "type", "postgres")
		return store, nil
	default:
		slog.Info("token storage enabled", "type", "memory")
		return tokensmemory.New(), nil
	}
}

func closeTokenStore(store tokens.Store) {
	if pg, ok := store.(*tokenspostgres.Store); ok {
		pg.Close()
	}
}
