package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/backend"
	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/catalog"
	"github.com/Lakyn80/naramkova-moda/internal/checkout"
	"github.com/Lakyn80/naramkova-moda/internal/handlers"
	"github.com/Lakyn80/naramkova-moda/internal/platform/config"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
	"github.com/Lakyn80/naramkova-moda/internal/platform/observability"
	"github.com/Lakyn80/naramkova-moda/internal/platform/secrets"
	"github.com/Lakyn80/naramkova-moda/internal/platform/session"
)

const (
	catalogRefreshInterval = 5 * time.Minute
	shutdownTimeout        = 15 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(strings.TrimSpace(envValues["STOREFRONT_SECRETS_PROJECT_ID"])),
		secrets.WithFallbackFile(fallbackFile(envValues)),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := kvstore.Open(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("failed to open cart store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("cart store close error", zap.Error(err))
		}
	}()
	logger.Info("cart store ready", zap.String("driver", cfg.Store.Driver))

	client, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithAPIToken(cfg.Backend.APIToken),
		backend.WithLogger(logger.Named("backend")),
	)
	if err != nil {
		logger.Fatal("failed to initialise backend client", zap.Error(err))
	}

	catalogCache := catalog.New(client,
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithNotFound(backend.ErrNotFound),
	)
	if err := catalogCache.Refresh(ctx); err != nil {
		logger.Warn("initial catalog refresh failed", zap.Error(err))
	}
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go catalogCache.Run(refreshCtx, catalogRefreshInterval)

	carts := cart.NewRegistry(store, logger.Named("cart"))
	checkoutService := checkout.NewService(
		checkout.Config{Account: cfg.Merchant.IBAN, ShippingFee: cfg.Merchant.ShippingFee},
		client,
		store,
		checkout.WithLogger(logger.Named("checkout")),
		checkout.WithRejectHook(catalogCache.Refresh),
	)

	signingKey := cfg.Session.SigningKey
	if signingKey == "" {
		signingKey, err = session.GenerateKey()
		if err != nil {
			logger.Fatal("failed to generate session key", zap.Error(err))
		}
		logger.Warn("session signing key not configured; using an ephemeral key")
	}
	sessions, err := session.NewManager(signingKey, cfg.Session.TTL,
		session.WithSecureCookie(cfg.Environment != "local"),
		session.WithLogger(logger.Named("session")),
	)
	if err != nil {
		logger.Fatal("failed to initialise sessions", zap.Error(err))
	}

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     defaultString(envValues["STOREFRONT_BUILD_VERSION"], "dev"),
			CommitSHA:   defaultString(envValues["STOREFRONT_BUILD_COMMIT_SHA"], "unknown"),
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		}),
		handlers.WithReadinessCheck("store", func(ctx context.Context) error {
			_, _, err := store.Get(ctx, "readyz")
			return err
		}),
		handlers.WithReadinessCheck("catalog", func(context.Context) error {
			if catalogCache.RefreshedAt().IsZero() {
				return errors.New("catalog not loaded")
			}
			return nil
		}),
	)

	projectID := cfg.Secrets.ProjectID
	if projectID == "" {
		projectID = cfg.Store.Firestore.ProjectID
	}

	router := handlers.NewRouter(
		handlers.WithAllowedOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(projectID),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(catalogCache).Routes),
		handlers.WithSessionMiddlewares(sessions.Middleware),
		handlers.WithCartRoutes(handlers.NewCartHandlers(carts, catalogCache, cfg.Merchant.ShippingFee).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(carts, checkoutService).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("naramkova-moda storefront listening",
			zap.Bool("demo_catalog", client.Demo()),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")
	stopRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["STOREFRONT_ENVIRONMENT"]))
	if environment == "" || environment == "local" {
		return nil
	}
	required := []string{"Session.SigningKey"}
	if strings.TrimSpace(env["STOREFRONT_BACKEND_BASE_URL"]) != "" {
		required = append(required, "Backend.APIToken")
	}
	return required
}

func fallbackFile(env map[string]string) string {
	return defaultString(env["STOREFRONT_SECRET_FALLBACK_FILE"], ".secrets.local")
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
