package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/pricing"
	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/google"
	"github.com/davidbz/hearth/internal/provider/mistral"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/xai"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}
	if err := container.Invoke(run); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Availability tracker and model router
	if err := container.Provide(tracker.New); err != nil {
		log.Fatalf("Failed to provide tracker: %v", err)
	}
	if err := container.Provide(func(t *tracker.Tracker) *routing.ModelRouter {
		return routing.NewRouter(t)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Providers (nil when the vendor key is absent)
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}
	if err := container.Provide(func(cfg *anthropic.Config) (*anthropic.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return anthropic.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Anthropic provider: %v", err)
	}
	if err := container.Provide(func(cfg *google.Config) (*google.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return google.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Google provider: %v", err)
	}
	if err := container.Provide(func(cfg *xai.Config) (*xai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return xai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide xAI provider: %v", err)
	}
	if err := container.Provide(func(cfg *mistral.Config) (*mistral.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return mistral.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Mistral provider: %v", err)
	}
	if err := container.Provide(echo.NewProvider); err != nil {
		log.Fatalf("Failed to provide echo provider: %v", err)
	}

	// Pricing ledger, synchronizer, cost engine
	if err := container.Provide(func(cfg *config.PricingConfig) (*pricing.Store, error) {
		return pricing.NewStore(cfg.DBPath)
	}); err != nil {
		log.Fatalf("Failed to provide pricing store: %v", err)
	}
	if err := container.Provide(func(store *pricing.Store) domain.PricingRepository {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide pricing repository: %v", err)
	}
	if err := container.Provide(domain.NewCostEngine); err != nil {
		log.Fatalf("Failed to provide cost engine: %v", err)
	}
	if err := container.Provide(newSynchronizer); err != nil {
		log.Fatalf("Failed to provide pricing synchronizer: %v", err)
	}

	// Gateway service
	if err := container.Provide(func(
		router *routing.ModelRouter,
		trk *tracker.Tracker,
		cost *domain.CostEngine,
	) *domain.GatewayService {
		return domain.NewGatewayService(router, trk, cost)
	}); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP layer
	if err := container.Provide(func(t *tracker.Tracker) http.StatusSource { return t }); err != nil {
		log.Fatalf("Failed to provide status source: %v", err)
	}
	if err := container.Provide(func(r *routing.ModelRouter) http.ModelLister { return r }); err != nil {
		log.Fatalf("Failed to provide model lister: %v", err)
	}
	if err := container.Provide(func(s *pricing.Synchronizer) http.PricingSyncer { return s }); err != nil {
		log.Fatalf("Failed to provide pricing syncer: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

func newSynchronizer(
	pricingCfg *config.PricingConfig,
	redisCfg *config.RedisConfig,
	repo domain.PricingRepository,
) *pricing.Synchronizer {
	opts := []pricing.SyncOption{
		pricing.WithScraper(pricing.NewScraper()),
	}
	if pricingCfg.FeedURL != "" {
		opts = append(opts, pricing.WithFeedURL(pricingCfg.FeedURL))
	}
	if redisCfg.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		ttl := time.Duration(pricingCfg.FeedCacheTTLMin) * time.Minute
		opts = append(opts, pricing.WithFeedCache(pricing.NewRedisFeedCache(client, ttl)))
	}
	return pricing.NewSynchronizer(repo, opts...)
}

// registerProviders seeds the tracker with every configured adapter and runs
// the initial availability check and model refresh so routing works from the
// first request.
func registerProviders(
	trk *tracker.Tracker,
	openaiProvider *openai.Provider,
	anthropicProvider *anthropic.Provider,
	googleProvider *google.Provider,
	xaiProvider *xai.Provider,
	mistralProvider *mistral.Provider,
	echoProvider *echo.Provider,
) {
	ctx := context.Background()
	logger := observability.FromContext(ctx)

	if openaiProvider != nil {
		trk.Register(openaiProvider)
	}
	if anthropicProvider != nil {
		trk.Register(anthropicProvider)
	}
	if googleProvider != nil {
		trk.Register(googleProvider)
	}
	if xaiProvider != nil {
		trk.Register(xaiProvider)
	}
	if mistralProvider != nil {
		trk.Register(mistralProvider)
	}
	trk.Register(echoProvider)

	logger.Info("providers registered", zap.Strings("providers", trk.ProviderNames()))

	trk.CheckAll(ctx)
	trk.RefreshAllModels(ctx)
}

func run(
	cfg *config.Config,
	logger *zap.Logger,
	server *http.Server,
	trk *tracker.Tracker,
	syncer *pricing.Synchronizer,
	store *pricing.Store,
) error {
	ctx := context.Background()

	if cfg.Pricing.SyncOnStartup {
		if result, err := syncer.Sync(ctx); err != nil {
			logger.Warn("startup pricing sync failed", zap.Error(err))
		} else {
			logger.Info("startup pricing sync completed",
				zap.Int("updated", len(result.Updated)),
				zap.Int("unchanged", result.Unchanged),
				zap.Int("skipped", result.Skipped),
			)
			if _, err := syncer.BackfillWebSearchPricing(ctx); err != nil {
				logger.Warn("web search backfill failed", zap.Error(err))
			}
		}
	}

	trk.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		trk.Stop()
		_ = store.Close()
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	trk.Stop()
	if err := store.Close(); err != nil {
		logger.Error("failed to close pricing store", zap.Error(err))
	}
	_ = logger.Sync()

	return nil
}
