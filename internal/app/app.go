// Package app assembles the kiosk process from its configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Proton-105/omnikiosk/internal/api"
	"github.com/Proton-105/omnikiosk/internal/chain"
	"github.com/Proton-105/omnikiosk/internal/dispense"
	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/health"
	"github.com/Proton-105/omnikiosk/internal/i18n"
	"github.com/Proton-105/omnikiosk/internal/idempotency"
	"github.com/Proton-105/omnikiosk/internal/lifecycle"
	"github.com/Proton-105/omnikiosk/internal/middleware"
	"github.com/Proton-105/omnikiosk/internal/onramp"
	"github.com/Proton-105/omnikiosk/internal/ratelimit"
	"github.com/Proton-105/omnikiosk/internal/relay"
	"github.com/Proton-105/omnikiosk/pkg/config"
	"github.com/Proton-105/omnikiosk/pkg/graceful"
	"github.com/Proton-105/omnikiosk/pkg/metrics"
	"github.com/Proton-105/omnikiosk/pkg/redis"
)

const (
	idempotencyPrefix     = "kiosk:dispense"
	cleanerInterval       = 5 * time.Minute
	shutdownHooksDeadline = 20 * time.Second
)

// FlowConfig converts the kiosk and payment sections into the controller's configuration.
func FlowConfig(cfg *config.Config) (flow.Config, error) {
	chains := make([]flow.Chain, 0, len(cfg.Payment.Chains))
	tokens := make(map[int64]string, len(cfg.Payment.Chains))
	for _, c := range cfg.Payment.Chains {
		chains = append(chains, flow.Chain{ID: c.ID, Name: c.Name})
		if c.TokenAddress != "" {
			tokens[c.ID] = c.TokenAddress
		}
	}

	fee := new(big.Int)
	if raw := cfg.Payment.NativeFeeWei; raw != "" {
		if _, ok := fee.SetString(raw, 10); !ok || fee.Sign() < 0 {
			return flow.Config{}, fmt.Errorf("%w: native_fee_wei %q", flow.ErrInvalidConfig, raw)
		}
	}

	return flow.Config{
		KioskID:            cfg.Kiosk.ID,
		Chains:             chains,
		TokenAddresses:     tokens,
		BridgeAddress:      cfg.Payment.BridgeAddress,
		DestinationChainID: cfg.Payment.DestinationChainID,
		Price:              cfg.Payment.Price,
		TokenSymbol:        cfg.Payment.TokenSymbol,
		DefaultDecimals:    cfg.Payment.DefaultDecimals,
		ReceiptResetAfter:  cfg.Kiosk.ReceiptResetAfter,
		NativeFee:          fee,
	}, nil
}

// Run serves the kiosk until ctx is cancelled, then runs the shutdown hooks.
func Run(ctx context.Context, cfg *config.Config, v *viper.Viper, log *slog.Logger) (err error) {
	shutdown := lifecycle.NewShutdown(log)
	defer func() {
		hooksCtx, cancel := context.WithTimeout(context.Background(), shutdownHooksDeadline)
		defer cancel()
		if hookErr := shutdown.Execute(hooksCtx); hookErr != nil && err == nil {
			err = hookErr
		}
	}()

	checker := health.NewChecker(log)

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return err
		}
		rdb = client.Client
		shutdown.Register("redis", func(context.Context) error { return client.Close() })
		checker.AddCheck("redis", health.NewRedisChecker(client))
		log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	endpoints := make(map[int64]string, len(cfg.Payment.Chains))
	for _, c := range cfg.Payment.Chains {
		endpoints[c.ID] = c.RPCURL
	}
	registry, err := chain.Dial(ctx, endpoints, log)
	if err != nil {
		return fmt.Errorf("dial chains: %w", err)
	}
	shutdown.Register("chains", func(context.Context) error {
		registry.Close()
		return nil
	})
	checker.AddCheck("chains", health.NewChainChecker(registry))

	flowCfg, err := FlowConfig(cfg)
	if err != nil {
		return err
	}

	wallet, err := chain.OpenKeystoreWallet(cfg.Wallet, registry, flowCfg.DefaultChainID(), log)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}
	log.Info("kiosk wallet ready", slog.String("address", wallet.Address().Hex()))

	var (
		store     flow.Store        = flow.NewMemoryStore()
		idemStore idempotency.Store = idempotency.NewMemoryStore()
		primary   ratelimit.Limiter
	)
	if rdb != nil {
		store = flow.NewRedisStore(rdb, cfg.Kiosk.SnapshotTTL, log)
		idemStore = idempotency.NewRedisStore(rdb, idempotencyPrefix, log)
		primary = ratelimit.NewRedisLimiter(rdb, log)

		go idempotency.NewCleaner(rdb, idempotencyPrefix, cleanerInterval, cfg.Dispense.IdempotencyTTL, log).Run(ctx)
	}

	forwarder := relay.NewForwarder(cfg.Webhook, nil, log)
	if !forwarder.Configured() {
		log.Warn("webhook url not configured; dispensing and the webhook relay will fail")
	}

	var announcer dispense.Announcer
	if cfg.Dispense.TelegramToken != "" {
		telegram, err := dispense.NewTelegramAnnouncer(cfg.Dispense.TelegramToken, cfg.Dispense.TelegramChatID, cfg.Kiosk.ID, "")
		if err != nil {
			return err
		}
		announcer = telegram
	}

	notifier := dispense.NewNotifier(
		forwarder,
		idempotency.NewManager(idemStore, log),
		errors.NewCircuitBreaker(errors.DefaultBreakerSettings()),
		announcer,
		cfg.Dispense.IdempotencyTTL,
		log,
	)

	controller, err := flow.NewController(flowCfg, wallet,
		flow.WithLogger(log),
		flow.WithStore(store),
		flow.WithDispenser(notifier),
		flow.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	shutdown.Register("controller", func(context.Context) error {
		controller.Close()
		return nil
	})

	config.Watch(v, log, func(next *config.Config) {
		nextFlow, err := FlowConfig(next)
		if err != nil {
			log.Error("ignoring payment config reload", slog.Any("error", err))
			return
		}
		if err := controller.UpdateConfig(nextFlow); err != nil {
			log.Error("ignoring payment config reload", slog.Any("error", err))
		}
	})

	rules, err := ratelimit.NewRules(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("rate limit rules: %w", err)
	}
	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	_, window := rules.PerClient()
	go ratelimit.NewCleaner(rdb, memoryLimiter, cleanerInterval, window, log).Run(ctx)

	catalog, err := i18n.Load(cfg.Kiosk.Language)
	if err != nil {
		return err
	}

	errHandler := errors.NewHandler(log, cfg.Sentry.Enabled)
	probes := lifecycle.NewProbes(checker, log)
	limiter := ratelimit.NewAdaptiveLimiter(primary, memoryLimiter, log)

	server := api.New(api.Deps{
		Kiosk:     controller,
		Broker:    onramp.NewBroker(cfg.Onramp, nil, log),
		Webhook:   forwarder,
		Probes:    probes,
		Catalog:   catalog,
		Errors:    errHandler,
		RateLimit: middleware.NewRateLimitMiddleware(limiter, rules, errHandler, log).Handle(),
		Log:       log,
	})

	go metrics.NewScreenCollector(store, 0, log).Run(ctx)

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)
	httpServer.OnShutdown(probes.Drain)

	log.Info("kiosk ready",
		slog.String("kiosk_id", cfg.Kiosk.ID),
		slog.String("price", flowCfg.Price),
		slog.Int("chains", len(flowCfg.Chains)),
	)

	return httpServer.ListenAndServe(ctx)
}
