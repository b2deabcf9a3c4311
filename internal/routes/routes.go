package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/config"
	"github.com/congo-pay/fxwallet/internal/engine"
	"github.com/congo-pay/fxwallet/internal/events"
	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/identity"
	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/metrics"
	"github.com/congo-pay/fxwallet/internal/middleware"
	"github.com/congo-pay/fxwallet/internal/notification"
	"github.com/congo-pay/fxwallet/internal/store"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Notifier defaults to logging every message.
	Notifier notification.Notifier

	// Publisher carries user.verified out of the identity service.
	Publisher events.Publisher
	// Subscriber delivers user.verified to the wallet listener.
	Subscriber engine.Subscriber
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Publisher == nil {
		return fmt.Errorf("event publisher is required")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var rateCache fx.Cache = fx.NewMemoryCache()
	if d.Cache != nil {
		rateCache = fx.NewRedisCache(d.Cache)
	}
	resolver := fx.NewResolver(rateCache,
		fx.NewHTTPProvider(d.Cfg.FXRateAPIURL, d.Cfg.FXRateTimeout, d.Cfg.FXRateMaxRedirects),
		fx.ResolverConfig{BaseCurrency: d.Cfg.BaseCurrency, CacheTTL: d.Cfg.FXRateCacheTTL},
		d.Logger, d.Metrics)

	var (
		st           store.Store
		identityRepo identity.Repository
	)
	if d.DB != nil {
		st = store.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory storage")
		st = store.NewMemoryStore()
		identityRepo = identity.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	walletEngine := engine.New(st, resolver, notifier, d.Metrics, d.Logger, engine.Config{
		BaseCurrency:     d.Cfg.BaseCurrency,
		InitialBalance:   d.Cfg.InitialWalletBalance,
		OperationTimeout: d.Cfg.OperationTimeout,
	})
	if d.Subscriber != nil {
		engine.NewListener(walletEngine, d.Logger).Register(d.Subscriber)
	}

	identitySvc := identity.NewService(identityRepo, d.Publisher, notifier, d.Cfg.VerificationCodeTTL, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDOf(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)

	// Public routes
	RegisterIdentityRoutes(api, identity.NewHandler(identitySvc))
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc),
		middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMin), jwtmw)

	// Authenticated routes
	authed := api.Group("", jwtmw)
	authed.Get("/me", func(c *fiber.Ctx) error {
		user, err := identityRepo.FindByID(c.UserContext(), auth.UserID(c))
		if err != nil {
			return identity.MapError(err)
		}
		return c.JSON(fiber.Map{
			"user_id":     user.ID,
			"phone":       user.Phone,
			"verified":    user.Verified,
			"device_id":   user.DeviceID,
			"created_at":  user.CreatedAt,
			"verified_at": user.VerifiedAt,
		})
	})

	// Verified routes; the token was already checked by the group above
	verified := api.Group("", middleware.RequireVerified())
	if d.Cache != nil {
		verified.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(verified, wallet.NewHandler(walletEngine), engine.NewHandler(walletEngine))
	RegisterTransactionRoutes(verified, ledger.NewHandler(st))
	RegisterFXRoutes(verified, fx.NewHandler(resolver))

	return nil
}
