package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/digibank/digibank/internal/access"
	"github.com/digibank/digibank/internal/account"
	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/config"
	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/ledger"
	"github.com/digibank/digibank/internal/middleware"
	"github.com/digibank/digibank/internal/notification"
	"github.com/digibank/digibank/internal/payments"
	"github.com/digibank/digibank/internal/throttle"
	"github.com/digibank/digibank/internal/user"
)

const (
	userLoginPrefix    = "login:users:"
	accountLoginPrefix = "login:accounts:"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory backends are used.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(middleware.Recover(d.Logger))
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	svc, err := buildServices(d)
	if err != nil {
		return err
	}

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bootstrapAdmin(bootCtx, d.Cfg, svc.users, svc.accounts, d.Logger); err != nil {
		return err
	}

	userLogin, err := loginHandler(d, svc, userLoginPrefix, "users", svc.users, "user_id")
	if err != nil {
		return err
	}
	accountLogin, err := loginHandler(d, svc, accountLoginPrefix, "accounts", svc.accounts, "account_id")
	if err != nil {
		return err
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginIPLimitPerMinute, d.Cfg.StoreTimeout, d.Logger)
	// Idempotency runs after JWTAuth so stored responses are keyed by caller.
	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Cfg.StoreTimeout, d.Logger)
	}
	authenticated := chain(middleware.JWTAuth(svc.tokens), idem)
	operators := chain(middleware.JWTAuth(svc.tokens, auth.RoleUser), idem)

	RegisterAuthRoutes(api, userLogin, rateLimiter)
	RegisterUserRoutes(api, user.NewHandler(svc.users), operators)
	RegisterAccountRoutes(api, AccountHandlers{
		Accounts: account.NewHandler(svc.accounts),
		Login:    accountLogin,
		Payments: payments.NewHandler(svc.payments),
	}, rateLimiter, authenticated, operators)

	app.Use(middleware.NotFound)
	return nil
}

// chain drops nil handlers so optional middleware can be listed inline.
func chain(handlers ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// with copies a middleware chain and appends the route handler.
func with(middlewares []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, h)
}

type services struct {
	hasher   credential.Hasher
	tokens   *auth.Issuer
	users    *user.Service
	accounts *account.Service
	payments *payments.Service
}

func buildServices(d Deps) (*services, error) {
	numbers, err := account.NewSnowflakeNumbers(d.Cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	var (
		ledgerBackend ledger.Ledger
		userRepo      user.Repository
		accountRepo   account.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB, ledger.WithTimeout(d.Cfg.StoreTimeout))
		userRepo = user.NewPostgresRepository(d.DB, d.Cfg.StoreTimeout)
		accountRepo = account.NewPostgresRepository(d.DB, d.Cfg.StoreTimeout)
	} else {
		ledgerBackend = ledger.NewInMemory()
		userRepo = user.NewMemoryRepository()
		accountRepo = account.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	hasher := credential.NewBcryptHasher(d.Cfg.BcryptCost)
	accounts := account.NewService(accountRepo, ledgerBackend, numbers, hasher, d.Cfg.MinimumOpeningBalance, d.Logger)
	return &services{
		hasher:   hasher,
		tokens:   auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL),
		users:    user.NewService(userRepo, hasher, d.Logger),
		accounts: accounts,
		payments: payments.NewService(ledgerBackend, accounts, notifier, d.Logger),
	}, nil
}

// loginHandler builds one login flow with its own throttle key space.
func loginHandler(d Deps, svc *services, prefix, flow string, source credential.DigestSource, idField string) (*access.Handler, error) {
	policy := throttle.Policy{
		MaxAttempts: d.Cfg.LoginMaxAttempts,
		Lockout:     d.Cfg.LoginLockout,
		KeyPrefix:   prefix,
		Timeout:     d.Cfg.StoreTimeout,
	}
	var th throttle.Throttle
	if d.Cache != nil {
		th = throttle.NewRedis(d.Cache, policy)
	} else {
		th = throttle.NewInMemory(policy)
	}

	verifier, err := credential.NewVerifier(source, svc.hasher)
	if err != nil {
		return nil, fmt.Errorf("build %s verifier: %w", flow, err)
	}
	coord := access.NewCoordinator(flow, th, verifier, svc.tokens, d.Logger)
	return access.NewHandler(coord, idField), nil
}
