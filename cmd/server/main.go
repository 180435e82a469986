package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	echoapi "github.com/lucidauth/lucid/api/echo"
	"github.com/lucidauth/lucid/cache"
	cacheredis "github.com/lucidauth/lucid/cache/redis"
	"github.com/lucidauth/lucid/config"
	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/keys"
	"github.com/lucidauth/lucid/internal/metrics"
	"github.com/lucidauth/lucid/internal/oidcflow"
	applog "github.com/lucidauth/lucid/log"
	"github.com/lucidauth/lucid/memory"
	"github.com/lucidauth/lucid/mongodb"
	"github.com/lucidauth/lucid/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	applog.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("issuer", cfg.Issuer).Str("http_port", cfg.HTTPPort).Msg("starting identity provider")

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rotator, err := keys.NewRotator(cfg.RetiredKeysKept)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate signing keys")
	}
	rotator.StartRotation(ctx, cfg.KeyRotationPeriod())

	// Stores: Redis when configured, otherwise in-memory. Sessions and
	// flows are the two stores that must be shared for multi-instance
	// deployments; everything else can stay local.
	var (
		sessionStore domain.SessionStore
		flowStore    oidcflow.FlowStore
	)
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		sessionStore = cacheredis.NewSessionStore(rdb, "lucid")
		flowStore = cacheredis.NewFlowStore(rdb, "lucid")
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis session and flow stores")
	} else {
		sessionStore = cache.NewMemorySessionStore()
		flowStore = cache.NewMemoryFlowStore()
	}

	var (
		clientRepo  domain.ClientRepository
		userRepo    domain.UserRepository
		consentRepo domain.ConsentStore
	)
	if cfg.MongoURI != "" {
		if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize MongoDB connection")
		}
		defer func() {
			if err := mongodb.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to close MongoDB client")
			}
		}()
		db := mongodb.GetDB()

		clientRepo = mongodb.NewClientRepository(db)
		users, err := mongodb.NewUserRepository(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize user repository")
		}
		userRepo = users
		consents, err := mongodb.NewConsentRepository(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize consent repository")
		}
		consentRepo = consents
	} else {
		log.Warn().Msg("no MONGO_URI configured, using in-memory stores with demo data")
		hasher := services.NewBcryptHasher()
		clientRepo, userRepo = seedDemoData(hasher)
		consentRepo = cache.NewMemoryConsentStore()
	}

	scopeRepo := memory.NewScopeRepository(domain.StandardScopes()...)

	clientService := services.NewClientService(clientRepo)
	scopeService := services.NewScopeService(scopeRepo)
	profile := services.NewScopeClaimsProfile(userRepo, scopeService)
	userService := services.NewUserService(userRepo, profile, services.NewBcryptHasher())
	sessionService := services.NewSessionService(sessionStore, cfg.SessionTTL())
	consentService := services.NewConsentService(consentRepo,
		cache.NewSessionGrantCache(cfg.SessionTTL()), cfg.ConsentGrantTTL())
	tokenService := services.NewTokenService(cache.NewMemoryTokenStore(), rotator, cfg.Issuer,
		cfg.IDTokenTTL(), cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	codeStore := cache.NewMemoryCodeStore()

	authorizeService := services.NewAuthorizeService(
		clientService, scopeService, sessionService, consentService,
		userService, tokenService, codeStore, flowStore,
		services.AuthorizePolicy{
			FlowTTL:                cfg.FlowTTL(),
			AuthCodeTTL:            cfg.AuthCodeTTL(),
			MaxLoginAttempts:       cfg.MaxLoginAttempts,
			AllowEmptyScopeDefault: cfg.AllowEmptyScopeDefault,
		})
	oauthService := services.NewOAuthService(clientService, scopeService, userService,
		tokenService, codeStore, cfg.AccessTokenTTL())
	logoutService := services.NewLogoutService(sessionService, consentService, clientService,
		tokenService, services.LogoutChannel(cfg.LogoutChannel), cfg.BackchannelTimeout())
	discoveryService := services.NewDiscoveryService(cfg.Issuer, scopeService)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	api := echoapi.NewIdentityAPI(authorizeService, oauthService, tokenService,
		logoutService, discoveryService, rotator)
	api.RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

// seedDemoData builds the in-memory registry used when no database is
// configured. Useful for local development only.
func seedDemoData(hasher services.PasswordHasher) (domain.ClientRepository, domain.UserRepository) {
	alicePassword, err := hasher.Hash("alice")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash demo password")
	}

	clients := memory.NewClientRepository(
		&domain.Client{
			ID:     "mvc",
			Name:   "MVC Client",
			Secret: "secret",
			GrantTypes: []domain.GrantType{
				domain.GrantTypeHybrid,
				domain.GrantTypeAuthorizationCode,
				domain.GrantTypeRefreshToken,
			},
			RedirectURIs:           []string{"http://localhost:5002/signin-oidc"},
			PostLogoutRedirectURIs: []string{"http://localhost:5002/signout-callback-oidc"},
			AllowedScopes:          []string{"openid", "profile"},
			RequireConsent:         true,
		},
	)
	users := memory.NewUserRepository(
		&domain.User{
			ID:           "1",
			Username:     "alice",
			PasswordHash: alicePassword,
			Claims: []domain.Claim{
				{Type: "name", Value: "Alice"},
				{Type: "website", Value: "https://alice.example.com"},
			},
		},
	)
	return clients, users
}
