package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"inkpress/analytics"
	"inkpress/auth"
	"inkpress/cache"
	"inkpress/comments"
	"inkpress/common"
	"inkpress/contact"
	"inkpress/database"
	"inkpress/identity"
	"inkpress/media"
	"inkpress/newsletter"
	"inkpress/posts"
	"inkpress/present"
	"inkpress/settings"
	"inkpress/site"
	"inkpress/store"
	"inkpress/taxonomy"
	"inkpress/users"
)

// app holds everything the router needs.
type app struct {
	cfg       *common.Config
	db        *gorm.DB
	store     *store.Store
	identity  *identity.Service
	media     media.Storage
	localRoot string
	cache     cache.Backend
}

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	common.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config) error {
	db, err := common.ConnectDb(cfg)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}

	a := &app{cfg: cfg, db: db, store: store.New(db)}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	tokens := identity.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if redisClient != nil {
		a.identity = identity.NewService(a.store, tokens, identity.NewRedisBlacklist(redisClient))
		a.cache = cache.NewRedis(redisClient, "inkpress:cache:")
	} else {
		blacklist := identity.NewDBBlacklist(db)
		a.identity = identity.NewService(a.store, tokens, blacklist)
		a.cache = cache.NewMemory()
		go pruneBlacklist(ctx, blacklist)
	}

	switch cfg.MediaDriver {
	case "s3":
		a.media, err = media.NewS3Storage(ctx, media.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			EndpointURL:     cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		var local *media.LocalStorage
		local, err = media.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
		if err == nil {
			a.media, a.localRoot = local, local.Root()
		}
	}
	if err != nil {
		return err
	}

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), common.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if a.cfg.CacheTTL > 0 {
		router.Use(cache.Middleware(a.cache, cache.Options{
			TTL:    a.cfg.CacheTTL,
			Cached: []string{"/api/posts", "/api/categories", "/api/tags", "/api/settings", "/sitemap.xml"},
			Quiet: []string{
				"/api/login", "/api/register", "/api/logout", "/api/token/refresh",
				"/api/posts/*/increment_views",
				"/api/newsletter/*", "/api/contacts", "/api/contacts/*",
			},
		}))
	}
	if a.localRoot != "" {
		router.Static(a.cfg.MediaURL, a.localRoot)
	}

	// Each module gets its own per-IP budget.
	limit := func() gin.HandlerFunc {
		return common.RateLimitByIP(a.cfg.RateLimitPerMinute, time.Minute)
	}
	p := present.New(a.media)

	siteModule := site.NewSiteModule(a.db, a.cfg.Domain)
	siteModule.RegisterRootRoutes(router)

	api := router.Group("/api", auth.Middleware(a.identity, a.store))
	for _, m := range []interface{ RegisterRoutes(*gin.RouterGroup) }{
		siteModule,
		auth.NewAuthModule(a.identity, p, limit()),
		posts.NewPostsModule(a.store, p, a.media, limit()),
		comments.NewCommentsModule(a.store, p),
		taxonomy.NewTaxonomyModule(a.store),
		users.NewUsersModule(a.store, p, a.media),
		newsletter.NewNewsletterModule(a.store, limit()),
		contact.NewContactModule(a.store, limit()),
		settings.NewSettingsModule(a.store, p, a.media),
		analytics.NewAnalyticsModule(a.db, nil),
	} {
		m.RegisterRoutes(api)
	}
	return router
}

// pruneBlacklist drops expired token revocations once an hour.
func pruneBlacklist(ctx context.Context, b *identity.DBBlacklist) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Prune(ctx)
			if err != nil {
				slog.Warn("blacklist prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("blacklist pruned", "removed", n)
			}
		}
	}
}
