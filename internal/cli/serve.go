package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/access"
	"github.com/opustrack/opustrack/internal/config"
	"github.com/opustrack/opustrack/internal/database"
	"github.com/opustrack/opustrack/internal/handler"
	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/router"
	"github.com/opustrack/opustrack/internal/service"
)

type serveOptions struct {
	migrate bool
	audit   bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), so)
		},
	}
	cmd.Flags().BoolVar(&so.migrate, "migrate", false, "apply pending migrations before serving")
	cmd.Flags().BoolVar(&so.audit, "audit", false, "also run the audit consumer in this process")
	return cmd
}

// Server holds everything the HTTP API is built from. Nil Redis and a nil
// publisher are valid: caching, rate limiting and events are then off.
type Server struct {
	Cfg       config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Access    *access.Table
	Events    service.EventPublisher
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// accessTable returns the override file from the config or the built-in table.
func accessTable(cfg config.Config) (*access.Table, error) {
	if cfg.AccessTableFile != "" {
		return access.LoadFile(cfg.AccessTableFile)
	}
	return access.Default(), nil
}

// Echo builds the router with every route registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	// uploads carry their own cap; everything else is small JSON
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", s.Cfg.UploadMaxBytes+1<<20)))

	events := s.Events
	if events == nil {
		events = service.NopPublisher{}
	}

	users := repository.NewUserRepo(s.DB)
	tokens := repository.NewTokenRepo(s.DB)
	roles := repository.NewRoleRepo(s.DB)
	catalog := repository.NewCatalogRepo(s.DB)
	incidents := repository.NewIncidentRepo(s.DB)
	workOrders := repository.NewWorkOrderRepo(s.DB)
	parts := repository.NewPartRepo(s.DB)

	var inv middleware.CacheInvalidator
	if s.Redis != nil {
		inv = middleware.RedisInvalidator{Prefix: s.Cache.Prefix, RDB: s.Redis}
	}

	g := router.Guard{
		Secret:    s.Cfg.JWTSecret,
		Cookie:    s.Cfg.SessionCookie,
		RateLimit: middleware.NewTokenBucket(s.RateLimit, s.Redis),
		Access:    middleware.AccessGuard(s.Access),
	}

	authH := handler.NewAuthHandler(s.Cfg, users, tokens, s.Access)
	catalogH := handler.NewCatalogHandler(catalog, inv)
	roleH := handler.NewRoleHandler(roles, inv)
	userH := handler.NewUserHandler(users, tokens, events, s.Cfg.BcryptCost)
	incidentH := &handler.IncidentHandler{
		Incidents:     incidents,
		Catalog:       catalog,
		Events:        events,
		UploadDir:     s.Cfg.UploadDir,
		MaxUpload:     s.Cfg.UploadMaxBytes,
		PublicBaseURL: s.Cfg.PublicBaseURL,
	}
	workOrderH := handler.NewWorkOrderHandler(workOrders, incidents, events)
	partH := handler.NewPartHandler(parts, events)

	router.RegisterRoutes(e, s.DB)
	router.RegisterAuth(e, authH, g)
	router.RegisterFiles(e, incidentH, g)
	router.RegisterCatalog(e, catalogH, roleH, g, middleware.NewRedisCache(s.Cache, s.Redis))
	router.RegisterIncidents(e, incidentH, workOrderH, g)
	router.RegisterParts(e, partH, g)
	router.RegisterAdmin(e, catalogH, userH, roleH, g)
	return e
}

func runServe(ctx context.Context, so *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	tbl, err := accessTable(cfg)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if so.migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	pub := service.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsQueue)
	defer pub.Close()

	srv := &Server{
		Cfg:       cfg,
		DB:        db,
		Redis:     rdb,
		Access:    tbl,
		Events:    pub,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	}
	e := srv.Echo()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if so.audit {
		ac := &queue.AuditConsumer{URL: cfg.AMQPURL, Queue: cfg.EventsQueue, Dir: cfg.AuditDir}
		go func() {
			if err := ac.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("server: audit consumer stopped: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	log.Printf("server: listening on %s (env=%s)", addr, cfg.Env)
	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Printf("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
