package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/directory/internal/aggregatelock"
	"github.com/smallbiznis/directory/internal/business"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/cache"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/imagepipeline"
	"github.com/smallbiznis/directory/internal/invalidation"
	"github.com/smallbiznis/directory/internal/listingstate"
	"github.com/smallbiznis/directory/internal/objectstore"
	"github.com/smallbiznis/directory/internal/observability"
	obsmiddleware "github.com/smallbiznis/directory/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	obstracing "github.com/smallbiznis/directory/internal/observability/tracing"
	"github.com/smallbiznis/directory/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	objectstore.Module,
	imagepipeline.Module,
	aggregatelock.Module,
	invalidation.Module,
	business.Module,
	listingstate.Module,
	ratelimit.Module,
	fx.Provide(provideListingState),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func provideListingState(svc *listingstate.Service) ListingStateService {
	return svc
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	businessSvc  domain.Service
	stateSvc     ListingStateService
	store        objectstore.Store
	writeLimiter *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	BusinessSvc  domain.Service
	StateSvc     ListingStateService
	Store        objectstore.Store       `optional:"true"`
	WriteLimiter *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		businessSvc:  p.BusinessSvc,
		stateSvc:     p.StateSvc,
		store:        p.Store,
		writeLimiter: p.WriteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerMediaRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.Principal())

	businesses := api.Group("/businesses")
	businesses.POST("", s.WriteRateLimit(), s.CreateBusiness)
	businesses.GET("/:id", s.GetBusiness)
	businesses.PUT("/:id", s.WriteRateLimit(), s.UpdateBusiness)
	businesses.POST("/:id/deactivate", s.DeactivateBusiness)
	businesses.POST("/:id/reactivate", s.ReactivateBusiness)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminRequired())

	admin.POST("/businesses/:id/approve", s.ApproveBusiness)
}

// registerMediaRoutes serves uploaded images when objects live on local disk.
func (s *Server) registerMediaRoutes() {
	local, ok := s.store.(*objectstore.Local)
	if !ok {
		return
	}
	s.engine.Static(objectstore.LocalMediaPrefix, local.Root())
}
