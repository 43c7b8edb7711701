package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	"github.com/smallbiznis/comanda/internal/authorization"
	closingdomain "github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/observability"
	obslogger "github.com/smallbiznis/comanda/internal/observability/logger"
	obstracing "github.com/smallbiznis/comanda/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/orderevents"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine     *gin.Engine
	log        *zap.Logger
	settings   config.SettingsProvider
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	orderSvc   orderdomain.Service
	tableSvc   tabledomain.Service
	closingSvc closingdomain.Service
	hub        *orderevents.Hub
	guard      *ratelimit.Guard
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Settings   config.SettingsProvider
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	OrderSvc   orderdomain.Service
	TableSvc   tabledomain.Service
	ClosingSvc closingdomain.Service
	Hub        *orderevents.Hub
	Guard      *ratelimit.Guard `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http"),
		settings:   p.Settings,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		orderSvc:   p.OrderSvc,
		tableSvc:   p.TableSvc,
		closingSvc: p.ClosingSvc,
		hub:        p.Hub,
		guard:      p.Guard,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", ActorRequired())

	// -------- Orders --------
	api.POST("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCreate), s.WriteRateLimit(), s.CreateOrder)
	api.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.ListOrders)
	api.GET("/orders/:id", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.GetOrder)
	api.POST("/orders/:id/transitions", s.authorize(authorization.ObjectOrder, authorization.ActionOrderTransition), s.WriteRateLimit(), s.ChangeOrderState)
	api.PUT("/orders/:id/lines", s.authorize(authorization.ObjectOrder, authorization.ActionOrderEditLines), s.WriteRateLimit(), s.EditOrderLines)
	api.POST("/orders/:id/settlement", s.authorize(authorization.ObjectOrder, authorization.ActionOrderSettle), s.WriteRateLimit(), s.SettleOrder)
	api.POST("/orders/:id/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.WriteRateLimit(), s.CancelOrder)

	// -------- Tables --------
	api.GET("/tables", s.authorize(authorization.ObjectTable, authorization.ActionView), s.ListTables)
	api.GET("/tables/:number", s.authorize(authorization.ObjectTable, authorization.ActionView), s.GetTable)
	api.PUT("/tables/:number/reservation", s.authorize(authorization.ObjectTable, authorization.ActionTableReserve), s.WriteRateLimit(), s.SetTableReservation)

	// -------- Cash closings --------
	api.POST("/closings", s.authorize(authorization.ObjectClosing, authorization.ActionClosingCreate), s.WriteRateLimit(), s.CloseShift)
	api.GET("/closings", s.authorize(authorization.ObjectClosing, authorization.ActionView), s.ListClosings)
	api.GET("/closings/:id", s.authorize(authorization.ObjectClosing, authorization.ActionView), s.GetClosing)
	api.POST("/closings/:id/review", s.authorize(authorization.ObjectClosing, authorization.ActionClosingReview), s.WriteRateLimit(), s.ReviewClosing)

	// -------- Real-time --------
	api.GET("/events/:audience", s.authorize(authorization.ObjectEvents, authorization.ActionEventsSubscribe), s.StreamOrderEvents)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{Type: "not_found", Message: "route not found"}})
	})
}
