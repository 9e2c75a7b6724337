package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	campaigndomain "github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/campaign/progress"
	campaignwebhook "github.com/smallbiznis/campaignbridge/internal/campaign/webhook"
	checkoutdomain "github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/campaignbridge/internal/checkout/service"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/observability"
	obslogger "github.com/smallbiznis/campaignbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/campaignbridge/internal/observability/tracing"
	"github.com/smallbiznis/campaignbridge/internal/ratelimit"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	sideeffectservice "github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
	"github.com/smallbiznis/campaignbridge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

type CampaignWebhooks interface {
	Ingest(ctx context.Context, d campaignwebhook.Delivery) (campaignwebhook.Result, error)
}

type PaymentWebhooks interface {
	Ingest(ctx context.Context, payload []byte, signature string) error
}

type Checkout interface {
	CreatePaymentIntent(ctx context.Context, req checkoutdomain.OrderRequest) (*checkoutservice.IntentResult, error)
	UpdatePaymentIntent(ctx context.Context, id string, req checkoutdomain.OrderRequest) (*checkoutservice.IntentResult, error)
	ConfirmPayment(ctx context.Context, id string) (*checkoutservice.Confirmation, error)
	ProcessOrder(ctx context.Context, id string, req *checkoutdomain.OrderRequest) (*checkoutdomain.OrderResult, error)
}

type TaskQueue interface {
	List(ctx context.Context, status sideeffectdomain.Status, page pagination.Pagination) ([]sideeffectdomain.Task, pagination.PageInfo, error)
	Replay(ctx context.Context, id string) (*sideeffectdomain.Task, error)
}

type CampaignProgress interface {
	Progress(ctx context.Context, productGID string) (campaigndomain.Progress, error)
	SetProgress(ctx context.Context, productGID string, p campaigndomain.Progress) (campaigndomain.Progress, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	campaignHooks   CampaignWebhooks
	paymentHooks    PaymentWebhooks
	checkout        Checkout
	tasks           TaskQueue
	progress        CampaignProgress
	checkoutLimiter *ratelimit.CheckoutLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	CampaignHooks   *campaignwebhook.Service
	PaymentHooks    *checkoutservice.WebhookService
	Checkout        *checkoutservice.Service
	Tasks           *sideeffectservice.Queue
	Progress        *progress.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		campaignHooks:   p.CampaignHooks,
		paymentHooks:    p.PaymentHooks,
		checkout:        p.Checkout,
		tasks:           p.Tasks,
		progress:        p.Progress,
		checkoutLimiter: p.CheckoutLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.registerWebhookRoutes()
	s.registerPaymentRoutes()
	s.registerAdminRoutes()
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")
	hooks.POST("/shopify/orders/create", s.shopifyWebhook(topicOrdersCreate))
	hooks.POST("/shopify/orders/updated", s.shopifyWebhook(topicOrdersUpdated))
	hooks.POST("/shopify/refunds/create", s.shopifyWebhook(topicRefundsCreate))
	hooks.POST("/stripe", s.StripeWebhook)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")
	payments.Use(s.CheckoutRateLimit())
	payments.POST("/create-payment-intent", s.CreatePaymentIntent)
	payments.POST("/update-payment-intent", s.UpdatePaymentIntent)
	payments.POST("/confirm-payment", s.ConfirmPayment)
	payments.POST("/process-order", s.ProcessOrder)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminAuth())
	admin.GET("/tasks", s.ListTasks)
	admin.POST("/tasks/:id/replay", s.ReplayTask)
	admin.GET("/campaigns/:productId/progress", s.GetCampaignProgress)
	admin.PUT("/campaigns/:productId/progress", s.SetCampaignProgress)
}
