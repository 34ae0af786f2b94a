// Package api is the HTTP boundary: the authenticated payments API, gateway
// webhooks, liveness and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-service/internal/metrics"
	"payment-service/internal/model"
	"payment-service/internal/payment"
	"payment-service/internal/webhook"
)

type PaymentService interface {
	Create(ctx context.Context, userID uuid.UUID, req payment.CreateRequest) (*payment.CreateResult, error)
	Capture(ctx context.Context, userID, paymentID uuid.UUID, amount *decimal.Decimal) (*model.Payment, error)
	Refund(ctx context.Context, userID, paymentID uuid.UUID, req payment.RefundRequest) (*payment.RefundResult, error)
	Get(ctx context.Context, userID, paymentID uuid.UUID) (*model.Payment, error)
	List(ctx context.Context, userID uuid.UUID, req payment.ListRequest) (*payment.Page, error)
	Reconcile(ctx context.Context, userID, paymentID uuid.UUID) (*model.Payment, error)
}

type WebhookIngester interface {
	Ingest(ctx context.Context, providerName string, headers http.Header, raw []byte) (webhook.Outcome, error)
}

type Server struct {
	payments  PaymentService
	webhooks  WebhookIngester
	contracts contracts
	logger    *slog.Logger
	router    *gin.Engine
}

func NewServer(payments PaymentService, webhooks WebhookIngester, jwtSecret string, logger *slog.Logger) (*Server, error) {
	c, err := loadContracts()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestContext(), requestLogger(logger))
	router.NoRoute(notFoundHandler)

	s := &Server{
		payments:  payments,
		webhooks:  webhooks,
		contracts: c,
		logger:    logger,
		router:    router,
	}

	router.GET("/liveness", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/metrics", func(c *gin.Context) {
		metrics.WritePrometheus(c.Writer)
	})

	router.POST("/webhooks/:provider", s.handleWebhook)

	api := router.Group("/api", requireAuth([]byte(jwtSecret)))
	{
		api.POST("/payments", s.handleCreate)
		api.GET("/payments", s.handleList)
		api.GET("/payments/:id", s.handleGet)
		api.POST("/payments/:id/capture", s.handleCapture)
		api.POST("/payments/:id/refunds", s.handleRefund)
		api.POST("/payments/:id/reconcile", s.handleReconcile)
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}
