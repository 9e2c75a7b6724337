package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	campaigndomain "github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	campaignwebhook "github.com/smallbiznis/campaignbridge/internal/campaign/webhook"
	checkoutdomain "github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/webhookauth"
	"go.uber.org/zap"
)

const (
	topicOrdersCreate  = "orders/create"
	topicOrdersUpdated = "orders/updated"
	topicRefundsCreate = "refunds/create"

	stripeSignatureHeader = "Stripe-Signature"
)

// shopifyWebhook verifies and ingests one Shopify delivery. Responses are bare
// text; any non-2xx makes Shopify redeliver.
func (s *Server) shopifyWebhook(topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("webhook_topic", topic)

		body, err := webhookauth.ReadBody(c.Request, webhookauth.DefaultBodyLimit)
		if err != nil {
			_ = c.Error(err)
			c.String(http.StatusBadRequest, "Bad Request")
			return
		}
		if !webhookauth.Verify(body, c.GetHeader(webhookauth.HeaderHmac), s.cfg.Shopify.WebhookSecret) {
			_ = c.Error(ErrUnauthorized)
			c.String(http.StatusUnauthorized, "Unauthorized")
			return
		}

		_, err = s.campaignHooks.Ingest(c.Request.Context(), campaignwebhook.Delivery{
			Topic:      topic,
			WebhookID:  c.GetHeader(webhookauth.HeaderWebhookID),
			ShopDomain: c.GetHeader(webhookauth.HeaderShop),
			Body:       body,
		})
		var perr *campaigndomain.ParseError
		switch {
		case err == nil:
			c.String(http.StatusOK, "OK")
		case errors.As(err, &perr):
			_ = c.Error(err)
			c.String(http.StatusBadRequest, "Bad Request")
		case errors.Is(err, campaigndomain.ErrEventInProgress):
			_ = c.Error(err)
			c.String(http.StatusConflict, "Conflict")
		default:
			_ = c.Error(err)
			c.String(http.StatusInternalServerError, "Internal Server Error")
		}
	}
}

// StripeWebhook acknowledges verified payment events. Failed processing
// returns 500 so the event is redelivered.
func (s *Server) StripeWebhook(c *gin.Context) {
	c.Set("webhook_topic", "stripe")

	body, err := webhookauth.ReadBody(c.Request, webhookauth.DefaultBodyLimit)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentHooks.Ingest(c.Request.Context(), body, c.GetHeader(stripeSignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, checkoutdomain.ErrInvalidSignature):
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case errors.Is(err, checkoutdomain.ErrNotConfigured):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
	default:
		s.log.Error("payment webhook failed", zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}
