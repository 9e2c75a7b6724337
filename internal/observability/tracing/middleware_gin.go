package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/campaignbridge/internal/observability/context"
	"github.com/smallbiznis/campaignbridge/internal/webhookauth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const stripeSignatureHeader = "Stripe-Signature"

// GinMiddleware starts a server span per request. Webhook deliveries are
// tagged with their source and delivery identifiers so a retried delivery can
// be followed across attempts.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("campaignbridge/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		members := make([]baggage.Member, 0, 2)
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if m, err := baggage.NewMember("request_id", requestID); err == nil {
				members = append(members, m)
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		source, delivery := webhookAttributes(c.Request.Header)
		if source != "" {
			span.SetAttributes(delivery...)
			if id := c.Request.Header.Get(webhookauth.HeaderWebhookID); id != "" {
				if m, err := baggage.NewMember("webhook_id", id); err == nil {
					members = append(members, m)
				}
			}
		}
		if len(members) > 0 {
			if bag, err := baggage.New(members...); err == nil {
				ctx = baggage.ContextWithBaggage(ctx, bag)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		// Shopify and Stripe retry anything that is not 2xx.
		if source != "" && status >= http.StatusBadRequest {
			span.SetAttributes(attribute.Bool("webhook.redelivery_expected", true))
		}

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// webhookAttributes identifies the webhook sender from its headers. Source is
// empty for ordinary API requests.
func webhookAttributes(h http.Header) (string, []attribute.KeyValue) {
	switch {
	case h.Get(webhookauth.HeaderHmac) != "" || h.Get(webhookauth.HeaderTopic) != "":
		attrs := []attribute.KeyValue{attribute.String("webhook.source", "shopify")}
		if topic := strings.TrimSpace(h.Get(webhookauth.HeaderTopic)); topic != "" {
			attrs = append(attrs, attribute.String("webhook.topic", topic))
		}
		if id := strings.TrimSpace(h.Get(webhookauth.HeaderWebhookID)); id != "" {
			attrs = append(attrs, attribute.String("webhook.id", id))
		}
		if shop := strings.TrimSpace(h.Get(webhookauth.HeaderShop)); shop != "" {
			attrs = append(attrs, attribute.String("webhook.shop", shop))
		}
		return "shopify", attrs
	case h.Get(stripeSignatureHeader) != "":
		return "stripe", []attribute.KeyValue{attribute.String("webhook.source", "stripe")}
	default:
		return "", nil
	}
}
