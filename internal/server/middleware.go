package server

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminAuth requires "Authorization: Bearer <ADMIN_TOKEN>". Admin routes are
// hidden when no token is configured.
func (s *Server) AdminAuth() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.AdminToken)
	return func(c *gin.Context) {
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// CheckoutRateLimit throttles the payment endpoints per client address.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}
		res, err := s.checkoutLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("checkout rate limiter unavailable", zap.Error(err))
		}
		if res != nil && !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			_ = c.Error(ErrRateLimited)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, paymentFailure("Too many requests. Please wait a moment and try again."))
			return
		}
		c.Next()
	}
}
