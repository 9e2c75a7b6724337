package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	stripeprovider "github.com/smallbiznis/campaignbridge/internal/providers/stripe"
	"go.uber.org/zap"
)

const manualProcessingMessage = "Your payment was received, but we could not finalize your order automatically. Our team has been notified and will complete it shortly."

type paymentIntentRef struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type updateIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	domain.OrderRequest
}

type processOrderRequest struct {
	PaymentIntentID string               `json:"paymentIntentId"`
	OrderData       *domain.OrderRequest `json:"orderData"`
}

func paymentFailure(message string) gin.H {
	return gin.H{"success": false, "error": message}
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req domain.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.paymentError(c, domain.ErrInvalidOrder)
		return
	}

	res, err := s.checkout.CreatePaymentIntent(c.Request.Context(), req)
	if err != nil {
		s.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"clientSecret":    res.ClientSecret,
		"paymentIntentId": res.PaymentIntentID,
		"amount":          res.Amount,
		"currency":        res.Currency,
	})
}

func (s *Server) UpdatePaymentIntent(c *gin.Context) {
	var req updateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
		s.paymentError(c, domain.ErrInvalidOrder)
		return
	}

	res, err := s.checkout.UpdatePaymentIntent(c.Request.Context(), req.PaymentIntentID, req.OrderRequest)
	if err != nil {
		s.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"paymentIntentId": res.PaymentIntentID,
		"amount":          res.Amount,
		"currency":        res.Currency,
	})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	var req paymentIntentRef
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
		s.paymentError(c, domain.ErrInvalidOrder)
		return
	}

	res, err := s.checkout.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		s.paymentError(c, err)
		return
	}
	body := gin.H{
		"success":         true,
		"paymentIntentId": res.PaymentIntentID,
		"status":          res.Status,
	}
	if res.OrderID != "" {
		body["orderId"] = res.OrderID
		body["orderName"] = res.OrderName
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) ProcessOrder(c *gin.Context) {
	var req processOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
		s.paymentError(c, domain.ErrInvalidOrder)
		return
	}

	res, err := s.checkout.ProcessOrder(c.Request.Context(), req.PaymentIntentID, req.OrderData)
	if err != nil {
		s.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"paymentIntentId":  res.PaymentIntentID,
		"orderId":          res.OrderID,
		"orderName":        res.OrderName,
		"alreadyProcessed": res.AlreadyLinked,
	})
}

// paymentError writes the shopper-facing failure. Upstream messages pass
// through the sanitizer; internal details stay in the logs.
func (s *Server) paymentError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, message := mapPaymentError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("payment request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, paymentFailure(message))
}

func mapPaymentError(err error) (int, string) {
	var verr *domain.ValidationError
	var mismatch *domain.AmountMismatchError
	var apiErr *stripeprovider.APIError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, domain.SanitizeMessage(verr.Message)
	case errors.As(err, &mismatch):
		return http.StatusBadRequest, mismatch.Error()
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusBadRequest, "Invalid order data."
	case errors.Is(err, domain.ErrIntentNotFound):
		return http.StatusNotFound, "Payment not found."
	case errors.Is(err, domain.ErrPaymentNotSucceeded):
		return http.StatusBadRequest, "Payment has not been completed."
	case errors.Is(err, domain.ErrIntentNotUpdatable):
		return http.StatusConflict, "This payment can no longer be changed."
	case errors.Is(err, domain.ErrOrderInProgress):
		return http.StatusConflict, "Your order is already being processed."
	case errors.Is(err, domain.ErrIncompleteMetadata):
		return http.StatusBadRequest, "Order details are required to complete this payment."
	case errors.Is(err, domain.ErrRequiresManualProcessing):
		return http.StatusInternalServerError, manualProcessingMessage
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Payments are temporarily unavailable."
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return http.StatusBadRequest, domain.SanitizeMessage(apiErr.Message)
	default:
		return http.StatusInternalServerError, domain.SanitizeMessage("")
	}
}
