package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/providers/pdf"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfirmation = errors.New("invalid_order_confirmation")

type ConfirmationParams struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Provider Provider
	Receipts pdf.Provider
}

// ConfirmationSender delivers order confirmation emails with a PDF receipt.
type ConfirmationSender struct {
	log       *zap.Logger
	clock     clock.Clock
	storeName string
	provider  Provider
	receipts  pdf.Provider
}

func NewConfirmationSender(p ConfirmationParams) *ConfirmationSender {
	storeName := strings.TrimSpace(p.Config.Shopify.StoreDomain)
	if storeName == "" {
		storeName = p.Config.AppName
	}
	return &ConfirmationSender{
		log:       p.Log.Named("email.confirmation"),
		clock:     p.Clock,
		storeName: storeName,
		provider:  p.Provider,
		receipts:  p.Receipts,
	}
}

// Handle is the side-effect handler for order confirmation emails.
func (s *ConfirmationSender) Handle(ctx context.Context, payload []byte) error {
	var c sideeffectdomain.OrderConfirmation
	if err := json.Unmarshal(payload, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfirmation, err)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidConfirmation)
	}

	body, err := Render("order_confirmation", c)
	if err != nil {
		return err
	}
	msg := Message{
		To:      []string{c.Email},
		Subject: fmt.Sprintf("Order %s confirmed", c.OrderName),
		HTML:    body,
	}

	receipt, err := s.receipt(ctx, c)
	if err != nil {
		s.log.Warn("receipt not generated", zap.String("order_id", c.OrderID), zap.Error(err))
	} else if len(receipt) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    "receipt-" + strings.TrimPrefix(c.OrderName, "#") + ".pdf",
			ContentType: "application/pdf",
			Data:        receipt,
		})
	}

	return s.provider.Send(ctx, msg)
}

func (s *ConfirmationSender) receipt(ctx context.Context, c sideeffectdomain.OrderConfirmation) ([]byte, error) {
	data := pdf.ReceiptData{
		StoreName:     s.storeName,
		OrderName:     c.OrderName,
		DatePaid:      s.clock.Now().Format("2006-01-02"),
		PaymentRef:    c.PaymentIntentID,
		CustomerName:  c.FirstName,
		CustomerEmail: c.Email,
		Delivery:      c.DeliveryPrice,
		Tip:           c.Tip,
		Total:         c.Total,
		Currency:      c.Currency,
	}
	for _, item := range c.Items {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: item.Title,
			Qty:         item.Quantity,
			UnitPrice:   item.Price,
			Amount:      lineAmount(item.Price, item.Quantity),
		})
	}

	r, err := s.receipts.GenerateReceipt(ctx, data)
	if err != nil || r == nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func lineAmount(price string, qty int) string {
	cents, err := money.ParseCents(price)
	if err != nil {
		return price + " x " + strconv.Itoa(qty)
	}
	return money.FormatCents(cents * int64(qty))
}
