package service

import (
	"context"
	"strconv"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"go.uber.org/zap"
)

// SweepStuckLinks raises one operator alert per failed or abandoned order
// link attempt. It returns how many links it inspected.
func (b *Bridge) SweepStuckLinks(ctx context.Context, limit int) (int, error) {
	now := b.clock.Now().UTC()
	links, err := b.repo.ListStuck(ctx, b.db, now.Add(-b.claimStale), limit)
	if err != nil {
		return 0, err
	}

	for _, link := range links {
		key := FailureAlertKey(link.PaymentIntentID, link.Attempts)
		subject := "Paid order requires manual processing"
		if link.Status == domain.LinkPending {
			key = "order_stuck|" + link.PaymentIntentID + "|" + strconv.Itoa(link.Attempts)
			subject = "Order creation abandoned mid-flight"
		}
		message := "order link is " + string(link.Status)
		if link.LastError != nil {
			message = *link.LastError
		}
		b.alert(ctx, b.log.With(zap.String("payment_intent_id", link.PaymentIntentID)), key, sideeffectdomain.OperatorAlert{
			Severity: sideeffectdomain.SeverityCritical,
			Subject:  subject,
			Message:  message,
			Fields: map[string]string{
				"payment_intent_id": link.PaymentIntentID,
				"status":            string(link.Status),
				"attempt":           strconv.Itoa(link.Attempts),
			},
		})
	}
	return len(links), nil
}
