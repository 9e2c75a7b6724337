package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
)

// ShopifyStore reads and writes campaign metafields through the Admin API.
type ShopifyStore struct {
	client *shopify.Client
}

func NewShopifyStore(client *shopify.Client) domain.MetafieldStore {
	return &ShopifyStore{client: client}
}

func (s *ShopifyStore) ProductMetafields(ctx context.Context, productGID, namespace string) (map[string]string, error) {
	fields, err := s.client.ProductMetafields(ctx, productGID, namespace)
	if errors.Is(err, shopify.ErrProductNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productGID)
	}
	return fields, err
}

func (s *ShopifyStore) SetMetafields(ctx context.Context, inputs []domain.MetafieldInput) error {
	out := make([]shopify.MetafieldsSetInput, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, shopify.MetafieldsSetInput{
			OwnerID:   in.OwnerID,
			Namespace: in.Namespace,
			Key:       in.Key,
			Type:      in.Type,
			Value:     in.Value,
		})
	}
	return s.client.SetMetafields(ctx, out)
}
