package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const productGIDPrefix = "gid://shopify/Product/"

// ProductGID normalises a numeric id or an existing gid to gid://shopify/Product/<id>.
func ProductGID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, productGIDPrefix) {
		return id
	}
	return productGIDPrefix + id
}

// ProductGIDFromInt formats a webhook product_id.
func ProductGIDFromInt(id int64) string {
	return productGIDPrefix + strconv.FormatInt(id, 10)
}

const productTagsQuery = `query ProductTags($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {
      id
      tags
    }
  }
}`

// ProductTags resolves tags for many products in one round trip.
// Unknown or deleted products are absent from the result.
func (c *Client) ProductTags(ctx context.Context, productGIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(productGIDs))
	if len(productGIDs) == 0 {
		return out, nil
	}

	// nodes() accepts at most 250 ids.
	for start := 0; start < len(productGIDs); start += 250 {
		end := min(start+250, len(productGIDs))
		data, err := Do[struct {
			Nodes []*struct {
				ID   string   `json:"id"`
				Tags []string `json:"tags"`
			} `json:"nodes"`
		}](ctx, c, "product_tags", productTagsQuery, map[string]any{"ids": productGIDs[start:end]})
		if err != nil {
			return nil, err
		}
		for _, node := range data.Nodes {
			if node == nil || node.ID == "" {
				continue
			}
			out[node.ID] = node.Tags
		}
	}
	return out, nil
}

const productMetafieldsQuery = `query ProductMetafields($id: ID!, $namespace: String!) {
  product(id: $id) {
    id
    metafields(namespace: $namespace, first: 25) {
      nodes {
        key
        value
      }
    }
  }
}`

// ProductMetafields returns key → raw value for the namespace on a product.
func (c *Client) ProductMetafields(ctx context.Context, productGID, namespace string) (map[string]string, error) {
	data, err := Do[struct {
		Product *struct {
			ID         string `json:"id"`
			Metafields struct {
				Nodes []struct {
					Key   string `json:"key"`
					Value string `json:"value"`
				} `json:"nodes"`
			} `json:"metafields"`
		} `json:"product"`
	}](ctx, c, "product_metafields", productMetafieldsQuery, map[string]any{
		"id":        productGID,
		"namespace": namespace,
	})
	if err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, fmt.Errorf("product %s not found: %w", productGID, ErrProductNotFound)
	}

	out := make(map[string]string, len(data.Product.Metafields.Nodes))
	for _, node := range data.Product.Metafields.Nodes {
		out[node.Key] = node.Value
	}
	return out, nil
}

type MetafieldsSetInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

const metafieldsSetMutation = `mutation MetafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields {
      key
    }
    userErrors {
      field
      message
      code
    }
  }
}`

// SetMetafields writes all inputs in a single metafieldsSet call.
func (c *Client) SetMetafields(ctx context.Context, inputs []MetafieldsSetInput) error {
	if len(inputs) == 0 {
		return nil
	}
	data, err := Do[struct {
		MetafieldsSet struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}](ctx, c, "metafields_set", metafieldsSetMutation, map[string]any{"metafields": inputs})
	if err != nil {
		return err
	}
	return userErrorsErr("metafieldsSet", data.MetafieldsSet.UserErrors)
}
