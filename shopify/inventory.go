/*
inventory.go - Catalog and inventory operations

PURPOSE:
  The Admin API calls behind the inventory screens: paged variant
  listing, location lookup and absolute quantity writes.

SEE ALSO:
  - client.go: Post, the generic GraphQL transport
*/
package shopify

import (
	"context"
	"fmt"
)

// Variant is one product variant row for the inventory view.
type Variant struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Title             string `json:"title"`
	ProductTitle      string `json:"productTitle"`
	Price             string `json:"price"`
	InventoryQuantity int64  `json:"inventoryQuantity"`
	InventoryItemID   string `json:"inventoryItemId"`
}

// VariantsPage is one page of variants plus the cursor to fetch the next.
type VariantsPage struct {
	Variants  []Variant `json:"variants"`
	HasNext   bool      `json:"hasNext"`
	EndCursor string    `json:"endCursor"`
}

const variantsQuery = `
query Variants($first: Int!, $after: String, $query: String) {
  productVariants(first: $first, after: $after, query: $query) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      id
      sku
      title
      price
      inventoryQuantity
      inventoryItem {
        id
      }
      product {
        title
      }
    }
  }
}`

type variantsData struct {
	ProductVariants struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Nodes []struct {
			ID                string `json:"id"`
			SKU               string `json:"sku"`
			Title             string `json:"title"`
			Price             string `json:"price"`
			InventoryQuantity int64  `json:"inventoryQuantity"`
			InventoryItem     struct {
				ID string `json:"id"`
			} `json:"inventoryItem"`
			Product struct {
				Title string `json:"title"`
			} `json:"product"`
		} `json:"nodes"`
	} `json:"productVariants"`
}

// Variants returns one page of product variants. search filters by the
// Admin API query syntax (e.g. "sku:ABC*"); after is the cursor from the
// previous page, empty for the first.
func (c *Client) Variants(ctx context.Context, search, after string, first int) (*VariantsPage, error) {
	if first <= 0 || first > 100 {
		first = 50
	}
	variables := map[string]any{"first": first}
	if after != "" {
		variables["after"] = after
	}
	if search != "" {
		variables["query"] = search
	}

	data, err := Post[variantsData](ctx, c, variantsQuery, variables)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}

	page := &VariantsPage{
		Variants:  make([]Variant, 0, len(data.ProductVariants.Nodes)),
		HasNext:   data.ProductVariants.PageInfo.HasNextPage,
		EndCursor: data.ProductVariants.PageInfo.EndCursor,
	}
	for _, n := range data.ProductVariants.Nodes {
		page.Variants = append(page.Variants, Variant{
			ID:                n.ID,
			SKU:               n.SKU,
			Title:             n.Title,
			ProductTitle:      n.Product.Title,
			Price:             n.Price,
			InventoryQuantity: n.InventoryQuantity,
			InventoryItemID:   n.InventoryItem.ID,
		})
	}
	return page, nil
}

// Location is a stock location.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const locationsQuery = `
query Locations {
  locations(first: 10) {
    nodes {
      id
      name
    }
  }
}`

type locationsData struct {
	Locations struct {
		Nodes []Location `json:"nodes"`
	} `json:"locations"`
}

// Locations returns the shop's stock locations.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	data, err := Post[locationsData](ctx, c, locationsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return data.Locations.Nodes, nil
}

// QuantityInput is one absolute quantity write.
type QuantityInput struct {
	InventoryItemID string `json:"inventoryItemId"`
	LocationID      string `json:"locationId"`
	Quantity        int64  `json:"quantity"`
}

// UserError is a field-level rejection from a Shopify mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

const setQuantitiesMutation = `
mutation SetQuantities($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    inventoryAdjustmentGroup {
      createdAt
    }
    userErrors {
      field
      message
    }
  }
}`

type setQuantitiesData struct {
	InventorySetQuantities struct {
		UserErrors []UserError `json:"userErrors"`
	} `json:"inventorySetQuantities"`
}

// SetQuantities writes absolute available quantities. Field-level
// rejections come back as user errors, not as a Go error: the request
// itself succeeded, the shop just refused some rows.
func (c *Client) SetQuantities(ctx context.Context, reason string, quantities []QuantityInput) ([]UserError, error) {
	if reason == "" {
		reason = "correction"
	}
	items := make([]map[string]any, 0, len(quantities))
	for _, q := range quantities {
		items = append(items, map[string]any{
			"inventoryItemId": q.InventoryItemID,
			"locationId":      q.LocationID,
			"quantity":        q.Quantity,
		})
	}
	variables := map[string]any{
		"input": map[string]any{
			"name":                  "available",
			"reason":                reason,
			"ignoreCompareQuantity": true,
			"quantities":            items,
		},
	}

	data, err := Post[setQuantitiesData](ctx, c, setQuantitiesMutation, variables)
	if err != nil {
		return nil, fmt.Errorf("setting quantities: %w", err)
	}
	return data.InventorySetQuantities.UserErrors, nil
}
