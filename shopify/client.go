/*
client.go - Shopify Admin GraphQL client

PURPOSE:
  Thin client for the Shopify Admin GraphQL API. Holds the shop domain,
  API version and access token; Post sends one query and decodes the
  typed data payload.

USAGE:
  client := shopify.NewClient("demo.myshopify.com", token)
  data, err := shopify.Post[myQueryData](ctx, client, query, variables)

SEE ALSO:
  - inventory.go: The catalog and inventory operations built on Post
  - webhook.go: Webhook signature verification
*/
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIVersion is the Admin API version requests are pinned to.
const DefaultAPIVersion = "2024-10"

// Client talks to one shop's Admin GraphQL endpoint.
type Client struct {
	shopDomain  string
	accessToken string
	apiVersion  string
	baseURL     string
	httpClient  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIVersion overrides the Admin API version.
func WithAPIVersion(version string) Option {
	return func(c *Client) { c.apiVersion = version }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL sends requests to a fixed URL instead of the shop's Admin
// endpoint. For tests against httptest servers.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a client for one shop.
func NewClient(shopDomain, accessToken string, opts ...Option) *Client {
	c := &Client{
		shopDomain:  shopDomain,
		accessToken: accessToken,
		apiVersion:  DefaultAPIVersion,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShopDomain returns the shop this client is bound to.
func (c *Client) ShopDomain() string {
	return c.shopDomain
}

func (c *Client) endpoint() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.shopDomain, c.apiVersion)
}

// GraphQLError is one error entry from a GraphQL response.
type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

// Response is the GraphQL envelope around a typed data payload.
type Response[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Post sends one GraphQL query and returns the decoded data payload.
// Transport failures, non-200 statuses and GraphQL-level errors all come
// back as errors; callers never see a partial payload.
func Post[T any](ctx context.Context, c *Client, query string, variables map[string]any) (*T, error) {
	body := map[string]any{
		"query":     query,
		"variables": variables,
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", c.shopDomain, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopify returned %d: %s", res.StatusCode, snippet(raw))
	}

	var out Response[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}
	return &out.Data, nil
}

// snippet keeps error messages readable when Shopify sends an HTML page.
func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// IsValidShopDomain reports whether shop looks like a myshopify domain
// (e.g. your-store.myshopify.com).
func IsValidShopDomain(shop string) bool {
	if !strings.HasSuffix(shop, ".myshopify.com") {
		return false
	}
	if strings.Contains(shop, "/") || strings.Contains(shop, " ") {
		return false
	}
	return len(shop) >= len("a.myshopify.com")
}
