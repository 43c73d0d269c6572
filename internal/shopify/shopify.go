// Package shopify is a minimal Admin GraphQL API client covering discount
// code creation.
//
// Absent credentials mean the capability is not configured; callers degrade
// to simulated codes instead of failing the conversation.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/boovines/Nudge/internal/util"
)

const (
	apiVersion     = "2024-01"
	defaultTimeout = 10 * time.Second

	// DefaultExpiry is how long a negotiated code stays redeemable.
	DefaultExpiry = 10 * time.Minute

	codeLength = 8
)

// ErrRejected marks a mutation Shopify accepted over the wire but refused,
// either via top-level GraphQL errors or userErrors. Transport failures are
// returned as ordinary errors and callers may fall back to simulated codes;
// rejections must not be retried blindly.
var ErrRejected = errors.New("shopify rejected mutation")

// Client talks to the Shopify Admin GraphQL API for one store.
type Client struct {
	storeDomain string
	accessToken string
	apiURL      string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the store domain and access token explicitly instead
// of reading SHOPIFY_STORE_DOMAIN and SHOPIFY_ACCESS_TOKEN.
func WithCredentials(domain, token string) Option {
	return func(c *Client) {
		c.storeDomain = domain
		c.accessToken = token
	}
}

// WithAPIURL overrides the GraphQL endpoint, mainly for tests.
func WithAPIURL(url string) Option {
	return func(c *Client) { c.apiURL = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Shopify client. Both the store domain and access token
// are required.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		storeDomain: os.Getenv("SHOPIFY_STORE_DOMAIN"),
		accessToken: os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storeDomain == "" || c.accessToken == "" {
		return nil, fmt.Errorf("SHOPIFY_STORE_DOMAIN and SHOPIFY_ACCESS_TOKEN not set")
	}

	// Accept domains pasted with a protocol or trailing slash.
	c.storeDomain = strings.TrimPrefix(c.storeDomain, "https://")
	c.storeDomain = strings.TrimPrefix(c.storeDomain, "http://")
	c.storeDomain = strings.Trim(c.storeDomain, "/")
	if c.apiURL == "" {
		c.apiURL = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.storeDomain, apiVersion)
	}

	return c, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// Execute posts a GraphQL query or mutation and returns the raw response
// body decoded to the caller's shape.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Shopify API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Shopify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Shopify API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode Shopify response: %w", err)
	}
	return nil
}

const discountCodeBasicCreateMutation = `
mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
    discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
        codeDiscountNode {
            id
            codeDiscount {
                ... on DiscountCodeBasic {
                    codes(first: 1) {
                        nodes {
                            code
                        }
                    }
                    status
                    usageLimit
                    appliesOncePerCustomer
                }
            }
        }
        userErrors {
            field
            message
        }
    }
}
`

// DiscountCodeInput describes the code to create. Zero values get defaults:
// an auto-generated 8-character code, a start of now, an end 10 minutes
// later, and a usage limit of 1.
type DiscountCodeInput struct {
	Percentage    float64
	Code          string
	StartsAt      time.Time
	EndsAt        time.Time
	UsageLimit    int
	MinimumAmount float64
}

// DiscountCode is the created code as Shopify reports it.
type DiscountCode struct {
	Code       string
	ID         string
	Status     string
	UsageLimit int
	ExpiresAt  time.Time
}

type discountCodeBasicCreateResponse struct {
	Data struct {
		DiscountCodeBasicCreate struct {
			CodeDiscountNode struct {
				ID           string `json:"id"`
				CodeDiscount struct {
					Codes struct {
						Nodes []struct {
							Code string `json:"code"`
						} `json:"nodes"`
					} `json:"codes"`
					Status     string `json:"status"`
					UsageLimit int    `json:"usageLimit"`
				} `json:"codeDiscount"`
			} `json:"codeDiscountNode"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"discountCodeBasicCreate"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// CreateDiscountCode issues a one-use percentage discount code. Transport
// failures come back as plain errors; Shopify-side rejections wrap
// ErrRejected.
func (c *Client) CreateDiscountCode(ctx context.Context, input DiscountCodeInput) (*DiscountCode, error) {
	code := input.Code
	if code == "" {
		code = util.GenerateDiscountCode(codeLength)
	}
	startsAt := input.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now()
	}
	endsAt := input.EndsAt
	if endsAt.IsZero() {
		endsAt = startsAt.Add(DefaultExpiry)
	}
	usageLimit := input.UsageLimit
	if usageLimit <= 0 {
		usageLimit = 1
	}

	basic := map[string]any{
		"appliesOncePerCustomer": true,
		"code":                   code,
		"customerSelection":      map[string]any{"all": true},
		"customerGets": map[string]any{
			"value": map[string]any{
				"percentage": map[string]any{"value": input.Percentage},
			},
			"items": map[string]any{"all": true},
		},
		"startsAt":   startsAt.Format(time.RFC3339),
		"endsAt":     endsAt.Format(time.RFC3339),
		"usageLimit": usageLimit,
	}
	if input.MinimumAmount > 0 {
		basic["minimumRequirement"] = map[string]any{
			"minimumPurchaseAmount": map[string]any{
				"amount":       fmt.Sprintf("%.2f", input.MinimumAmount),
				"currencyCode": "USD",
			},
		}
	}

	slog.Debug("shopify.CreateDiscountCode: creating discount code", "store", c.storeDomain, "percentage", input.Percentage, "usage_limit", usageLimit)

	var resp discountCodeBasicCreateResponse
	if err := c.Execute(ctx, discountCodeBasicCreateMutation, map[string]any{"basicCodeDiscount": basic}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Errors[0].Message)
	}
	if userErrors := resp.Data.DiscountCodeBasicCreate.UserErrors; len(userErrors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, userErrors[0].Message)
	}

	node := resp.Data.DiscountCodeBasicCreate.CodeDiscountNode
	created := &DiscountCode{
		Code:       code,
		ID:         node.ID,
		Status:     node.CodeDiscount.Status,
		UsageLimit: node.CodeDiscount.UsageLimit,
		ExpiresAt:  endsAt,
	}
	if nodes := node.CodeDiscount.Codes.Nodes; len(nodes) > 0 && nodes[0].Code != "" {
		created.Code = nodes[0].Code
	}

	slog.Info("shopify.CreateDiscountCode: discount code created", "code", created.Code, "shopify_id", created.ID)
	return created, nil
}
