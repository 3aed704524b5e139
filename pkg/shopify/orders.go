package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrPartialCount marks an order count that stopped mid-pagination. The count
// returned alongside it is a valid lower bound.
var ErrPartialCount = errors.New("order count incomplete")

const ordersPageSize = 250

type orderRecord struct {
	ID   int64  `json:"id"`
	Tags string `json:"tags"`
}

type ordersEnvelope struct {
	Orders []orderRecord `json:"orders"`
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageInfo pulls the page_info cursor out of the Link response header.
func nextPageInfo(linkHeader string) string {
	match := linkNextPattern.FindStringSubmatch(linkHeader)
	if match == nil {
		return ""
	}
	parsed, err := url.Parse(match[1])
	if err != nil {
		return ""
	}
	return parsed.Query().Get("page_info")
}

// hasTag checks the comma-separated tag list the orders API returns. The API's
// own tag filter is unreliable on this endpoint, so filtering happens here.
func hasTag(tags, want string) bool {
	for _, tag := range strings.Split(tags, ",") {
		if strings.EqualFold(strings.TrimSpace(tag), want) {
			return true
		}
	}
	return false
}

// CountTaggedOrders counts orders created at or after since that carry the
// marker tag, following Link-header pagination.
//
// If a page fails after at least one page succeeded, the accumulated count is
// returned with ErrPartialCount: an under-count must not block billing. If the
// very first page fails, the count is zero and the error is the page error.
// The loop continues only while a next-page cursor exists and the page came
// back exactly full, so it cannot run unboundedly.
func (c *Client) CountTaggedOrders(ctx context.Context, shopDomain, token, tag string, since time.Time) (int, error) {
	count := 0
	page := 0
	pageInfo := ""

	for {
		requestURL := c.endpoint(shopDomain, "/orders.json")
		query := url.Values{}
		query.Set("limit", fmt.Sprintf("%d", ordersPageSize))
		if pageInfo == "" {
			query.Set("status", "any")
			query.Set("created_at_min", since.UTC().Format(time.RFC3339))
			query.Set("fields", "id,tags")
		} else {
			// With a page_info cursor the API rejects other filters.
			query.Set("page_info", pageInfo)
		}
		requestURL += "?" + query.Encode()

		orders, linkHeader, err := c.fetchOrdersPage(ctx, requestURL, token)
		if err != nil {
			if page == 0 {
				return 0, err
			}
			return count, ErrPartialCount
		}
		page++

		for _, order := range orders {
			if hasTag(order.Tags, tag) {
				count++
			}
		}

		pageInfo = nextPageInfo(linkHeader)
		if pageInfo == "" || len(orders) < ordersPageSize {
			return count, nil
		}
	}
}

func (c *Client) fetchOrdersPage(ctx context.Context, requestURL, token string) ([]orderRecord, string, error) {
	resp, err := c.do(ctx, http.MethodGet, requestURL, token, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("list orders: unexpected status %d", resp.StatusCode)
	}

	var envelope ordersEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, "", fmt.Errorf("list orders: decode response: %w", err)
	}
	return envelope.Orders, resp.Header.Get("Link"), nil
}

// OrderInput is the minimal order shape the form backend submits.
type OrderInput struct {
	CustomerName  string
	Phone         string
	Address       string
	City          string
	VariantID     int64
	Quantity      int
	ShippingPrice float64
	Tag           string
}

// CreateOrder creates a pending (cash on delivery) order carrying the marker
// tag and returns the platform order id.
func (c *Client) CreateOrder(ctx context.Context, shopDomain, token string, input OrderInput) (int64, error) {
	payload := map[string]interface{}{
		"order": map[string]interface{}{
			"tags":             input.Tag,
			"financial_status": "pending",
			"line_items": []map[string]interface{}{
				{"variant_id": input.VariantID, "quantity": input.Quantity},
			},
			"shipping_lines": []map[string]interface{}{
				{"title": "COD Shipping", "price": fmt.Sprintf("%.2f", input.ShippingPrice)},
			},
			"shipping_address": map[string]interface{}{
				"name":     input.CustomerName,
				"phone":    input.Phone,
				"address1": input.Address,
				"city":     input.City,
			},
		},
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(shopDomain, "/orders.json"), token, payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("create order: unexpected status %d", resp.StatusCode)
	}

	var created struct {
		Order struct {
			ID int64 `json:"id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("create order: decode response: %w", err)
	}
	return created.Order.ID, nil
}
