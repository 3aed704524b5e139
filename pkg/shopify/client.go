package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps the platform's admin REST API. It holds no shop state; every
// call takes the shop domain and access token it should act as.
type Client struct {
	APIVersion string
	HTTPClient *http.Client

	// BaseURL overrides the per-shop https://{domain} base. Used by tests.
	BaseURL string
}

func NewClient(apiVersion string) *Client {
	return &Client{
		APIVersion: apiVersion,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RecurringCharge is the wire shape of a recurring application charge.
// Date-only fields (activated_on, cancelled_on) are kept as strings.
type RecurringCharge struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	ReturnURL       string `json:"return_url"`
	ConfirmationURL string `json:"confirmation_url"`
	CreatedAt       string `json:"created_at"`
	ActivatedOn     string `json:"activated_on"`
	CancelledOn     string `json:"cancelled_on"`
}

type recurringChargeEnvelope struct {
	RecurringApplicationCharge *RecurringCharge `json:"recurring_application_charge"`
}

func (c *Client) endpoint(shopDomain, path string) string {
	base := "https://" + shopDomain
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	return base + "/admin/api/" + c.APIVersion + path
}

func (c *Client) do(ctx context.Context, method, url, token string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify request failed: %w", err)
	}
	return resp, nil
}

// CreateRecurringCharge creates a new recurring application charge and returns
// it with the confirmation URL the merchant must be sent to.
func (c *Client) CreateRecurringCharge(ctx context.Context, shopDomain, token, name string, price float64, interval, returnURL string) (*RecurringCharge, error) {
	payload := map[string]interface{}{
		"recurring_application_charge": map[string]interface{}{
			"name":       name,
			"price":      fmt.Sprintf("%.2f", price),
			"interval":   interval,
			"return_url": returnURL,
		},
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(shopDomain, "/recurring_application_charges.json"), token, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("create recurring charge: unexpected status %d", resp.StatusCode)
	}

	var envelope recurringChargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("create recurring charge: decode response: %w", err)
	}
	if envelope.RecurringApplicationCharge == nil {
		return nil, fmt.Errorf("create recurring charge: empty response")
	}
	return envelope.RecurringApplicationCharge, nil
}

// GetRecurringCharge fetches a charge by id. A charge id the platform does not
// know returns (nil, nil), not an error.
func (c *Client) GetRecurringCharge(ctx context.Context, shopDomain, token, chargeID string) (*RecurringCharge, error) {
	url := c.endpoint(shopDomain, "/recurring_application_charges/"+chargeID+".json")
	resp, err := c.do(ctx, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get recurring charge %s: unexpected status %d", chargeID, resp.StatusCode)
	}

	var envelope recurringChargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("get recurring charge %s: decode response: %w", chargeID, err)
	}
	return envelope.RecurringApplicationCharge, nil
}

// ActivateCharge activates an accepted charge. Calling it on an already-active
// charge short-circuits to success without re-issuing the activation call.
func (c *Client) ActivateCharge(ctx context.Context, shopDomain, token, chargeID string) (bool, error) {
	charge, err := c.GetRecurringCharge(ctx, shopDomain, token, chargeID)
	if err != nil {
		return false, err
	}
	if charge == nil {
		return false, nil
	}
	if charge.Status == "active" {
		return true, nil
	}

	url := c.endpoint(shopDomain, "/recurring_application_charges/"+chargeID+"/activate.json")
	resp, err := c.do(ctx, http.MethodPost, url, token, map[string]interface{}{})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("activate charge %s: unexpected status %d", chargeID, resp.StatusCode)
	}
	return true, nil
}
