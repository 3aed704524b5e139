package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrdersTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient("2024-01")
	client.BaseURL = server.URL
	return client, server
}

func writeOrdersPage(w http.ResponseWriter, total, tagged int, tag, nextPageInfo string) {
	orders := make([]map[string]interface{}, 0, total)
	for i := 0; i < total; i++ {
		tags := "manual"
		if i < tagged {
			tags = "manual, " + tag
		}
		orders = append(orders, map[string]interface{}{
			"id":   int64(1000 + i),
			"tags": tags,
		})
	}
	if nextPageInfo != "" {
		w.Header().Set("Link",
			fmt.Sprintf(`<https://example.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=%s>; rel="next"`,
				nextPageInfo))
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"orders": orders})
}

func TestCountTaggedOrdersSinglePage(t *testing.T) {
	client, server := newOrdersTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "any", r.URL.Query().Get("status"))
		assert.NotEmpty(t, r.URL.Query().Get("created_at_min"))
		writeOrdersPage(w, 40, 12, "orderform-cod", "")
	}))
	defer server.Close()

	count, err := client.CountTaggedOrders(context.Background(),
		"example.myshopify.com", "token", "orderform-cod", time.Now().AddDate(0, 0, -10))
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestCountTaggedOrdersFollowsPagination(t *testing.T) {
	client, server := newOrdersTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_info") {
		case "":
			writeOrdersPage(w, 250, 250, "orderform-cod", "cursor-2")
		case "cursor-2":
			// Cursor requests must not carry the original filters.
			assert.Empty(t, r.URL.Query().Get("created_at_min"))
			writeOrdersPage(w, 30, 5, "orderform-cod", "")
		default:
			t.Errorf("unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer server.Close()

	count, err := client.CountTaggedOrders(context.Background(),
		"example.myshopify.com", "token", "orderform-cod", time.Now().AddDate(0, 0, -10))
	require.NoError(t, err)
	assert.Equal(t, 255, count)
}

func TestCountTaggedOrdersStopsOnPartialLastPage(t *testing.T) {
	// A next cursor with a short page means the listing is done; the cursor
	// alone must not keep the loop going.
	client, server := newOrdersTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") != "" {
			t.Error("short page should not be followed")
		}
		writeOrdersPage(w, 10, 10, "orderform-cod", "stale-cursor")
	}))
	defer server.Close()

	count, err := client.CountTaggedOrders(context.Background(),
		"example.myshopify.com", "token", "orderform-cod", time.Now().AddDate(0, 0, -10))
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestCountTaggedOrdersPartialFailure(t *testing.T) {
	client, server := newOrdersTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") == "" {
			writeOrdersPage(w, 250, 250, "orderform-cod", "cursor-2")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	count, err := client.CountTaggedOrders(context.Background(),
		"example.myshopify.com", "token", "orderform-cod", time.Now().AddDate(0, 0, -10))
	require.ErrorIs(t, err, ErrPartialCount)
	assert.Equal(t, 250, count, "partial count keeps the pages that succeeded")
}

func TestCountTaggedOrdersFirstPageFailure(t *testing.T) {
	client, server := newOrdersTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	count, err := client.CountTaggedOrders(context.Background(),
		"example.myshopify.com", "token", "orderform-cod", time.Now().AddDate(0, 0, -10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartialCount)
	assert.Equal(t, 0, count)
}

func TestNextPageInfo(t *testing.T) {
	link := `<https://x.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=abc123>; rel="next"`
	assert.Equal(t, "abc123", nextPageInfo(link))

	both := `<https://x.myshopify.com/admin/api/2024-01/orders.json?page_info=prev1>; rel="previous", ` +
		`<https://x.myshopify.com/admin/api/2024-01/orders.json?page_info=next1>; rel="next"`
	assert.Equal(t, "next1", nextPageInfo(both))

	assert.Equal(t, "", nextPageInfo(""))
	assert.Equal(t, "", nextPageInfo(`<https://x.myshopify.com/orders.json?page_info=p>; rel="previous"`))
}

func TestHasTag(t *testing.T) {
	assert.True(t, hasTag("manual, orderform-cod, vip", "orderform-cod"))
	assert.True(t, hasTag("Orderform-COD", "orderform-cod"))
	assert.False(t, hasTag("manual, vip", "orderform-cod"))
	assert.False(t, hasTag("orderform-cod-v2", "orderform-cod"))
	assert.False(t, hasTag("", "orderform-cod"))
}
