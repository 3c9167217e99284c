package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsmith/loyalty-engine/api"
	"github.com/pointsmith/loyalty-engine/loyalty"
	lstore "github.com/pointsmith/loyalty-engine/loyalty/store"
	"github.com/pointsmith/loyalty-engine/shopify"
)

var seedTime = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newAdminServer(t *testing.T) (*lstore.TxMemory, *api.Handler, http.Handler) {
	t.Helper()

	store := lstore.NewTxMemory()
	h := api.NewHandler(store)
	return store, h, api.NewRouter(h)
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// fakeShopify points a client at a local server that plays the Admin API.
func fakeShopify(t *testing.T, status int, response string) *shopify.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	return shopify.NewClient("demo-shop.myshopify.com", "token", shopify.WithBaseURL(srv.URL))
}

func TestHealth_ReturnsOK(t *testing.T) {
	_, _, router := newAdminServer(t)

	rec := doJSON(router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestGetPoints_UnknownCustomer_ReadsAsZero(t *testing.T) {
	_, _, router := newAdminServer(t)

	rec := doJSON(router, http.MethodGet, "/api/points/ghost", nil)

	// 200 with a zero balance, not 404: that is what the ledger would say
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decodeBody[api.EntryDTO](t, rec)
	assert.Equal(t, "ghost", entry.CustomerID)
	assert.Zero(t, entry.Points)
	assert.Empty(t, entry.UpdatedAt)
}

func TestGetPoints_ExistingCustomer_ReturnsBalance(t *testing.T) {
	store, _, router := newAdminServer(t)
	_, err := store.UpsertAdd(context.Background(), "cust-1", 8, seedTime)
	require.NoError(t, err)

	rec := doJSON(router, http.MethodGet, "/api/points/cust-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	entry := decodeBody[api.EntryDTO](t, rec)
	assert.Equal(t, "cust-1", entry.CustomerID)
	assert.Equal(t, int64(8), entry.Points)
	assert.NotEmpty(t, entry.UpdatedAt)
}

func TestAdjust_AddSubtractSet(t *testing.T) {
	_, _, router := newAdminServer(t)

	rec := doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "add", Amount: 10, Note: "welcome bonus"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, int64(10), decodeBody[api.EntryDTO](t, rec).Points)

	rec = doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "subtract", Amount: 4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(6), decodeBody[api.EntryDTO](t, rec).Points)

	rec = doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "set", Amount: 100})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(100), decodeBody[api.EntryDTO](t, rec).Points)

	rec = doJSON(router, http.MethodGet, "/api/points/cust-1/adjustments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]api.AdjustmentDTO](t, rec)
	require.Len(t, history, 3)
	assert.Equal(t, "set", history[0].Op, "history is newest first")
	assert.Equal(t, "subtract", history[1].Op)
	assert.Equal(t, "add", history[2].Op)
	assert.Equal(t, "welcome bonus", history[2].Note)
}

func TestAdjust_InsufficientPoints_BadRequestWithCode(t *testing.T) {
	_, _, router := newAdminServer(t)

	rec := doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "add", Amount: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "subtract", Amount: 10})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_points", resp.Code)

	rec = doJSON(router, http.MethodGet, "/api/points/cust-1", nil)
	assert.Equal(t, int64(3), decodeBody[api.EntryDTO](t, rec).Points, "the balance is untouched")
}

func TestAdjust_UnknownOp_BadRequest(t *testing.T) {
	_, _, router := newAdminServer(t)

	rec := doJSON(router, http.MethodPost, "/api/points/cust-1/adjust",
		api.AdjustRequest{Op: "multiply", Amount: 2})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjust_InvalidBody_BadRequest(t *testing.T) {
	_, _, router := newAdminServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/points/cust-1/adjust",
		strings.NewReader("not json{{{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPoints_PagingAndSearch(t *testing.T) {
	store, _, router := newAdminServer(t)
	ctx := context.Background()

	_, err := store.UpsertAdd(ctx, "anna", 1, seedTime)
	require.NoError(t, err)
	_, err = store.UpsertAdd(ctx, "annabel", 2, seedTime.Add(time.Minute))
	require.NoError(t, err)
	_, err = store.UpsertAdd(ctx, "boris", 3, seedTime.Add(2*time.Minute))
	require.NoError(t, err)

	rec := doJSON(router, http.MethodGet, "/api/points?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[api.ListEntriesResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "boris", page.Entries[0].CustomerID, "most recently updated first")

	rec = doJSON(router, http.MethodGet, "/api/points?q=ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[api.ListEntriesResponse](t, rec)
	assert.Equal(t, 2, page.Total)
	for _, e := range page.Entries {
		assert.Contains(t, e.CustomerID, "ann")
	}
}

func TestRecentWebhooks_NewestFirst(t *testing.T) {
	store, _, router := newAdminServer(t)
	ctx := context.Background()

	require.NoError(t, store.RecordDelivery(ctx, loyalty.Delivery{
		EventKey: "order_1_processed", Topic: loyalty.TopicOrdersCreate,
		Status: loyalty.StatusAccepted, Points: 5, CustomerID: "cust-1",
		ReceivedAt: seedTime,
	}))
	require.NoError(t, store.RecordDelivery(ctx, loyalty.Delivery{
		Topic:  "orders/updated",
		Status: loyalty.StatusRejected, Reason: loyalty.ReasonUnsupportedTopic,
		ReceivedAt: seedTime.Add(time.Second),
	}))

	rec := doJSON(router, http.MethodGet, "/api/webhooks/recent", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	deliveries := decodeBody[[]api.DeliveryDTO](t, rec)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "rejected", deliveries[0].Status)
	assert.Equal(t, "order_1_processed", deliveries[1].EventKey)
	assert.Equal(t, int64(5), deliveries[1].Points)
}

func TestInventory_Unconfigured_ServiceUnavailable(t *testing.T) {
	_, _, router := newAdminServer(t)

	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(router, http.MethodGet, "/api/inventory/variants", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(router, http.MethodGet, "/api/inventory/locations", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(router, http.MethodPost, "/api/inventory/quantities", api.SetQuantitiesRequest{
			Quantities: []shopify.QuantityInput{{InventoryItemID: "x", LocationID: "y", Quantity: 1}},
		}).Code)
}

func TestInventory_Variants_ProxiesShopify(t *testing.T) {
	_, h, router := newAdminServer(t)
	h.Inventory = fakeShopify(t, http.StatusOK, `{
		"data": {
			"productVariants": {
				"pageInfo": {"hasNextPage": true, "endCursor": "cur-1"},
				"nodes": [{
					"id": "gid://shopify/ProductVariant/1",
					"sku": "TEE-S",
					"title": "Small",
					"price": "19.99",
					"inventoryQuantity": 3,
					"inventoryItem": {"id": "gid://shopify/InventoryItem/11"},
					"product": {"title": "Logo Tee"}
				}]
			}
		}
	}`)

	rec := doJSON(router, http.MethodGet, "/api/inventory/variants?q=sku:TEE*&first=10", nil)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	page := decodeBody[shopify.VariantsPage](t, rec)
	assert.True(t, page.HasNext)
	assert.Equal(t, "cur-1", page.EndCursor)
	require.Len(t, page.Variants, 1)
	assert.Equal(t, "TEE-S", page.Variants[0].SKU)
	assert.Equal(t, "Logo Tee", page.Variants[0].ProductTitle)
	assert.Equal(t, "gid://shopify/InventoryItem/11", page.Variants[0].InventoryItemID)
}

func TestInventory_UpstreamFailure_BadGateway(t *testing.T) {
	_, h, router := newAdminServer(t)
	h.Inventory = fakeShopify(t, http.StatusInternalServerError, `whoops`)

	rec := doJSON(router, http.MethodGet, "/api/inventory/variants", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInventory_SetQuantities_Success(t *testing.T) {
	_, h, router := newAdminServer(t)
	h.Inventory = fakeShopify(t, http.StatusOK, `{
		"data": {"inventorySetQuantities": {"userErrors": []}}
	}`)

	rec := doJSON(router, http.MethodPost, "/api/inventory/quantities", api.SetQuantitiesRequest{
		Reason: "recount",
		Quantities: []shopify.QuantityInput{
			{InventoryItemID: "gid://shopify/InventoryItem/11", LocationID: "gid://shopify/Location/1", Quantity: 7},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["updated"])
}

func TestInventory_SetQuantities_UserErrors_Unprocessable(t *testing.T) {
	_, h, router := newAdminServer(t)
	h.Inventory = fakeShopify(t, http.StatusOK, `{
		"data": {"inventorySetQuantities": {"userErrors": [
			{"field": ["quantities", "0", "quantity"], "message": "must be non-negative"}
		]}}
	}`)

	rec := doJSON(router, http.MethodPost, "/api/inventory/quantities", api.SetQuantitiesRequest{
		Quantities: []shopify.QuantityInput{
			{InventoryItemID: "gid://shopify/InventoryItem/11", LocationID: "gid://shopify/Location/1", Quantity: -1},
		},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "user_errors", resp.Code)
}

func TestInventory_SetQuantities_EmptyRequest_BadRequest(t *testing.T) {
	_, h, router := newAdminServer(t)
	h.Inventory = fakeShopify(t, http.StatusOK, `{}`)

	rec := doJSON(router, http.MethodPost, "/api/inventory/quantities", api.SetQuantitiesRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
