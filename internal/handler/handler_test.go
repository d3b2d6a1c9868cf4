package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belshop/fulfillment/internal/domain/auth"
	"github.com/belshop/fulfillment/internal/domain/coupon"
	"github.com/belshop/fulfillment/internal/domain/order"
	"github.com/belshop/fulfillment/internal/domain/product"
	"github.com/belshop/fulfillment/internal/storage/memory"
)

const (
	testAPIKey = "test-admin-key"
	testPepper = "test-pepper"
)

type stubKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (s *stubKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if info, ok := s.byHash[hash]; ok {
		return info, nil
	}
	return nil, errors.New("api key not found")
}

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	store.AddProduct(product.Product{
		ID:        "sneaker",
		Title:     "Classic Leather Sneaker",
		BasePrice: dec("20.00"),
		Category:  "shoes",
		Images:    []string{"sneaker-1.jpg"},
		IsActive:  true,
		Sizes: []product.Size{
			{ID: "sneaker-42", Label: "42", Stock: 5},
		},
	})
	store.AddCoupon(coupon.Coupon{
		ID:         "c-save10",
		Code:       "SAVE10",
		Type:       coupon.TypePercentage,
		Value:      dec("10"),
		UsageLimit: 100,
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		IsActive:   true,
		Scope:      coupon.Scope{Kind: coupon.ScopeAll},
	})

	keys := &stubKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		hashKey(testAPIKey): {ID: "k1", KeyHash: hashKey(testAPIKey), Name: "ops", Scopes: []string{"manage_orders"}},
	}}

	svc := order.NewService(store, coupon.NewEngine(store), store)
	h := NewHandler(svc, NewSecurity(keys, []byte(testPepper)))

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func createOrderBody() map[string]any {
	return map[string]any{
		"shippingAddress": map[string]any{
			"customerName": "Ayesha Rahman",
			"mobile":       "01711111111",
			"district":     "Dhaka",
			"addressLine":  "12 Green Road",
			"postalCode":   "1205",
		},
		"items": []map[string]any{
			{"productId": "sneaker", "productSizeId": "sneaker-42", "quantity": 2},
		},
		"shipping": "5.00",
	}
}

func doJSON(t *testing.T, method, url string, body any, apiKey string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestCreateOrderEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv, store := newTestServer(t)

		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", createOrderBody(), "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var got orderResponse
		decodeBody(t, resp, &got)
		assert.NotEmpty(t, got.ID)
		assert.Regexp(t, `^BEL-`, got.TrackingNumber)
		assert.Equal(t, "45", got.TotalAmount.String())
		assert.Equal(t, 3, store.Stock("sneaker", "sneaker-42"))
	})

	t.Run("with coupon", func(t *testing.T) {
		srv, _ := newTestServer(t)

		body := createOrderBody()
		body["couponCode"] = "SAVE10"
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var got orderResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, "4", got.DiscountAmount.String())
		assert.Equal(t, "41", got.TotalAmount.String())
	})

	t.Run("invalid coupon yields 422", func(t *testing.T) {
		srv, _ := newTestServer(t)

		body := createOrderBody()
		body["couponCode"] = "BOGUS"
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body, "")
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var got errorBody
		decodeBody(t, resp, &got)
		assert.Equal(t, "Invalid coupon code.", got.Message)
	})

	t.Run("insufficient stock yields 422", func(t *testing.T) {
		srv, _ := newTestServer(t)

		body := createOrderBody()
		body["items"] = []map[string]any{
			{"productId": "sneaker", "productSizeId": "sneaker-42", "quantity": 99},
		}
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body, "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("empty items yields 400", func(t *testing.T) {
		srv, _ := newTestServer(t)

		body := createOrderBody()
		body["items"] = []map[string]any{}
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body yields 400", func(t *testing.T) {
		srv, _ := newTestServer(t)

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTrackOrderEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", createOrderBody(), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created orderResponse
	decodeBody(t, resp, &created)

	t.Run("by tracking number", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders/track",
			map[string]any{"trackingNumber": created.TrackingNumber}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var views []order.PublicTracking
		decodeBody(t, resp, &views)
		require.Len(t, views, 1)
		assert.Equal(t, created.TrackingNumber, views[0].TrackingNumber)
	})

	t.Run("by mobile", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders/track",
			map[string]any{"mobile": "01711111111"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var views []order.PublicTracking
		decodeBody(t, resp, &views)
		assert.Len(t, views, 1)
	})

	t.Run("neither key yields 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/orders/track", map[string]any{}, "")
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/orders"},
		{http.MethodGet, "/orders/some-id"},
		{http.MethodPatch, "/orders/some-id/status"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := doJSON(t, tc.method, srv.URL+tc.path, map[string]any{}, "")
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp2 := doJSON(t, tc.method, srv.URL+tc.path, map[string]any{}, "wrong-key")
			defer func() { _ = resp2.Body.Close() }()
			assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
		})
	}
}

func TestGetAndListOrdersEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", createOrderBody(), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created orderResponse
	decodeBody(t, resp, &created)

	t.Run("get by id", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/orders/"+created.ID, nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got orderResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("get missing yields 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/orders/missing", nil, testAPIKey)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list with pagination meta", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/orders?page=1&limit=5", nil, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got listResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, 1, got.Meta.Page)
		assert.Equal(t, 5, got.Meta.Limit)
		assert.Equal(t, 1, got.Meta.Total)
		assert.Len(t, got.Data, 1)
	})
}

func TestUpdateOrderStatusEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", createOrderBody(), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created orderResponse
	decodeBody(t, resp, &created)

	t.Run("confirm records the key name", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/status",
			map[string]any{"status": "confirmed"}, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got orderResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, order.StatusConfirmed, got.Status)
		require.Len(t, got.StatusHistory, 2)
		assert.Equal(t, "ops", got.StatusHistory[1].ChangedBy)
	})

	t.Run("illegal transition yields 422", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/status",
			map[string]any{"status": "delivered"}, testAPIKey)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("cancel returns stock", func(t *testing.T) {
		require.Equal(t, 3, store.Stock("sneaker", "sneaker-42"))

		resp := doJSON(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/status",
			map[string]any{"status": "cancelled", "note": "customer changed mind"}, testAPIKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got orderResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, order.StatusCancelled, got.Status)
		assert.Equal(t, 5, store.Stock("sneaker", "sneaker-42"))
	})

	t.Run("unknown status yields 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/orders/"+created.ID+"/status",
			map[string]any{"status": "archived"}, testAPIKey)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
