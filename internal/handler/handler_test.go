package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/storage/memory"
)

var d = decimal.RequireFromString

var pepper = []byte("test-pepper")

const (
	storeKey    = "store-x-key"
	platformKey = "platform-key"
)

type testServer struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.PutStore(ctx, catalog.Store{ID: "X", Name: "Downtown", Delivers: true}))
	require.NoError(t, s.PutStore(ctx, catalog.Store{ID: "Y", Name: "Airport"}))
	require.NoError(t, s.PutProduct(ctx, catalog.Product{
		ID: "burger", Name: "Burger",
		Groups: []catalog.Group{{
			ID: "extras", Name: "Extras", MaxSelect: 2,
			Modifiers: []catalog.Modifier{{ID: "bacon", Name: "Bacon"}},
		}},
	}))
	for _, l := range []catalog.ProductListing{
		{StoreID: "X", ProductID: "burger", BasePrice: d("20.00"), Available: true},
		{StoreID: "Y", ProductID: "burger", BasePrice: d("12.00"), Available: true},
	} {
		require.NoError(t, s.PutProductListing(ctx, l))
	}
	require.NoError(t, s.PutModifierListing(ctx, catalog.ModifierListing{
		StoreID: "X", ModifierID: "bacon", ExtraPrice: d("5.00"), Available: true,
	}))
	require.NoError(t, s.APIKeys().Create(ctx, &auth.APIKeyInfo{
		KeyHash: auth.HashKey(pepper, storeKey), Name: "store x", StoreID: "X",
		Scopes: []string{auth.ScopeOrdersStatus, auth.ScopeCouponsWrite},
	}))
	require.NoError(t, s.APIKeys().Create(ctx, &auth.APIKeyInfo{
		KeyHash: auth.HashKey(pepper, platformKey), Name: "platform",
		Scopes: []string{auth.ScopeCouponsWrite},
	}))

	resolver := catalog.NewResolver(s.Catalog())
	coupons := coupon.NewEngine(s.Coupons(), coupon.DefaultLoyalty())
	h := New(
		cart.NewService(s, s.Carts(), resolver),
		order.NewService(s, s.Carts(), s.Orders(), resolver, coupons, order.DefaultConfig()),
		order.NewStatusMachine(s, s.Orders(), s.Ledgers(), coupons, order.DefaultConfig()),
		coupons,
		NewAuthenticator(s.APIKeys(), pepper),
	)
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{store: s, mux: mux}
}

type call struct {
	method   string
	path     string
	body     string
	customer string
	apiKey   string
}

func (ts *testServer) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.customer != "" {
		req.Header.Set(CustomerIDHeader, c.customer)
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body), "response is JSON")
	return w.Code, body
}

func (ts *testServer) addBurger(t *testing.T, customer string) {
	t.Helper()
	code, _ := ts.do(t, call{
		method: http.MethodPost, path: "/api/cart/items", customer: customer,
		body: `{"storeId":"X","productId":"burger","quantity":2,"modifierIds":["bacon"]}`,
	})
	require.Equal(t, http.StatusCreated, code)
	code, _ = ts.do(t, call{
		method: http.MethodPut, path: "/api/cart/order-type", customer: customer,
		body: `{"orderType":"pickup"}`,
	})
	require.Equal(t, http.StatusOK, code)
}

func TestCart(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, call{method: http.MethodGet, path: "/api/cart"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "customer identity required", body["message"])

	code, body = ts.do(t, call{
		method: http.MethodPost, path: "/api/cart/items", customer: "alice",
		body: `{"storeId":"X","productId":"burger","quantity":2,"modifierIds":["bacon"],"extra":{"ignored":true}}`,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "X", body["storeId"])
	assert.Equal(t, "50.00", body["subtotal"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "20.00", item["unitPrice"])
	assert.Equal(t, "50.00", item["lineTotal"])
	itemID := item["id"].(string)

	code, body = ts.do(t, call{
		method: http.MethodPatch, path: "/api/cart/items/" + itemID, customer: "alice",
		body: `{"quantity":1}`,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "25.00", body["subtotal"])

	code, body = ts.do(t, call{
		method: http.MethodPut, path: "/api/cart/store", customer: "alice",
		body: `{"storeId":"Y"}`,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "12.00", body["cart"].(map[string]any)["subtotal"])
	warnings := body["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Equal(t, string(cart.WarningOptionRemoved), warnings[0].(map[string]any)["kind"])

	code, body = ts.do(t, call{method: http.MethodDelete, path: "/api/cart/items", customer: "alice"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])
	assert.Equal(t, "Y", body["storeId"])
}

func TestCart_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.addBurger(t, "alice")

	tests := []struct {
		name      string
		call      call
		wantCode  int
		wantError string
	}{
		{
			name:     "malformed body",
			call:     call{method: http.MethodPost, path: "/api/cart/items", customer: "alice", body: `{"storeId":`},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "other store",
			call:      call{method: http.MethodPost, path: "/api/cart/items", customer: "alice", body: `{"storeId":"Y","productId":"burger","quantity":1}`},
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "store_mismatch",
		},
		{
			name:      "unknown product",
			call:      call{method: http.MethodPost, path: "/api/cart/items", customer: "bob", body: `{"storeId":"X","productId":"nope","quantity":1}`},
			wantCode:  http.StatusNotFound,
			wantError: "not_found",
		},
		{
			name:      "unknown item",
			call:      call{method: http.MethodDelete, path: "/api/cart/items/nope", customer: "alice"},
			wantCode:  http.StatusNotFound,
			wantError: "not_found",
		},
		{
			name:      "store id required",
			call:      call{method: http.MethodPut, path: "/api/cart/store", customer: "carol", body: `{"storeId":""}`},
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "missing_store",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.do(t, tt.call)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestOrders(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	uses := 1
	require.NoError(t, ts.store.Coupons().Create(ctx, &coupon.Coupon{
		Code: "TENOFF", Kind: coupon.DiscountPercentage, Value: d("10"), UsesRemaining: &uses, Active: true,
	}))

	code, body := ts.do(t, call{method: http.MethodPost, path: "/api/orders", customer: "alice", body: `{}`})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "empty_cart", body["error"])

	ts.addBurger(t, "alice")
	code, body = ts.do(t, call{
		method: http.MethodPost, path: "/api/orders", customer: "alice",
		body: `{"couponCode":"tenoff","notes":"no onions"}`,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "50.00", body["baseValue"])
	assert.Equal(t, "5.00", body["discount"])
	assert.Equal(t, "45.00", body["chargedValue"])
	assert.Equal(t, string(order.StatusPending), body["status"])
	orderID := body["id"].(string)

	code, _ = ts.do(t, call{method: http.MethodGet, path: "/api/orders/" + orderID, customer: "alice"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, call{method: http.MethodGet, path: "/api/orders/" + orderID, customer: "mallory"})
	assert.Equal(t, http.StatusNotFound, code)

	ts.addBurger(t, "bob")
	code, body = ts.do(t, call{method: http.MethodPost, path: "/api/orders", customer: "bob", body: `{"couponCode":"TENOFF"}`})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "coupon_invalid", body["error"])
	assert.Equal(t, string(coupon.ReasonExhausted), body["reason"])
}

func TestOrders_Anonymous(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, call{
		method: http.MethodPost, path: "/api/orders",
		body: `{"cart":{"storeId":"Y","orderType":"pickup","items":[{"productId":"burger","quantity":3}]}}`,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "36.00", body["chargedValue"])
	assert.Nil(t, body["customerId"])

	code, _ = ts.do(t, call{method: http.MethodPost, path: "/api/orders", body: `{}`})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestValidateCoupon(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, ts.store.Coupons().Create(ctx, &coupon.Coupon{Code: "FIVE", Kind: coupon.DiscountFixed, Value: d("5"), Active: true}))
	require.NoError(t, ts.store.Coupons().Create(ctx, &coupon.Coupon{Code: "OLD", Kind: coupon.DiscountFixed, Value: d("5"), Active: true, ExpiresAt: &past}))

	tests := []struct {
		code       string
		wantValid  bool
		wantReason string
	}{
		{code: "five", wantValid: true},
		{code: "OLD", wantReason: string(coupon.ReasonExpired)},
		{code: "NOPE", wantReason: string(coupon.ReasonNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code, body := ts.do(t, call{method: http.MethodGet, path: "/api/coupons/" + tt.code})
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.wantValid, body["valid"])
			if !tt.wantValid {
				assert.Equal(t, tt.wantReason, body["reason"])
			}
		})
	}
}

func TestTransition(t *testing.T) {
	ts := newTestServer(t)
	ts.addBurger(t, "alice")
	_, body := ts.do(t, call{method: http.MethodPost, path: "/api/orders", customer: "alice", body: `{}`})
	orderID := body["id"].(string)
	path := "/api/stores/X/orders/" + orderID + "/status"

	tests := []struct {
		name     string
		call     call
		wantCode int
	}{
		{name: "no key", call: call{method: http.MethodPost, path: path, body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusUnauthorized},
		{name: "unknown key", call: call{method: http.MethodPost, path: path, apiKey: "guess", body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusUnauthorized},
		{name: "key without scope", call: call{method: http.MethodPost, path: path, apiKey: platformKey, body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusForbidden},
		{name: "key for other store", call: call{method: http.MethodPost, path: "/api/stores/Y/orders/" + orderID + "/status", apiKey: storeKey, body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusForbidden},
		{name: "skipping a step", call: call{method: http.MethodPost, path: path, apiKey: storeKey, body: `{"status":"FULFILLED"}`}, wantCode: http.StatusConflict},
		{name: "legal step", call: call{method: http.MethodPost, path: path, apiKey: storeKey, body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusOK},
		{name: "repeat is a no-op", call: call{method: http.MethodPost, path: path, apiKey: storeKey, body: `{"status":"IN_PREPARATION"}`}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := ts.do(t, tt.call)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestCreateCoupon(t *testing.T) {
	ts := newTestServer(t)
	body := `{"code":"spring","kind":"percentage","value":15,"uses":100}`

	code, _ := ts.do(t, call{method: http.MethodPost, path: "/api/coupons", apiKey: storeKey, body: body})
	assert.Equal(t, http.StatusForbidden, code, "store keys cannot create platform coupons")

	code, resp := ts.do(t, call{method: http.MethodPost, path: "/api/coupons", apiKey: platformKey, body: body})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "SPRING", resp["code"])
	assert.Equal(t, "15.00", resp["value"])
	assert.EqualValues(t, 100, resp["usesRemaining"])

	code, resp = ts.do(t, call{method: http.MethodPost, path: "/api/coupons", apiKey: platformKey, body: body})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_input", resp["error"])
}

type brokenKeys struct{ auth.Repository }

func (brokenKeys) FindByHash(context.Context, string) (*auth.APIKeyInfo, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := &Handler{auth: NewAuthenticator(brokenKeys{}, pepper)}
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/coupons", strings.NewReader(`{}`))
	req.Header.Set(APIKeyHeader, "anything")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.APIKeys().Create(ctx, &auth.APIKeyInfo{KeyHash: auth.HashKey(pepper, "k"), Name: "ops"}))
	a := NewAuthenticator(s.APIKeys(), pepper)

	info, err := a.Authenticate(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "ops", info.Name)

	_, err = a.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = NewAuthenticator(s.APIKeys(), []byte("other pepper")).Authenticate(ctx, "k")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
