package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"stock-sync-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInventoryAPI struct {
	authCalls   int32
	tokenSerial int32
	validToken  atomic.Value
	handler     func(w http.ResponseWriter, r *http.Request)
}

func newFakeInventoryAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*fakeInventoryAPI, *httptest.Server) {
	api := &fakeInventoryAPI{handler: handler}
	api.validToken.Store("")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			atomic.AddInt32(&api.authCalls, 1)
			token := fmt.Sprintf("token-%d", atomic.AddInt32(&api.tokenSerial, 1))
			api.validToken.Store(token)
			_ = json.NewEncoder(w).Encode(map[string]string{"Token": token})
			return
		}
		api.handler(w, r)
	}))
	t.Cleanup(server.Close)
	return api, server
}

func (a *fakeInventoryAPI) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+a.validToken.Load().(string)
}

func newTestClient(baseURL string, tokens TokenCache) *Client {
	return NewClient(Config{BaseURL: baseURL, ApplicationID: "app", ApplicationSecret: "secret"}, tokens, zap.NewNop())
}

func TestRequest_AuthenticatesOnceAndCachesToken(t *testing.T) {
	var api *fakeInventoryAPI
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if !api.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	tokens := NewMemoryTokenCache()
	client := newTestClient(server.URL, tokens)

	for i := 0; i < 3; i++ {
		var out map[string]bool
		require.NoError(t, client.Request(context.Background(), http.MethodPost, "set-stock-level", map[string]int{"level": 1}, &out))
		assert.True(t, out["ok"])
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.authCalls))
	token, ok := tokens.Get(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "token-1", token)
}

func TestRequest_RefreshesOnUnauthorizedAndRetriesOnce(t *testing.T) {
	var calls int32
	var api *fakeInventoryAPI
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !api.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	tokens := NewMemoryTokenCache()
	require.NoError(t, tokens.Refresh(context.Background(), "stale-token"))
	client := newTestClient(server.URL, tokens)

	err := client.Request(context.Background(), http.MethodPost, "transfer-stock", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.authCalls))
	token, _ := tokens.Get(context.Background())
	assert.Equal(t, "token-1", token)
}

func TestRequest_SecondUnauthorizedPropagates(t *testing.T) {
	var calls int32
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"Message":"Unauthorized"}`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	err := client.Request(context.Background(), http.MethodPost, "transfer-stock", nil, nil)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.authCalls))
	assert.Equal(t, domain.ErrorTypeAuth, domain.ClassifyError(err))
}

func TestRequest_NonOKIsGatewayError(t *testing.T) {
	_, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	err := client.Request(context.Background(), http.MethodPost, "set-stock-level", nil, nil)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.HTTPStatusCode())
	assert.Equal(t, "set-stock-level", gwErr.Path)
	assert.Equal(t, domain.ErrorTypeRateLimit, domain.ClassifyError(err))
}

func TestRequest_MalformedResponses(t *testing.T) {
	testCases := []struct {
		name string
		body string
		out  interface{}
	}{
		{"html body", "<html>maintenance</html>", &map[string]interface{}{}},
		{"html body without output", "<html>maintenance</html>", nil},
		{"empty body with output", "", &map[string]interface{}{}},
		{"wrong shape", `"just a string"`, &StockLevelChange{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			client := newTestClient(server.URL, NewMemoryTokenCache())

			err := client.Request(context.Background(), http.MethodPost, "set-stock-level", nil, tc.out)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestRequest_EmptyBodyWithoutOutputIsAccepted(t *testing.T) {
	_, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	assert.NoError(t, client.Request(context.Background(), http.MethodPost, "set-stock-level", nil, nil))
}

func TestRequest_ConcurrentCallersShareToken(t *testing.T) {
	var api *fakeInventoryAPI
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if !api.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Request(context.Background(), http.MethodPost, "transfer-stock", nil, nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		// a racing re-auth may invalidate another caller's fresh token, which then
		// surfaces as a propagated 401; anything else is a bug
		if err != nil {
			var gwErr *GatewayError
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
		}
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&api.authCalls), int32(1))
}

func TestStockByLocation(t *testing.T) {
	var api *fakeInventoryAPI
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, api.authorized(r))
		assert.Equal(t, "/search-stock-items", r.URL.Path)

		var req searchStockItemsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SKU-001", req.Keyword)
		assert.True(t, req.LoadStockLevels)

		_, _ = w.Write([]byte(`[
			{"StockItemId":"x","SKU":"SKU-001-B","StockLevels":[]},
			{"StockItemId":"y","SKU":"sku-001","StockLevels":[
				{"Location":{"StockLocationId":"A","LocationName":"Bay A"},"StockLevel":0,"Available":0},
				{"Location":{"StockLocationId":"B","LocationName":"Floor"},"StockLevel":12,"Available":10,"Allocated":2,"InOrderBook":5,"MinimumLevel":3}
			]}
		]`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	candidates, err := client.StockByLocation(context.Background(), "SKU-001")

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, domain.CandidateLocation{ID: "A", Name: "Bay A"}, candidates[0])
	assert.Equal(t, domain.CandidateLocation{
		ID: "B", Name: "Floor", StockLevel: 12, Available: 10, Allocated: 2, OnOrder: 5, MinimumLevel: 3,
	}, candidates[1])
}

func TestStockByLocation_UnknownSKU(t *testing.T) {
	_, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	_, err := client.StockByLocation(context.Background(), "SKU-404")

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, domain.ErrorTypeProductNotFound, domain.ClassifyError(err))
}

func TestTransferStock(t *testing.T) {
	var api *fakeInventoryAPI
	api, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, api.authorized(r))
		assert.Equal(t, "/transfer-stock", r.URL.Path)

		var req TransferStockRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, TransferStockRequest{SKU: "SKU-001", FromLocationID: "B", ToLocationID: domain.DefaultLocationID, Quantity: 12}, req)

		_, _ = w.Write([]byte(`{"TransferId":"t-1","FromStockLevel":0,"ToStockLevel":12,"Quantity":12}`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	resp, err := client.TransferStock(context.Background(), TransferStockRequest{
		SKU: "SKU-001", FromLocationID: "B", ToLocationID: domain.DefaultLocationID, Quantity: 12,
	})

	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.TransferID)
	assert.Equal(t, 12, resp.ToStockLevel)
}

func TestSetStockLevel(t *testing.T) {
	_, server := newFakeInventoryAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var req setStockLevelRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, setStockLevelRequest{SKU: "SKU-001", LocationID: domain.DefaultLocationID, Level: 9}, req)
		_, _ = w.Write([]byte(`{"SKU":"SKU-001","LocationId":"00000000-0000-0000-0000-000000000000","StockLevel":9}`))
	})
	client := newTestClient(server.URL, NewMemoryTokenCache())

	change, err := client.SetStockLevel(context.Background(), "SKU-001", domain.DefaultLocationID, 9)

	require.NoError(t, err)
	assert.Equal(t, 9, change.StockLevel)
}

func TestMemoryTokenCache(t *testing.T) {
	cache := NewMemoryTokenCache()
	ctx := context.Background()

	_, ok := cache.Get(ctx)
	assert.False(t, ok)

	require.NoError(t, cache.Refresh(ctx, "abc"))
	token, ok := cache.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	require.NoError(t, cache.Clear(ctx))
	_, ok = cache.Get(ctx)
	assert.False(t, ok)
}
