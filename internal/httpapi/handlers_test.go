package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/service"
	"bengkelpos/internal/store/memory"
)

// newTestAPI builds a full API over the seeded in-memory store with a
// real AuthManager and Service, so tests exercise the complete request
// path including auth and branch gating.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zap.NewNop(), "branch-main", time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, zap.NewNop(), "*")
}

func doJSON(t *testing.T, api *API, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Router().ServeHTTP(res, req)
	return res
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, res.Code, res.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return payload.AccessToken
}

func decodeErrCode(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", res.Body.String(), err)
	}
	return payload.Error.Code
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/stock", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	token := loginAs(t, api, "admin", "admin123")
	res = doJSON(t, api, http.MethodGet, "/api/v1/stock/branch/branch-main", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d body %s", res.Code, res.Body.String())
	}
	var payload struct {
		Stock []domain.StockRecord `json:"stock"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode stock list: %v", err)
	}
	if len(payload.Stock) == 0 {
		t.Fatal("seeded branch returned no stock")
	}
}

func TestSalesOrderFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SalesOrderCreateRequest{
		BranchID: "branch-main",
		Customer: domain.Customer{Name: "Rudi"},
		Items: []domain.SalesItemRequest{
			{ProductID: "prd-oil-filter", Quantity: 3},
		},
		Method: "cash",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create sales order: status %d body %s", res.Code, res.Body.String())
	}
	var created struct {
		Order domain.SalesOrder `json:"order"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created order: %v", err)
	}
	if created.Order.Status != domain.SalesStatusPending {
		t.Fatalf("new order status = %s", created.Order.Status)
	}
	if created.Order.Items[0].UnitPrice.IsZero() {
		t.Fatal("unit price was not captured from the stock record")
	}

	for _, status := range []string{domain.SalesStatusProcessing, domain.SalesStatusCompleted} {
		res = doJSON(t, api, http.MethodPut, "/api/v1/sales/"+created.Order.ID+"/status", token,
			domain.OrderStatusRequest{Status: status})
		if res.Code != http.StatusOK {
			t.Fatalf("transition to %s: status %d body %s", status, res.Code, res.Body.String())
		}
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/stock?branch_id=branch-main&product_id=prd-oil-filter", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list stock: status %d", res.Code)
	}
	var listed struct {
		Stock []domain.StockRecord `json:"stock"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode stock list: %v", err)
	}
	if len(listed.Stock) != 1 {
		t.Fatalf("expected a single stock record, got %d", len(listed.Stock))
	}
	if listed.Stock[0].Quantity != 37 || listed.Stock[0].ReservedQty != 0 {
		t.Fatalf("stock after fulfillment = %d/%d, want 37/0",
			listed.Stock[0].Quantity, listed.Stock[0].ReservedQty)
	}
}

func TestSalespersonCannotRestock(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/stock/restock", token, domain.RestockRequest{
		ProductID: "prd-oil-filter",
		BranchID:  "branch-main",
		Quantity:  5,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body %s", res.Code, res.Body.String())
	}
	if code := decodeErrCode(t, res); code != "forbidden" {
		t.Fatalf("error code = %s", code)
	}
}

func TestOversellReturnsInsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SalesOrderCreateRequest{
		BranchID: "branch-main",
		Customer: domain.Customer{Name: "Rudi"},
		Items: []domain.SalesItemRequest{
			{ProductID: "prd-oil-filter", Quantity: 100000},
		},
		Method: "cash",
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body %s", res.Code, res.Body.String())
	}
	if code := decodeErrCode(t, res); code != "insufficient_stock" {
		t.Fatalf("error code = %s", code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 5; i++ {
		res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "admin",
			Password: fmt.Sprintf("wrong-%d", i),
		})
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, res.Code)
		}
	}

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", res.Code)
	}
	if code := decodeErrCode(t, res); code != "rate_limited" {
		t.Fatalf("error code = %s", code)
	}
}
