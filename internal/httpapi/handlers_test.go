package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"cosmoshop/backend/internal/domain"
	"cosmoshop/backend/internal/service"
	"cosmoshop/backend/internal/store/memory"
	"cosmoshop/backend/internal/tax"
)

const testSecret = "test-secret-test-secret-test-secret!"

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.New()
	policy, err := tax.NewFlatRate(decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	svc := service.New(repo, policy, nil)
	return New(svc, NewTokenVerifier(testSecret), "http://127.0.0.1:3000")
}

func mintToken(t *testing.T, username string, role string) string {
	t.Helper()
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(time.Now().UTC().Add(time.Hour)),
		},
		Role: role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func createTestProduct(t *testing.T, handler http.Handler, owner string, sku string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", owner, map[string]any{
		"sku":               sku,
		"name":              "Velvet Matte Lipstick",
		"brand":             "Aurea",
		"category":          "LIPS",
		"cost_price":        "10.00",
		"selling_price":     "18.00",
		"restock_threshold": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
}

func receiveTestStock(t *testing.T, handler http.Handler, token string, sku string, qty int) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/receipts", token, map[string]any{
		"sku":        sku,
		"quantity":   qty,
		"cost_price": "10.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("receive stock: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
}

func TestProductLifecycle(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := mintToken(t, "meera", domain.RoleOwner)
	employee := mintToken(t, "priya", domain.RoleEmployee)

	createTestProduct(t, handler, owner, "LIP-001")

	// Duplicate SKU conflicts.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", owner, map[string]any{
		"sku": "LIP-001", "name": "x", "brand": "y", "category": "LIPS",
		"cost_price": "1.00", "selling_price": "2.00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate sku status = %d, want 409", rec.Code)
	}

	// Employees can read but not create.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/LIP-001", employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("employee get status = %d, want 200", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", employee, map[string]any{
		"sku": "LIP-002", "name": "x", "brand": "y", "category": "LIPS",
		"cost_price": "1.00", "selling_price": "2.00",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee create status = %d, want 403", rec.Code)
	}

	// Patch price.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/products/LIP-001", owner, map[string]any{
		"selling_price": "25.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body %s", rec.Code, rec.Body.String())
	}
	var patched struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &patched)
	if !patched.Product.SellingPrice.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("patched price = %s, want 25.00", patched.Product.SellingPrice)
	}

	// Unreferenced product deletes cleanly.
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/LIP-001", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/LIP-001", employee, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := mintToken(t, "meera", domain.RoleOwner)
	employee := mintToken(t, "priya", domain.RoleEmployee)

	createTestProduct(t, handler, owner, "LIP-001")
	receiveTestStock(t, handler, employee, "LIP-001", 10)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", employee, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"sku": "LIP-001", "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale status = %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, rec, &created)
	if !domain.ValidOrderID(created.Sale.OrderID) {
		t.Fatalf("order id %q has wrong format", created.Sale.OrderID)
	}
	if !created.Sale.Total.Equal(decimal.RequireFromString("36.00")) {
		t.Fatalf("total = %s, want 36.00", created.Sale.Total)
	}

	// Fetch by order id.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+created.Sale.OrderID, employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale status = %d", rec.Code)
	}

	// Oversell is a conflict.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", employee, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"sku": "LIP-001", "quantity": 50}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}

	// Only owners delete sales.
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+created.Sale.OrderID, employee, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee delete status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+created.Sale.OrderID, owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete status = %d, want 200", rec.Code)
	}
}

func TestSaleValidation(t *testing.T) {
	handler := newTestAPI(t).Handler()
	employee := mintToken(t, "priya", domain.RoleEmployee)

	// Empty items fail struct validation.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", employee, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty items status = %d, want 400", rec.Code)
	}

	// Unknown fields are rejected.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", employee, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"sku": "LIP-001", "quantity": 1}},
		"surprise":       true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", rec.Code)
	}

	// Unknown product is 404.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", employee, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"sku": "NOPE-404", "quantity": 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestReceiptListAndFilters(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := mintToken(t, "meera", domain.RoleOwner)
	employee := mintToken(t, "priya", domain.RoleEmployee)

	createTestProduct(t, handler, owner, "LIP-001")
	receiveTestStock(t, handler, employee, "LIP-001", 4)
	receiveTestStock(t, handler, employee, "LIP-001", 6)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/receipts?sku=LIP-001", employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Receipts []domain.StockReceipt `json:"receipts"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Receipts) != 2 {
		t.Fatalf("got %d receipts, want 2", len(listed.Receipts))
	}
	if listed.Receipts[0].ReceivedBy != "priya" {
		t.Fatalf("received_by = %q, want token subject", listed.Receipts[0].ReceivedBy)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/receipts?from=2099-01-01", employee, nil)
	decodeBody(t, rec, &listed)
	if len(listed.Receipts) != 0 {
		t.Fatalf("future filter returned %d receipts, want 0", len(listed.Receipts))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/receipts?from=bogus", employee, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad time filter status = %d, want 400", rec.Code)
	}
}

func TestRestockAlertsEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := mintToken(t, "meera", domain.RoleOwner)

	createTestProduct(t, handler, owner, "LIP-001") // stock 0, threshold 5

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/restock-alerts", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var report domain.RestockReport
	decodeBody(t, rec, &report)
	if len(report.Alerts) != 1 || report.Alerts[0].SKU != "LIP-001" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestDeleteReferencedProductConflicts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := mintToken(t, "meera", domain.RoleOwner)
	employee := mintToken(t, "priya", domain.RoleEmployee)

	createTestProduct(t, handler, owner, "LIP-001")
	receiveTestStock(t, handler, employee, "LIP-001", 5)

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/products/LIP-001", owner, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced product status = %d, want 409", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t).Handler()
	employee := mintToken(t, "priya", domain.RoleEmployee)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/products", employee, map[string]any{})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
