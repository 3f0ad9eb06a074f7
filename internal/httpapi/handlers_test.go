package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"viandas/backend/internal/cache"
	"viandas/backend/internal/domain"
	"viandas/backend/internal/service"
	"viandas/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, time.Second)
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, repo)

	return New(svc, auth, "*", t.TempDir(), 5)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, email, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email:    email,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", email, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "bearer" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	return resp.AccessToken
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Detail
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email:    "admin@viandas.local",
		Password: "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if detail := decodeDetail(t, rec); detail == "" {
		t.Fatalf("expected detail in error body")
	}
}

func TestRegisterLoginAndProfile(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/users/", "", domain.RegisterRequest{
		Name:     "Marta",
		Apellido: "López",
		Email:    "marta@example.com",
		Password: "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d (%s)", rec.Code, rec.Body.String())
	}

	// Duplicate email is rejected with a user-facing detail.
	rec = doJSON(t, handler, http.MethodPost, "/users/", "", domain.RegisterRequest{
		Name:     "Marta",
		Email:    "marta@example.com",
		Password: "secret1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", rec.Code)
	}
	if detail := decodeDetail(t, rec); detail != "el email ya está registrado" {
		t.Fatalf("unexpected duplicate detail %q", detail)
	}

	token := login(t, handler, "marta@example.com", "secret1")

	rec = doJSON(t, handler, http.MethodGet, "/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile failed: %d", rec.Code)
	}
	var me domain.User
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if me.Email != "marta@example.com" || me.Role != domain.RoleUser {
		t.Fatalf("unexpected profile %+v", me)
	}

	celular := "11-5555-0000"
	rec = doJSON(t, handler, http.MethodPut, "/users/me", token, domain.ProfileUpdateRequest{Celular: &celular})
	if rec.Code != http.StatusOK {
		t.Fatalf("profile update failed: %d (%s)", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode updated profile: %v", err)
	}
	if me.Celular != celular {
		t.Fatalf("expected updated celular, got %q", me.Celular)
	}
}

func TestProductsListIsPublicButWritesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/products/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public product list failed: %d", rec.Code)
	}
	var products []domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("expected seeded products")
	}

	rec = doJSON(t, handler, http.MethodPost, "/products/", "", map[string]any{
		"nombre": "Sopa", "precioActual": 1000, "stock": 5, "stockMinimo": 1,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	userToken := login(t, handler, "clara@example.com", "cliente123")
	rec = doJSON(t, handler, http.MethodPost, "/products/", userToken, map[string]any{
		"nombre": "Sopa", "precioActual": 1000, "stock": 5, "stockMinimo": 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	adminToken := login(t, handler, "admin@viandas.local", "admin123")
	rec = doJSON(t, handler, http.MethodPost, "/products/", adminToken, map[string]any{
		"nombre": "Sopa de calabaza", "precioActual": 2800, "stock": 5, "stockMinimo": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create product failed: %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	userToken := login(t, handler, "clara@example.com", "cliente123")
	adminToken := login(t, handler, "admin@viandas.local", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/sales/online", userToken, map[string]any{
		"line_of_sales": []map[string]any{{"product_id": 1, "cantidad": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.MedioPago != domain.PaymentCash {
		t.Fatalf("expected default Efectivo, got %q", sale.MedioPago)
	}

	rec = doJSON(t, handler, http.MethodGet, "/sales/pedidos-solicitados", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("requested partition failed: %d", rec.Code)
	}
	var requested []domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&requested); err != nil {
		t.Fatalf("decode requested: %v", err)
	}
	if len(requested) != 1 || requested[0].ID != sale.ID {
		t.Fatalf("expected the new sale in requested partition")
	}

	// Register before confirm conflicts.
	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/sales/%d/register", sale.ID), adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 registering unconfirmed sale, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/sales/%d/confirm", sale.ID), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/sales/%d/confirm", sale.ID), adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second confirm, got %d", rec.Code)
	}
	if detail := decodeDetail(t, rec); detail == "" {
		t.Fatalf("expected conflict detail")
	}

	rec = doJSON(t, handler, http.MethodGet, "/sales/my-orders/ready-for-pickup", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready-for-pickup failed: %d", rec.Code)
	}
	var ready []domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != sale.ID {
		t.Fatalf("expected confirmed sale ready for pickup")
	}

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/sales/%d/pagado", sale.ID), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/sales/%d/register", sale.ID), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register failed: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/sales/ventas?sale_date="+sale.Date, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalized partition failed: %d", rec.Code)
	}
	var finalized []domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&finalized); err != nil {
		t.Fatalf("decode finalized: %v", err)
	}
	if len(finalized) != 1 || !finalized[0].Paid || !finalized[0].SaleInRegister {
		t.Fatalf("expected paid, registered sale in finalized partition")
	}
}

func TestCreateSaleInsufficientStockDetail(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	userToken := login(t, handler, "clara@example.com", "cliente123")

	rec := doJSON(t, handler, http.MethodPost, "/sales/online", userToken, map[string]any{
		"line_of_sales": []map[string]any{{"product_id": 6, "cantidad": 999}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	if detail := decodeDetail(t, rec); detail != "Stock insuficiente para Pastel de papa: stock insuficiente" {
		t.Fatalf("unexpected stock detail %q", detail)
	}
}

func TestAdminPartitionsForbiddenForCustomers(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	userToken := login(t, handler, "clara@example.com", "cliente123")

	for _, path := range []string{
		"/sales/pedidos-solicitados",
		"/sales/pendientes-retiro",
		"/sales/ventas",
		"/products/low-stock",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, userToken, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for %s, got %d", path, rec.Code)
		}
	}
}

func TestSaleActionUnknownIDReturns404(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := login(t, handler, "admin@viandas.local", "admin123")

	rec := doJSON(t, handler, http.MethodPut, "/sales/9999/confirm", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateSaleRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	userToken := login(t, handler, "clara@example.com", "cliente123")

	rec := doJSON(t, handler, http.MethodPost, "/sales/online", userToken, map[string]any{
		"line_of_sales": []map[string]any{{"product_id": 1, "cantidad": 1}},
		"surprise":      true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestTillSaleRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	userToken := login(t, handler, "clara@example.com", "cliente123")
	adminToken := login(t, handler, "admin@viandas.local", "admin123")

	payload := map[string]any{
		"medioPago":     domain.PaymentTransfer,
		"line_of_sales": []map[string]any{{"product_id": 2, "cantidad": 1}},
	}

	rec := doJSON(t, handler, http.MethodPost, "/sales/ventas/caja", userToken, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer till sale, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/sales/ventas/caja", adminToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("till sale failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode till sale: %v", err)
	}
	if sale.User != nil {
		t.Fatalf("expected till sale without requester")
	}
}
