// Package client is the typed HTTP client for the viandas sale store: the
// query and mutation services the staff and customer screens run on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"viandas/backend/internal/domain"
)

// AuthContext carries the bearer token attached to every call. It is an
// explicit value handed to the client constructor, never ambient state.
type AuthContext struct {
	Token string
}

type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthContext
}

func New(baseURL string, auth AuthContext) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		auth:    auth,
	}
}

// WithAuth returns a copy of the client bound to a different token. The
// underlying http.Client is shared.
func (c *Client) WithAuth(auth AuthContext) *Client {
	out := *c
	out.auth = auth
	return &out
}

// Login exchanges credentials for a token. Callers typically feed the
// result into WithAuth.
func (c *Client) Login(ctx context.Context, email string, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, OpLogin, http.MethodPost, "/auth/login", nil,
		domain.LoginRequest{Email: email, Password: password}, &resp)
	return resp, err
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, OpListProducts, http.MethodGet, "/products/", nil, nil, &products)
	return products, err
}

// ListRequested returns sales not yet confirmed and not registered.
func (c *Client) ListRequested(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := c.do(ctx, OpListRequested, http.MethodGet, "/sales/pedidos-solicitados", nil, nil, &sales)
	return sales, err
}

// ListPendingPickup returns sales confirmed but not yet registered.
func (c *Client) ListPendingPickup(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := c.do(ctx, OpListPendingPickup, http.MethodGet, "/sales/pendientes-retiro", nil, nil, &sales)
	return sales, err
}

// ListFinalized returns registered sales; a non-empty date (YYYY-MM-DD)
// restricts to sales created on that date.
func (c *Client) ListFinalized(ctx context.Context, date string) ([]domain.Sale, error) {
	var query url.Values
	if date != "" {
		query = url.Values{"sale_date": {date}}
	}
	var sales []domain.Sale
	err := c.do(ctx, OpListFinalized, http.MethodGet, "/sales/ventas", query, nil, &sales)
	return sales, err
}

func (c *Client) ListForCurrentUser(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := c.do(ctx, OpListMine, http.MethodGet, "/sales/user", nil, nil, &sales)
	return sales, err
}

func (c *Client) ListReadyForPickup(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := c.do(ctx, OpListMine, http.MethodGet, "/sales/my-orders/ready-for-pickup", nil, nil, &sales)
	return sales, err
}

func (c *Client) CreateOnline(ctx context.Context, draft SaleDraft) (domain.Sale, error) {
	return c.createSale(ctx, OpCreateOnline, "/sales/online", draft)
}

func (c *Client) CreateManualTill(ctx context.Context, draft SaleDraft) (domain.Sale, error) {
	return c.createSale(ctx, OpCreateTill, "/sales/ventas/caja", draft)
}

func (c *Client) createSale(ctx context.Context, op Op, path string, draft SaleDraft) (domain.Sale, error) {
	// Checked before any HTTP call so an empty cart never reaches the store.
	if err := draft.validate(); err != nil {
		return domain.Sale{}, &Error{Op: op, Err: err}
	}

	var sale domain.Sale
	err := c.do(ctx, op, http.MethodPost, path, nil, draft.withDefaults().request(), &sale)
	return sale, err
}

func (c *Client) Confirm(ctx context.Context, saleID int64) (domain.Sale, error) {
	return c.saleAction(ctx, OpConfirm, saleID, "confirm")
}

func (c *Client) MarkPaid(ctx context.Context, saleID int64) (domain.Sale, error) {
	return c.saleAction(ctx, OpMarkPaid, saleID, "pagado")
}

func (c *Client) RegisterPickup(ctx context.Context, saleID int64) (domain.Sale, error) {
	return c.saleAction(ctx, OpRegisterPickup, saleID, "register")
}

func (c *Client) saleAction(ctx context.Context, op Op, saleID int64, action string) (domain.Sale, error) {
	var sale domain.Sale
	err := c.do(ctx, op, http.MethodPut, fmt.Sprintf("/sales/%d/%s", saleID, action), nil, nil, &sale)
	return sale, err
}

func (c *Client) do(ctx context.Context, op Op, method string, path string, query url.Values, body any, dest any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Error{Op: op, Status: resp.StatusCode, Detail: decodeDetail(resp)}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

// decodeDetail extracts the store's {"detail": ...} error body; an empty
// string means the body was unreadable or not in that shape.
func decodeDetail(resp *http.Response) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Detail)
}
