package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as bare JSON numbers on the wire, not decimal's
	// default quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	PaymentCash     = "Efectivo"
	PaymentTransfer = "Transferencia"
)

// DateFormat is the calendar-date wire format used everywhere a sale date
// travels (responses and the sale_date query parameter).
const DateFormat = time.DateOnly

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Apellido string `json:"apellido,omitempty"`
	Email    string `json:"email"`
	Celular  string `json:"celular,omitempty"`
	IsActive bool   `json:"is_active"`
	Role     string `json:"role"`
}

// UserAccount is the internal persistence model for a user, credentials
// included. Never serialized to the wire.
type UserAccount struct {
	ID             int64
	Name           string
	Apellido       string
	Email          string
	Celular        string
	HashedPassword string
	IsActive       bool
	Role           string
}

func (u UserAccount) Public() User {
	return User{
		ID:       u.ID,
		Name:     u.Name,
		Apellido: u.Apellido,
		Email:    u.Email,
		Celular:  u.Celular,
		IsActive: u.IsActive,
		Role:     u.Role,
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Apellido string `json:"apellido,omitempty"`
	Email    string `json:"email"`
	Celular  string `json:"celular,omitempty"`
	Password string `json:"password"`
}

type ProfileUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Apellido *string `json:"apellido,omitempty"`
	Celular  *string `json:"celular,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated caller of a request.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

type Product struct {
	ID               int64           `json:"id"`
	Nombre           string          `json:"nombre"`
	PrecioActual     decimal.Decimal `json:"precioActual"`
	Detalle          string          `json:"detalle,omitempty"`
	MostrarEnSistema bool            `json:"mostrarEnSistema"`
	Foto             string          `json:"foto,omitempty"`
	Stock            int             `json:"stock"`
	StockMinimo      int             `json:"stockMinimo"`
	IsActive         bool            `json:"is_active"`
}

type ProductCreateRequest struct {
	Nombre           string          `json:"nombre"`
	PrecioActual     decimal.Decimal `json:"precioActual"`
	Detalle          string          `json:"detalle,omitempty"`
	MostrarEnSistema *bool           `json:"mostrarEnSistema,omitempty"`
	Foto             string          `json:"foto,omitempty"`
	Stock            int             `json:"stock"`
	StockMinimo      int             `json:"stockMinimo"`
}

type ProductUpdateRequest struct {
	Nombre           *string          `json:"nombre,omitempty"`
	PrecioActual     *decimal.Decimal `json:"precioActual,omitempty"`
	Detalle          *string          `json:"detalle,omitempty"`
	MostrarEnSistema *bool            `json:"mostrarEnSistema,omitempty"`
	Foto             *string          `json:"foto,omitempty"`
	Stock            *int             `json:"stock,omitempty"`
	StockMinimo      *int             `json:"stockMinimo,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"`
}

type UploadImageResponse struct {
	Filename string `json:"filename"`
}

// Sale is a customer order or a manual till transaction. Its three flags
// advance monotonically: SaleInRegister implies OrderConfirmed, and Paid
// moves independently of both.
type Sale struct {
	ID              int64        `json:"id"`
	QuantityProduct int          `json:"quantity_product"`
	Observation     *string      `json:"observation"`
	Date            string       `json:"date"`
	OrderConfirmed  bool         `json:"order_confirmed"`
	SaleInRegister  bool         `json:"sale_in_register"`
	MedioPago       string       `json:"medioPago,omitempty"`
	Paid            bool         `json:"pagado"`
	User            *User        `json:"user,omitempty"`
	Lines           []LineOfSale `json:"line_of_sales"`
}

// LineOfSale is one product-quantity pair inside a Sale. Precio is the
// product price captured at creation time, not the live catalog price.
type LineOfSale struct {
	ID            int64           `json:"id"`
	Cantidad      int             `json:"cantidad"`
	NumeroDeLinea int             `json:"numeroDeLinea"`
	Precio        decimal.Decimal `json:"precio"`
	Product       Product         `json:"product"`
}

type SaleLineRequest struct {
	ProductID int64 `json:"product_id"`
	Cantidad  int   `json:"cantidad"`
}

type SaleCreateRequest struct {
	Observation *string           `json:"observation"`
	MedioPago   string            `json:"medioPago,omitempty"`
	Lines       []SaleLineRequest `json:"line_of_sales"`
}

type LowStockProduct struct {
	Product Product `json:"product"`
	Missing int     `json:"missing"`
}
