package store

import (
	"context"
	"errors"

	"viandas/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrInvalidSale       = errors.New("invalid sale")
	// ErrConflict covers lifecycle precondition violations, e.g. confirming
	// a sale that is already confirmed or registering one that is not.
	ErrConflict       = errors.New("conflicting sale state")
	ErrDuplicateEmail = errors.New("email already registered")
)

type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id int64) (*domain.UserAccount, error)
	UpdateUserProfile(ctx context.Context, id int64, req domain.ProfileUpdateRequest) (*domain.UserAccount, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// CreateSale persists a sale with its lines, capturing each line's price
	// from the current product price and decrementing stock atomically.
	// userID is nil for manual till sales.
	CreateSale(ctx context.Context, sale domain.Sale, userID *int64, lines []domain.SaleLineRequest) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)

	ListRequested(ctx context.Context) ([]domain.Sale, error)
	ListPendingPickup(ctx context.Context) ([]domain.Sale, error)
	// ListFinalized returns registered sales; saleDate ("YYYY-MM-DD")
	// restricts to sales created on that date, empty means all.
	ListFinalized(ctx context.Context, saleDate string) ([]domain.Sale, error)
	ListSalesByUser(ctx context.Context, userID int64) ([]domain.Sale, error)
	ListReadyForPickupByUser(ctx context.Context, userID int64) ([]domain.Sale, error)

	ConfirmSale(ctx context.Context, id int64) (*domain.Sale, error)
	MarkSalePaid(ctx context.Context, id int64) (*domain.Sale, error)
	RegisterSale(ctx context.Context, id int64) (*domain.Sale, error)
}
