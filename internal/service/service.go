package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"viandas/backend/internal/cache"
	"viandas/backend/internal/domain"
	"viandas/backend/internal/store"
)

var (
	// ErrUnauthenticated is returned when an operation needs an actor and
	// the context carries none.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the actor lacks the required role.
	ErrForbidden = errors.New("admin role required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = time.Minute
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		catalogTTL: catalogTTL,
	}
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return user.Public(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, req domain.ProfileUpdateRequest) (domain.User, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return domain.User{}, fmt.Errorf("el nombre no puede quedar vacío: %w", store.ErrInvalidSale)
	}
	user, err := s.repo.UpdateUserProfile(ctx, id, req)
	if err != nil {
		return domain.User{}, err
	}
	return user.Public(), nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.catalog.GetProducts(ctx); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetProducts(ctx, products, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Nombre = strings.TrimSpace(req.Nombre)
	if req.Nombre == "" || req.PrecioActual.Sign() <= 0 || req.Stock < 0 || req.StockMinimo < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	mostrar := true
	if req.MostrarEnSistema != nil {
		mostrar = *req.MostrarEnSistema
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Nombre:           req.Nombre,
		PrecioActual:     req.PrecioActual,
		Detalle:          strings.TrimSpace(req.Detalle),
		MostrarEnSistema: mostrar,
		Foto:             strings.TrimSpace(req.Foto),
		Stock:            req.Stock,
		StockMinimo:      req.StockMinimo,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Nombre != nil {
		nombre := strings.TrimSpace(*req.Nombre)
		if nombre == "" {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Nombre = nombre
	}
	if req.PrecioActual != nil {
		if req.PrecioActual.Sign() <= 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.PrecioActual = *req.PrecioActual
	}
	if req.Detalle != nil {
		updated.Detalle = strings.TrimSpace(*req.Detalle)
	}
	if req.MostrarEnSistema != nil {
		updated.MostrarEnSistema = *req.MostrarEnSistema
	}
	if req.Foto != nil {
		updated.Foto = strings.TrimSpace(*req.Foto)
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Stock = *req.Stock
	}
	if req.StockMinimo != nil {
		if *req.StockMinimo < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.StockMinimo = *req.StockMinimo
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	return *saved, nil
}

// LowStockProducts reports active products whose stock fell under their
// configured minimum.
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]domain.LowStockProduct, 0, 4)
	for _, p := range products {
		if p.Stock < p.StockMinimo {
			low = append(low, domain.LowStockProduct{Product: p, Missing: p.StockMinimo - p.Stock})
		}
	}
	return low, nil
}

// CreateOnlineSale records an order placed by the authenticated customer.
// MedioPago defaults to Efectivo when the customer picked nothing.
func (s *Service) CreateOnlineSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, ErrUnauthenticated
	}

	userID := actor.UserID
	return s.createSale(ctx, req, &userID)
}

// CreateTillSale records an in-person sale entered by staff: no requester.
func (s *Service) CreateTillSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	return s.createSale(ctx, req, nil)
}

func (s *Service) createSale(ctx context.Context, req domain.SaleCreateRequest, userID *int64) (domain.Sale, error) {
	if len(req.Lines) == 0 {
		return domain.Sale{}, fmt.Errorf("debe incluir al menos un producto con cantidad mayor a cero: %w", store.ErrInvalidSale)
	}
	for _, line := range req.Lines {
		if line.Cantidad < 1 {
			return domain.Sale{}, fmt.Errorf("cantidad inválida para el producto %d: %w", line.ProductID, store.ErrInvalidSale)
		}
	}

	medioPago := strings.TrimSpace(req.MedioPago)
	if medioPago == "" {
		medioPago = domain.PaymentCash
	}
	if medioPago != domain.PaymentCash && medioPago != domain.PaymentTransfer {
		return domain.Sale{}, fmt.Errorf("medio de pago desconocido %q: %w", medioPago, store.ErrInvalidSale)
	}

	var observation *string
	if req.Observation != nil {
		if trimmed := strings.TrimSpace(*req.Observation); trimmed != "" {
			observation = &trimmed
		}
	}

	sale := domain.Sale{
		Observation: observation,
		Date:        time.Now().Format(domain.DateFormat),
		MedioPago:   medioPago,
	}

	created, err := s.repo.CreateSale(ctx, sale, userID, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateCatalog(ctx)
	log.Printf("[service] sale %d created (%d lines)", created.ID, len(created.Lines))
	return *created, nil
}

func (s *Service) ListRequested(ctx context.Context) ([]domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListRequested(ctx)
}

func (s *Service) ListPendingPickup(ctx context.Context) ([]domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPendingPickup(ctx)
}

func (s *Service) ListFinalized(ctx context.Context, saleDate string) ([]domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if saleDate != "" {
		if _, err := time.Parse(domain.DateFormat, saleDate); err != nil {
			return nil, fmt.Errorf("fecha inválida %q: %w", saleDate, store.ErrInvalidSale)
		}
	}
	return s.repo.ListFinalized(ctx, saleDate)
}

func (s *Service) ListMySales(ctx context.Context) ([]domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListSalesByUser(ctx, actor.UserID)
}

func (s *Service) ListMyReadyForPickup(ctx context.Context) ([]domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListReadyForPickupByUser(ctx, actor.UserID)
}

func (s *Service) ConfirmSale(ctx context.Context, id int64) (domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.ConfirmSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	log.Printf("[service] sale %d confirmed", id)
	return *sale, nil
}

func (s *Service) MarkSalePaid(ctx context.Context, id int64) (domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.MarkSalePaid(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	log.Printf("[service] sale %d marked as paid", id)
	return *sale, nil
}

func (s *Service) RegisterSale(ctx context.Context, id int64) (domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.RegisterSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	log.Printf("[service] sale %d registered in till", id)
	return *sale, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// invalidateCatalog drops the cached catalog; sale creation changes stock,
// product mutations change everything else.
func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: catalog cache invalidation failed: %v", err)
	}
}
