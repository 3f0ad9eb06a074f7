package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"viandas/backend/internal/domain"
	"viandas/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	usersByID     map[int64]domain.UserAccount
	userIDByEmail map[string]int64
	productsByID  map[int64]domain.Product
	salesByID     map[int64]domain.Sale
	saleUserIDs   map[int64]int64
	nextUserID    int64
	nextProductID int64
	nextSaleID    int64
	nextLineID    int64
}

func New() *Store {
	return &Store{
		usersByID:     make(map[int64]domain.UserAccount),
		userIDByEmail: make(map[string]int64),
		productsByID:  make(map[int64]domain.Product),
		salesByID:     make(map[int64]domain.Sale),
		saleUserIDs:   make(map[int64]int64),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Passwords come
// from SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD; hardcoded dev defaults
// are used with a warning when unset. Production deployments run against
// PostgreSQL (DATABASE_URL set) and never hit this path.
func seedUsers(s *Store) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	userPwd := envOr("SEED_USER_PASSWORD", "cliente123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	for _, u := range []struct {
		name     string
		apellido string
		email    string
		password string
		role     string
	}{
		{"Admin", "Viandas", "admin@viandas.local", adminPwd, domain.RoleAdmin},
		{"Clara", "Gómez", "clara@example.com", userPwd, domain.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		if _, err := s.CreateUser(context.Background(), domain.UserAccount{
			Name:           u.name,
			Apellido:       u.apellido,
			Email:          u.email,
			HashedPassword: string(hash),
			IsActive:       true,
			Role:           u.role,
		}); err != nil {
			log.Fatalf("[memory-store] failed to seed user %s: %v", u.email, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	seedUsers(s)

	products := []domain.Product{
		{Nombre: "Milanesas con puré", PrecioActual: decimal.NewFromInt(4500), Detalle: "Porción individual", MostrarEnSistema: true, Stock: 24, StockMinimo: 6, IsActive: true},
		{Nombre: "Tarta de verdura", PrecioActual: decimal.NewFromInt(3800), MostrarEnSistema: true, Stock: 18, StockMinimo: 4, IsActive: true},
		{Nombre: "Canelones de ricota", PrecioActual: decimal.NewFromInt(5200), Detalle: "Con salsa bolognesa", MostrarEnSistema: true, Stock: 12, StockMinimo: 4, IsActive: true},
		{Nombre: "Empanadas de carne x6", PrecioActual: decimal.NewFromInt(4200), MostrarEnSistema: true, Stock: 30, StockMinimo: 8, IsActive: true},
		{Nombre: "Guiso de lentejas", PrecioActual: decimal.NewFromInt(3900), MostrarEnSistema: true, Stock: 10, StockMinimo: 3, IsActive: true},
		{Nombre: "Pastel de papa", PrecioActual: decimal.NewFromInt(4700), MostrarEnSistema: true, Stock: 8, StockMinimo: 3, IsActive: true},
	}
	for _, p := range products {
		if _, err := s.CreateProduct(context.Background(), p); err != nil {
			log.Fatalf("[memory-store] failed to seed product %s: %v", p.Nombre, err)
		}
	}
	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.HashedPassword == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIDByEmail[email]; exists {
		return nil, store.ErrDuplicateEmail
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.Email = email
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	s.usersByID[user.ID] = user
	s.userIDByEmail[email] = user.ID

	saved := user
	return &saved, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, id int64, req domain.ProfileUpdateRequest) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Apellido != nil {
		user.Apellido = strings.TrimSpace(*req.Apellido)
	}
	if req.Celular != nil {
		user.Celular = strings.TrimSpace(*req.Celular)
	}
	s.usersByID[id] = user
	return &user, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !p.IsActive {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Nombre) == "" || product.PrecioActual.Sign() <= 0 || product.Stock < 0 || product.StockMinimo < 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	product.ID = s.nextProductID
	product.IsActive = true
	s.productsByID[product.ID] = product

	saved := product
	return &saved, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.productsByID[product.ID] = product

	saved := product
	return &saved, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, userID *int64, lines []domain.SaleLineRequest) (*domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		if line.Cantidad < 1 {
			return nil, store.ErrInvalidSale
		}
		product, ok := s.productsByID[line.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("producto %d: %w", line.ProductID, store.ErrNotFound)
		}
		if product.Stock < line.Cantidad {
			return nil, fmt.Errorf("Stock insuficiente para %s: %w", product.Nombre, store.ErrInsufficientStock)
		}
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	sale.QuantityProduct = len(lines)
	sale.OrderConfirmed = false
	sale.SaleInRegister = false
	sale.Lines = make([]domain.LineOfSale, 0, len(lines))

	for i, line := range lines {
		product := s.productsByID[line.ProductID]
		product.Stock -= line.Cantidad
		s.productsByID[line.ProductID] = product

		s.nextLineID++
		sale.Lines = append(sale.Lines, domain.LineOfSale{
			ID:            s.nextLineID,
			Cantidad:      line.Cantidad,
			NumeroDeLinea: i + 1,
			Precio:        product.PrecioActual,
			Product:       product,
		})
	}

	if userID != nil {
		user, ok := s.usersByID[*userID]
		if !ok {
			return nil, store.ErrNotFound
		}
		public := user.Public()
		sale.User = &public
		s.saleUserIDs[sale.ID] = *userID
	}

	s.salesByID[sale.ID] = sale
	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) ListRequested(_ context.Context) ([]domain.Sale, error) {
	return s.listWhere(func(sale domain.Sale) bool {
		return !sale.OrderConfirmed && !sale.SaleInRegister
	}), nil
}

func (s *Store) ListPendingPickup(_ context.Context) ([]domain.Sale, error) {
	return s.listWhere(func(sale domain.Sale) bool {
		return sale.OrderConfirmed && !sale.SaleInRegister
	}), nil
}

func (s *Store) ListFinalized(_ context.Context, saleDate string) ([]domain.Sale, error) {
	return s.listWhere(func(sale domain.Sale) bool {
		if !sale.SaleInRegister {
			return false
		}
		return saleDate == "" || sale.Date == saleDate
	}), nil
}

func (s *Store) ListSalesByUser(_ context.Context, userID int64) ([]domain.Sale, error) {
	return s.listWhere(func(sale domain.Sale) bool {
		return s.saleUserIDs[sale.ID] == userID && sale.User != nil
	}), nil
}

func (s *Store) ListReadyForPickupByUser(_ context.Context, userID int64) ([]domain.Sale, error) {
	return s.listWhere(func(sale domain.Sale) bool {
		return s.saleUserIDs[sale.ID] == userID && sale.User != nil &&
			sale.OrderConfirmed && !sale.SaleInRegister
	}), nil
}

func (s *Store) listWhere(keep func(domain.Sale) bool) []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.salesByID {
		if keep(sale) {
			sales = append(sales, cloneSale(sale))
		}
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID < sales[j].ID })
	return sales
}

func (s *Store) ConfirmSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.SaleInRegister {
		return nil, fmt.Errorf("la venta %d ya fue registrada en caja: %w", id, store.ErrConflict)
	}
	if sale.OrderConfirmed {
		return nil, fmt.Errorf("el pedido %d ya fue confirmado: %w", id, store.ErrConflict)
	}
	sale.OrderConfirmed = true
	s.salesByID[id] = sale

	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) MarkSalePaid(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Paid = true
	s.salesByID[id] = sale

	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) RegisterSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !sale.OrderConfirmed {
		return nil, fmt.Errorf("el pedido %d todavía no fue confirmado: %w", id, store.ErrConflict)
	}
	if sale.SaleInRegister {
		return nil, fmt.Errorf("la venta %d ya fue registrada en caja: %w", id, store.ErrConflict)
	}
	sale.SaleInRegister = true
	s.salesByID[id] = sale

	saved := cloneSale(sale)
	return &saved, nil
}

// cloneSale deep-copies the slices and pointers so callers never share
// mutable state with the store's maps.
func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Lines = make([]domain.LineOfSale, len(sale.Lines))
	copy(out.Lines, sale.Lines)
	if sale.Observation != nil {
		obs := *sale.Observation
		out.Observation = &obs
	}
	if sale.User != nil {
		user := *sale.User
		out.User = &user
	}
	return out
}

var _ store.Repository = (*Store)(nil)
