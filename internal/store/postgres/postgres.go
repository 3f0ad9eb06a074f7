package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"viandas/backend/internal/domain"
	"viandas/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.HashedPassword == "" {
		return nil, store.ErrInvalidSale
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, apellido, email, celular, hashed_password, is_active, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, user.Name, user.Apellido, email, user.Celular, user.HashedPassword, user.IsActive, user.Role).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}

	user.Email = email
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, apellido, email, celular, hashed_password, is_active, role
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, apellido, email, celular, hashed_password, is_active, role
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) scanUser(row *sql.Row) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var apellido, celular sql.NullString
	err := row.Scan(&user.ID, &user.Name, &apellido, &user.Email, &celular, &user.HashedPassword, &user.IsActive, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Apellido = apellido.String
	user.Celular = celular.String
	return &user, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id int64, req domain.ProfileUpdateRequest) (*domain.UserAccount, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
		    apellido = COALESCE($3, apellido),
		    celular = COALESCE($4, celular)
		WHERE id = $1
	`, id, req.Name, req.Apellido, req.Celular)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nombre, precio_actual, detalle, mostrar_en_sistema, foto, stock, stock_minimo, is_active
		FROM products
		WHERE is_active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var detalle, foto sql.NullString
	err := row.Scan(&p.ID, &p.Nombre, &p.PrecioActual, &detalle, &p.MostrarEnSistema, &foto, &p.Stock, &p.StockMinimo, &p.IsActive)
	if err != nil {
		return domain.Product{}, err
	}
	p.Detalle = detalle.String
	p.Foto = foto.String
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id, nombre, precio_actual, detalle, mostrar_en_sistema, foto, stock, stock_minimo, is_active
		FROM products
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Nombre) == "" || product.PrecioActual.Sign() <= 0 || product.Stock < 0 || product.StockMinimo < 0 {
		return nil, store.ErrInvalidSale
	}

	product.IsActive = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (nombre, precio_actual, detalle, mostrar_en_sistema, foto, stock, stock_minimo, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, product.Nombre, product.PrecioActual, nullIfEmpty(product.Detalle), product.MostrarEnSistema,
		nullIfEmpty(product.Foto), product.Stock, product.StockMinimo, product.IsActive).Scan(&product.ID)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET nombre = $2, precio_actual = $3, detalle = $4, mostrar_en_sistema = $5,
		    foto = $6, stock = $7, stock_minimo = $8, is_active = $9
		WHERE id = $1
	`, product.ID, product.Nombre, product.PrecioActual, nullIfEmpty(product.Detalle),
		product.MostrarEnSistema, nullIfEmpty(product.Foto), product.Stock, product.StockMinimo, product.IsActive)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, userID *int64, lines []domain.SaleLineRequest) (*domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidSale
	}
	for _, line := range lines {
		if line.Cantidad < 1 {
			return nil, store.ErrInvalidSale
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (quantity_product, observation, sale_date, order_confirmed, sale_in_register, medio_pago, pagado, user_id)
		VALUES ($1,$2,$3,false,false,$4,false,$5)
		RETURNING id
	`, len(lines), sale.Observation, sale.Date, sale.MedioPago, userID).Scan(&saleID)
	if err != nil {
		return nil, err
	}

	for i, line := range lines {
		// Lock the product row, capture its current price and decrement
		// stock in one transaction so concurrent sales cannot oversell.
		var nombre string
		var stock int
		var precio string
		err = tx.QueryRowContext(ctx, `
			SELECT nombre, stock, precio_actual
			FROM products
			WHERE id = $1 AND is_active = true
			FOR UPDATE
		`, line.ProductID).Scan(&nombre, &stock, &precio)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("producto %d: %w", line.ProductID, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if stock < line.Cantidad {
			return nil, fmt.Errorf("Stock insuficiente para %s: %w", nombre, store.ErrInsufficientStock)
		}

		if _, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1
		`, line.ProductID, line.Cantidad); err != nil {
			return nil, err
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO line_of_sale (cantidad, numero_de_linea, precio, sale_id, product_id)
			VALUES ($1,$2,$3,$4,$5)
		`, line.Cantidad, i+1, precio, saleID, line.ProductID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSaleByID(ctx, saleID)
}

const saleColumns = `
	s.id, s.quantity_product, s.observation, s.sale_date, s.order_confirmed,
	s.sale_in_register, s.medio_pago, s.pagado, s.user_id
`

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, `WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) ListRequested(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE NOT s.order_confirmed AND NOT s.sale_in_register`)
}

func (s *Store) ListPendingPickup(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.order_confirmed AND NOT s.sale_in_register`)
}

func (s *Store) ListFinalized(ctx context.Context, saleDate string) ([]domain.Sale, error) {
	if saleDate == "" {
		return s.querySales(ctx, `WHERE s.sale_in_register`)
	}
	return s.querySales(ctx, `WHERE s.sale_in_register AND s.sale_date = $1`, saleDate)
}

func (s *Store) ListSalesByUser(ctx context.Context, userID int64) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.user_id = $1`, userID)
}

func (s *Store) ListReadyForPickupByUser(ctx context.Context, userID int64) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.user_id = $1 AND s.order_confirmed AND NOT s.sale_in_register`, userID)
}

func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		`+where+`
		ORDER BY s.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	userIDs := make(map[int64]int64)
	for rows.Next() {
		var sale domain.Sale
		var observation, medioPago sql.NullString
		var saleDate time.Time
		var userID sql.NullInt64
		if err := rows.Scan(&sale.ID, &sale.QuantityProduct, &observation, &saleDate,
			&sale.OrderConfirmed, &sale.SaleInRegister, &medioPago, &sale.Paid, &userID); err != nil {
			return nil, err
		}
		if observation.Valid {
			obs := observation.String
			sale.Observation = &obs
		}
		sale.MedioPago = medioPago.String
		sale.Date = saleDate.Format(domain.DateFormat)
		if userID.Valid {
			userIDs[sale.ID] = userID.Int64
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		if err := s.attachLines(ctx, &sales[i]); err != nil {
			return nil, err
		}
		if uid, ok := userIDs[sales[i].ID]; ok {
			user, err := s.GetUserByID(ctx, uid)
			if err != nil {
				return nil, err
			}
			public := user.Public()
			sales[i].User = &public
		}
	}
	return sales, nil
}

func (s *Store) attachLines(ctx context.Context, sale *domain.Sale) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.cantidad, l.numero_de_linea, l.precio,
		       p.id, p.nombre, p.precio_actual, p.detalle, p.mostrar_en_sistema, p.foto, p.stock, p.stock_minimo, p.is_active
		FROM line_of_sale l
		JOIN products p ON p.id = l.product_id
		WHERE l.sale_id = $1
		ORDER BY l.numero_de_linea
	`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	sale.Lines = make([]domain.LineOfSale, 0, 4)
	for rows.Next() {
		var line domain.LineOfSale
		var detalle, foto sql.NullString
		if err := rows.Scan(&line.ID, &line.Cantidad, &line.NumeroDeLinea, &line.Precio,
			&line.Product.ID, &line.Product.Nombre, &line.Product.PrecioActual, &detalle,
			&line.Product.MostrarEnSistema, &foto, &line.Product.Stock, &line.Product.StockMinimo,
			&line.Product.IsActive); err != nil {
			return err
		}
		line.Product.Detalle = detalle.String
		line.Product.Foto = foto.String
		sale.Lines = append(sale.Lines, line)
	}
	return rows.Err()
}

func (s *Store) ConfirmSale(ctx context.Context, id int64) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET order_confirmed = true
		WHERE id = $1 AND NOT order_confirmed AND NOT sale_in_register
	`, id)
	if err != nil {
		return nil, err
	}
	if err := s.explainNoRows(ctx, res, id, "confirm"); err != nil {
		return nil, err
	}
	return s.GetSaleByID(ctx, id)
}

func (s *Store) MarkSalePaid(ctx context.Context, id int64) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET pagado = true WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSaleByID(ctx, id)
}

func (s *Store) RegisterSale(ctx context.Context, id int64) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET sale_in_register = true
		WHERE id = $1 AND order_confirmed AND NOT sale_in_register
	`, id)
	if err != nil {
		return nil, err
	}
	if err := s.explainNoRows(ctx, res, id, "register"); err != nil {
		return nil, err
	}
	return s.GetSaleByID(ctx, id)
}

// explainNoRows turns a zero-row conditional update into the right error:
// not-found when the sale does not exist, otherwise a conflict message
// describing which lifecycle precondition failed.
func (s *Store) explainNoRows(ctx context.Context, res sql.Result, id int64, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	sale, err := s.GetSaleByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case sale.SaleInRegister:
		return fmt.Errorf("la venta %d ya fue registrada en caja: %w", id, store.ErrConflict)
	case op == "confirm" && sale.OrderConfirmed:
		return fmt.Errorf("el pedido %d ya fue confirmado: %w", id, store.ErrConflict)
	case op == "register" && !sale.OrderConfirmed:
		return fmt.Errorf("el pedido %d todavía no fue confirmado: %w", id, store.ErrConflict)
	}
	return store.ErrConflict
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

var _ store.Repository = (*Store)(nil)
