package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"viandas/backend/internal/cache"
	"viandas/backend/internal/domain"
	"viandas/backend/internal/store"
	"viandas/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: 1,
		Email:  "admin@viandas.local",
		Role:   domain.RoleAdmin,
	})
}

func customerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: 2,
		Email:  "clara@example.com",
		Role:   domain.RoleUser,
	})
}

func TestCreateOnlineSaleRejectsEmptyLines(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for empty lines, got %v", err)
	}
}

func TestCreateOnlineSaleRejectsZeroCantidad(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 1, Cantidad: 0}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for cantidad 0, got %v", err)
	}
}

func TestCreateOnlineSaleRequiresAuth(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOnlineSale(context.Background(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	if _, err := svc.ListMySales(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated listing without actor, got %v", err)
	}
}

func TestCreateOnlineSaleDefaultsAndAttachesUser(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{
			{ProductID: 1, Cantidad: 2},
			{ProductID: 2, Cantidad: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.MedioPago != domain.PaymentCash {
		t.Fatalf("expected MedioPago to default to Efectivo, got %q", sale.MedioPago)
	}
	if sale.QuantityProduct != 2 {
		t.Fatalf("expected quantity_product 2, got %d", sale.QuantityProduct)
	}
	if sale.OrderConfirmed || sale.SaleInRegister || sale.Paid {
		t.Fatalf("expected new sale with all flags false")
	}
	if sale.User == nil || sale.User.Email != "clara@example.com" {
		t.Fatalf("expected sale attached to clara, got %+v", sale.User)
	}
	if sale.Date != time.Now().Format(domain.DateFormat) {
		t.Fatalf("expected today's date, got %q", sale.Date)
	}
	if sale.Lines[0].NumeroDeLinea != 1 || sale.Lines[1].NumeroDeLinea != 2 {
		t.Fatalf("expected sequential line numbers")
	}
}

func TestCreateOnlineSaleRejectsUnknownMedioPago(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		MedioPago: "Cheque",
		Lines:     []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for unknown medio de pago, got %v", err)
	}
}

func TestCreateSaleDecrementsStockAndRejectsShortage(t *testing.T) {
	svc := newTestService()

	// Pastel de papa seeds with stock 8.
	_, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 6, Cantidad: 8}},
	})
	if err != nil {
		t.Fatalf("sale for full stock failed: %v", err)
	}

	_, err = svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 6, Cantidad: 1}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Stock insuficiente para Pastel de papa") {
		t.Fatalf("expected product name in stock error, got %q", err.Error())
	}
}

func TestCreateSaleCapturesPriceAtCreation(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	newPrice := decimal.NewFromInt(9999)
	if _, err := svc.UpdateProduct(adminCtx(), 1, domain.ProductUpdateRequest{PrecioActual: &newPrice}); err != nil {
		t.Fatalf("price update failed: %v", err)
	}

	mine, err := svc.ListMySales(customerCtx())
	if err != nil {
		t.Fatalf("list my sales failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != sale.ID {
		t.Fatalf("expected one sale for clara")
	}
	if !mine[0].Lines[0].Precio.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("expected captured price 4500, got %s", mine[0].Lines[0].Precio)
	}
}

func TestCreateTillSaleRequiresAdminAndHasNoUser(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateTillSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	}); err == nil {
		t.Fatalf("expected non-admin till sale to fail")
	}

	sale, err := svc.CreateTillSale(adminCtx(), domain.SaleCreateRequest{
		MedioPago: domain.PaymentTransfer,
		Lines:     []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("till sale failed: %v", err)
	}
	if sale.User != nil {
		t.Fatalf("expected till sale without requester, got %+v", sale.User)
	}
	if sale.MedioPago != domain.PaymentTransfer {
		t.Fatalf("expected Transferencia, got %q", sale.MedioPago)
	}
}

func TestSaleLifecyclePartitions(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 2, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	inPartition := func(sales []domain.Sale) bool {
		for _, s := range sales {
			if s.ID == sale.ID {
				return true
			}
		}
		return false
	}

	requested, err := svc.ListRequested(adminCtx())
	if err != nil {
		t.Fatalf("list requested failed: %v", err)
	}
	if !inPartition(requested) {
		t.Fatalf("expected new sale in requested partition")
	}

	if _, err := svc.ConfirmSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	requested, _ = svc.ListRequested(adminCtx())
	pending, err := svc.ListPendingPickup(adminCtx())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if inPartition(requested) {
		t.Fatalf("expected confirmed sale to leave requested partition")
	}
	if !inPartition(pending) {
		t.Fatalf("expected confirmed sale in pending-pickup partition")
	}

	if _, err := svc.RegisterSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	pending, _ = svc.ListPendingPickup(adminCtx())
	finalized, err := svc.ListFinalized(adminCtx(), sale.Date)
	if err != nil {
		t.Fatalf("list finalized failed: %v", err)
	}
	if inPartition(pending) {
		t.Fatalf("expected registered sale to leave pending partition")
	}
	if !inPartition(finalized) {
		t.Fatalf("expected registered sale in finalized partition for %s", sale.Date)
	}

	otherDay, err := svc.ListFinalized(adminCtx(), "2000-01-01")
	if err != nil {
		t.Fatalf("list finalized other day failed: %v", err)
	}
	if inPartition(otherDay) {
		t.Fatalf("expected date filter to exclude the sale")
	}
}

func TestConfirmTwiceConflicts(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 3, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if _, err := svc.ConfirmSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	_, err = svc.ConfirmSale(adminCtx(), sale.ID)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second confirm, got %v", err)
	}
}

func TestRegisterRequiresConfirmation(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 4, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	_, err = svc.RegisterSale(adminCtx(), sale.ID)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict registering unconfirmed sale, got %v", err)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 1, Cantidad: 1}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	paid, err := svc.MarkSalePaid(adminCtx(), sale.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if !paid.Paid {
		t.Fatalf("expected sale to be paid")
	}

	again, err := svc.MarkSalePaid(adminCtx(), sale.ID)
	if err != nil {
		t.Fatalf("second mark paid failed: %v", err)
	}
	if !again.Paid {
		t.Fatalf("expected sale to stay paid")
	}
}

func TestTransitionsOnUnknownSaleReturnNotFound(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ConfirmSale(adminCtx(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on confirm, got %v", err)
	}
	if _, err := svc.MarkSalePaid(adminCtx(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on mark paid, got %v", err)
	}
	if _, err := svc.RegisterSale(adminCtx(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on register, got %v", err)
	}
}

func TestAdminPartitionsRejectCustomer(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ListRequested(customerCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for requested partition, got %v", err)
	}
	if _, err := svc.ListPendingPickup(customerCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for pending partition, got %v", err)
	}
	if _, err := svc.ListFinalized(customerCtx(), ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for finalized partition, got %v", err)
	}
	if _, err := svc.ConfirmSale(customerCtx(), 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customer confirm, got %v", err)
	}
}

func TestListFinalizedRejectsMalformedDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.ListFinalized(adminCtx(), "03/08/2026")
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for malformed date, got %v", err)
	}
}

func TestCustomerSaleQueries(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateOnlineSale(customerCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 5, Cantidad: 2}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	mine, err := svc.ListMySales(customerCtx())
	if err != nil {
		t.Fatalf("list my sales failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != sale.ID {
		t.Fatalf("expected clara to see her sale, got %d sales", len(mine))
	}

	ready, err := svc.ListMyReadyForPickup(customerCtx())
	if err != nil {
		t.Fatalf("ready-for-pickup failed: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no ready sales before confirmation, got %d", len(ready))
	}

	if _, err := svc.ConfirmSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	ready, err = svc.ListMyReadyForPickup(customerCtx())
	if err != nil {
		t.Fatalf("ready-for-pickup failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != sale.ID {
		t.Fatalf("expected confirmed sale to be ready for pickup")
	}
}

func TestLowStockProducts(t *testing.T) {
	svc := newTestService()

	// Guiso de lentejas seeds with stock 10, minimum 3. Drop it below.
	if _, err := svc.CreateTillSale(adminCtx(), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: 5, Cantidad: 8}},
	}); err != nil {
		t.Fatalf("till sale failed: %v", err)
	}

	low, err := svc.LowStockProducts(adminCtx())
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}

	found := false
	for _, item := range low {
		if item.Product.ID == 5 {
			found = true
			if item.Missing != 1 {
				t.Fatalf("expected missing 1, got %d", item.Missing)
			}
		}
	}
	if !found {
		t.Fatalf("expected Guiso de lentejas in low-stock report")
	}
}

func TestUpdateProductMergesOnlyProvidedFields(t *testing.T) {
	svc := newTestService()

	stock := 50
	updated, err := svc.UpdateProduct(adminCtx(), 2, domain.ProductUpdateRequest{Stock: &stock})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Stock != 50 {
		t.Fatalf("expected stock 50, got %d", updated.Stock)
	}
	if updated.Nombre != "Tarta de verdura" {
		t.Fatalf("expected untouched name, got %q", updated.Nombre)
	}
	if !updated.PrecioActual.Equal(decimal.NewFromInt(3800)) {
		t.Fatalf("expected untouched price, got %s", updated.PrecioActual)
	}
}
