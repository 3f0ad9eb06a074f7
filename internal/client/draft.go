package client

import (
	"errors"
	"strings"

	"viandas/backend/internal/domain"
)

// LineItem is one product-quantity pair of a draft sale.
type LineItem struct {
	ProductID int64
	Cantidad  int
}

// SaleDraft is the creation payload for online and till sales. Defaults are
// applied in one place (withDefaults) rather than at call sites:
//
//	Observation  nil      -> stays null on the wire
//	MedioPago    ""       -> Efectivo
type SaleDraft struct {
	Observation *string
	MedioPago   string
	Lines       []LineItem
}

var errEmptyDraft = errors.New("debe incluir al menos un producto con cantidad mayor a cero")

func (d SaleDraft) validate() error {
	if len(d.Lines) == 0 {
		return errEmptyDraft
	}
	for _, line := range d.Lines {
		if line.Cantidad < 1 {
			return errEmptyDraft
		}
	}
	return nil
}

func (d SaleDraft) withDefaults() SaleDraft {
	if strings.TrimSpace(d.MedioPago) == "" {
		d.MedioPago = domain.PaymentCash
	}
	return d
}

func (d SaleDraft) request() domain.SaleCreateRequest {
	lines := make([]domain.SaleLineRequest, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.SaleLineRequest{ProductID: line.ProductID, Cantidad: line.Cantidad})
	}
	return domain.SaleCreateRequest{
		Observation: d.Observation,
		MedioPago:   d.MedioPago,
		Lines:       lines,
	}
}
