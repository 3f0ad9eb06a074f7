package client

import (
	"errors"
	"fmt"
	"strings"
)

// Op names the client operation that failed, so every failure can fall back
// to an operation-specific message.
type Op string

const (
	OpLogin             Op = "login"
	OpListProducts      Op = "list products"
	OpListRequested     Op = "list requested orders"
	OpListPendingPickup Op = "list orders pending pickup"
	OpListFinalized     Op = "list finalized sales"
	OpListMine          Op = "list my orders"
	OpCreateOnline      Op = "create online order"
	OpCreateTill        Op = "create till sale"
	OpConfirm           Op = "confirm order"
	OpMarkPaid          Op = "mark sale as paid"
	OpRegisterPickup    Op = "register pickup"
)

// Error is the single failure type every client call returns. Detail holds
// the store's human-readable reason when one was given; Err holds the
// transport or local validation error otherwise.
type Error struct {
	Op     Op
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

var fallbackMessages = map[Op]string{
	OpLogin:             "No se pudo iniciar sesión.",
	OpListProducts:      "Error al cargar los productos disponibles.",
	OpListRequested:     "Error al cargar los datos de ventas.",
	OpListPendingPickup: "Error al cargar los datos de ventas.",
	OpListFinalized:     "Error al cargar los datos de ventas.",
	OpListMine:          "Error al cargar tus pedidos.",
	OpCreateOnline:      "Error al registrar el pedido.",
	OpCreateTill:        "Error al registrar la venta.",
	OpConfirm:           "Ocurrió un error al realizar la acción.",
	OpMarkPaid:          "Ocurrió un error al realizar la acción.",
	OpRegisterPickup:    "Ocurrió un error al realizar la acción.",
}

// Message returns what a screen should show the user. A detail mentioning
// insufficient stock gets a stock-specific message, any other detail is
// shown as-is, and raw transport errors are replaced with the
// per-operation fallback.
func (e *Error) Message() string {
	if strings.Contains(strings.ToLower(e.Detail), "stock insuficiente") {
		return "No hay stock suficiente para completar el pedido: " + e.Detail
	}
	if e.Detail != "" {
		return e.Detail
	}
	if errors.Is(e.Err, errEmptyDraft) {
		return e.Err.Error()
	}
	if msg, ok := fallbackMessages[e.Op]; ok {
		return msg
	}
	return "Ocurrió un error al realizar la acción."
}

// IsStock reports whether err is a stock-insufficiency rejection from the
// store.
func IsStock(err error) bool {
	var clientErr *Error
	return errors.As(err, &clientErr) && strings.Contains(strings.ToLower(clientErr.Detail), "stock insuficiente")
}
