// Package board holds the staff sale-management view model: the three
// lifecycle partitions (requested, pending pickup, finalized) plus the
// action-and-refresh loop that keeps them mirroring the store.
package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"viandas/backend/internal/client"
	"viandas/backend/internal/domain"
)

// Action is one of the three staff operations on a sale.
type Action int

const (
	ActionConfirm Action = iota
	ActionMarkPaid
	ActionRegisterPickup
)

func (a Action) String() string {
	switch a {
	case ActionConfirm:
		return "confirm"
	case ActionMarkPaid:
		return "mark-paid"
	case ActionRegisterPickup:
		return "register-pickup"
	}
	return "unknown"
}

// Snapshot is a caller-owned copy of the board state at one instant.
type Snapshot struct {
	Requested      []domain.Sale
	PendingPickup  []domain.Sale
	Finalized      []domain.Sale
	SelectedDate   string
	Refreshing     bool
	ActionInFlight bool
	LastErr        error
}

// Board owns the three partitions. It never mutates them locally: every
// action is followed by a full re-fetch, so the store stays the single
// source of truth. All state transitions happen under one mutex; the three
// list calls of a refresh run concurrently outside it and their results are
// swapped in atomically, so no partial-update window is observable.
type Board struct {
	client *client.Client

	mu             sync.Mutex
	requested      []domain.Sale
	pendingPickup  []domain.Sale
	finalized      []domain.Sale
	selectedDate   string
	refreshing     bool
	actionInFlight bool
	lastErr        error
}

// New builds a board filtering finalized sales to today, matching what the
// counter screen opens with.
func New(c *client.Client) *Board {
	return &Board{
		client:       c,
		selectedDate: time.Now().Format(domain.DateFormat),
	}
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Requested:      append([]domain.Sale(nil), b.requested...),
		PendingPickup:  append([]domain.Sale(nil), b.pendingPickup...),
		Finalized:      append([]domain.Sale(nil), b.finalized...),
		SelectedDate:   b.selectedDate,
		Refreshing:     b.refreshing,
		ActionInFlight: b.actionInFlight,
		LastErr:        b.lastErr,
	}
}

// Refresh re-queries the three partitions concurrently and swaps them in
// together. If any list call fails the whole refresh fails: the last good
// snapshot is kept and the error recorded, rather than wiping the screen
// over a transient failure. When refreshes overlap, whichever completes
// last wins.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.refreshing = true
	date := b.selectedDate
	b.mu.Unlock()

	var (
		wg                        sync.WaitGroup
		requested, pending, final []domain.Sale
		reqErr, pendErr, finErr   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		requested, reqErr = b.client.ListRequested(ctx)
	}()
	go func() {
		defer wg.Done()
		pending, pendErr = b.client.ListPendingPickup(ctx)
	}()
	go func() {
		defer wg.Done()
		final, finErr = b.client.ListFinalized(ctx, date)
	}()
	wg.Wait()

	err := firstError(reqErr, pendErr, finErr)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshing = false
	if err != nil {
		b.lastErr = err
		return err
	}
	b.requested = requested
	b.pendingPickup = pending
	b.finalized = final
	b.lastErr = nil
	return nil
}

// SetSelectedDate changes the finalized-partition date filter and refreshes.
// Setting the same date twice is harmless: partitions are replaced, never
// accumulated.
func (b *Board) SetSelectedDate(ctx context.Context, date string) error {
	if _, err := time.Parse(domain.DateFormat, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	b.mu.Lock()
	b.selectedDate = date
	b.mu.Unlock()

	return b.Refresh(ctx)
}

// Perform applies a staff action and then refreshes unconditionally, so the
// displayed partitions always reflect what the store actually did, even
// when the mutation was rejected.
func (b *Board) Perform(ctx context.Context, action Action, saleID int64) error {
	b.mu.Lock()
	b.actionInFlight = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.actionInFlight = false
		b.mu.Unlock()
	}()

	var err error
	switch action {
	case ActionConfirm:
		_, err = b.client.Confirm(ctx, saleID)
	case ActionMarkPaid:
		_, err = b.client.MarkPaid(ctx, saleID)
	case ActionRegisterPickup:
		_, err = b.client.RegisterPickup(ctx, saleID)
	default:
		return fmt.Errorf("unknown action %d", action)
	}

	refreshErr := b.Refresh(ctx)

	// Record the rejection after the refresh so a successful re-fetch does
	// not wipe the error the screen still has to show.
	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		return err
	}
	return refreshErr
}

// CreateManualSale registers an in-person till sale and refreshes on
// success. The created sale is returned so the caller can close its form
// only when the store accepted it.
func (b *Board) CreateManualSale(ctx context.Context, draft client.SaleDraft) (domain.Sale, error) {
	b.mu.Lock()
	b.actionInFlight = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.actionInFlight = false
		b.mu.Unlock()
	}()

	sale, err := b.client.CreateManualTill(ctx, draft)

	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()

	if err != nil {
		return domain.Sale{}, err
	}
	if refreshErr := b.Refresh(ctx); refreshErr != nil {
		return sale, refreshErr
	}
	return sale, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
