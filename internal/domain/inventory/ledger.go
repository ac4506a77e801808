// Package inventory is the stock ledger. It is the only code allowed to change
// a product's available quantity, and it only does so on rows the caller has
// locked inside its transaction.
package inventory

import (
	"context"
	"errors"

	"github.com/example/ec-order-sync/internal/apperror"
	"github.com/example/ec-order-sync/internal/model"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StockWriter persists a product's new available quantity.
type StockWriter interface {
	UpdateProductStock(ctx context.Context, productID, available int64) error
}

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// CheckReserve reports whether qty units of p can be taken without writing anything.
func (l *Ledger) CheckReserve(p model.Product, qty int64) error {
	if qty <= 0 {
		return apperror.Wrap(apperror.KindBusinessRule, ErrInvalidQuantity,
			"quantity for product %d must be positive", p.ID)
	}
	if qty > p.AvailableQuantity {
		return apperror.Wrap(apperror.KindInsufficientStock, ErrInsufficientStock,
			"Not enough stock for product %s. Available: %d, Requested: %d",
			p.Name, p.AvailableQuantity, qty)
	}
	return nil
}

// Reserve takes qty units from p and writes the new stock through w.
func (l *Ledger) Reserve(ctx context.Context, w StockWriter, p *model.Product, qty int64) error {
	if err := l.CheckReserve(*p, qty); err != nil {
		return err
	}
	return l.write(ctx, w, p, p.AvailableQuantity-qty)
}

// Release returns qty units to p. It never fails for lack of stock.
func (l *Ledger) Release(ctx context.Context, w StockWriter, p *model.Product, qty int64) error {
	if qty <= 0 {
		return apperror.Wrap(apperror.KindBusinessRule, ErrInvalidQuantity,
			"quantity for product %d must be positive", p.ID)
	}
	return l.write(ctx, w, p, p.AvailableQuantity+qty)
}

// CheckAdjust validates a signed change of an existing reservation.
// Only growth is bounded by the available stock.
func (l *Ledger) CheckAdjust(p model.Product, delta int64) error {
	if delta > 0 {
		return l.CheckReserve(p, delta)
	}
	return nil
}

// Adjust reserves a positive delta and releases a negative one. Zero is a no-op.
func (l *Ledger) Adjust(ctx context.Context, w StockWriter, p *model.Product, delta int64) error {
	switch {
	case delta > 0:
		return l.Reserve(ctx, w, p, delta)
	case delta < 0:
		return l.Release(ctx, w, p, -delta)
	default:
		return nil
	}
}

func (l *Ledger) write(ctx context.Context, w StockWriter, p *model.Product, available int64) error {
	if available < 0 {
		return apperror.Wrap(apperror.KindInsufficientStock, ErrInsufficientStock,
			"stock for product %d would become negative", p.ID)
	}
	if err := w.UpdateProductStock(ctx, p.ID, available); err != nil {
		return apperror.Unexpected(err, "update stock for product %d", p.ID)
	}
	p.AvailableQuantity = available
	return nil
}

