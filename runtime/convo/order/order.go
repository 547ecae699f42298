// Package order defines the session-scoped order aggregate and its store
// port. An aggregate is bound 1:1 to a conversation session, mutated only by
// the command bus, and persisted as a typed blob with a TTL (see
// features/order/redis for the production backend).
//
// All monetary arithmetic uses fixed-precision decimals with half-up rounding
// to two decimal places; floats never enter the totals.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order aggregate.
type Status string

const (
	// StatusActive indicates the order accepts mutations.
	StatusActive Status = "ACTIVE"
	// StatusConfirmed indicates the order is frozen; lines are immutable.
	StatusConfirmed Status = "CONFIRMED"
	// StatusCancelled indicates the order was abandoned.
	StatusCancelled Status = "CANCELLED"
)

type (
	// Aggregate is the mutable set of order lines with totals and status.
	Aggregate struct {
		ID           string          `json:"id"`
		SessionID    string          `json:"session_id"`
		RestaurantID int64           `json:"restaurant_id"`
		Items        []Line          `json:"items"`
		Subtotal     decimal.Decimal `json:"subtotal"`
		Tax          decimal.Decimal `json:"tax"`
		Total        decimal.Decimal `json:"total"`
		Status       Status          `json:"status"`
		CreatedAt    time.Time       `json:"created_at"`
		UpdatedAt    time.Time       `json:"updated_at"`
		ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	}

	// Line is one ordered item. LineID is opaque, unique within the order and
	// stable across reloads for the lifetime of the line.
	Line struct {
		LineID              string          `json:"line_id"`
		MenuItemID          string          `json:"menu_item_id"`
		Name                string          `json:"name"`
		Quantity            int             `json:"quantity"`
		Size                string          `json:"size,omitempty"`
		Modifiers           []string        `json:"modifiers,omitempty"`
		SpecialInstructions string          `json:"special_instructions,omitempty"`
		UnitPrice           decimal.Decimal `json:"unit_price"`
		ExtraCost           decimal.Decimal `json:"extra_cost"`
		TotalPrice          decimal.Decimal `json:"total_price"`
	}

	// Store persists aggregates keyed by order ID with a per-key TTL.
	// Implementations must be safe for concurrent use; the per-session turn
	// lock guarantees at most one writer per order at a time.
	Store interface {
		// Get loads the aggregate. Returns ErrNotFound when the key is absent
		// or expired.
		Get(ctx context.Context, orderID string) (Aggregate, error)
		// Upsert stores the aggregate and resets its TTL.
		Upsert(ctx context.Context, agg Aggregate, ttl time.Duration) error
		// Delete removes the aggregate. Deleting an absent key is not an
		// error.
		Delete(ctx context.Context, orderID string) error
	}
)

// ErrNotFound indicates no aggregate exists under the requested order ID.
var ErrNotFound = errors.New("order: not found")

// DefaultTTL is the default order lifetime, matching the session TTL.
const DefaultTTL = 1800 * time.Second

// Money rounds d half-up to two decimal places. It is the single rounding
// point for every monetary value the core produces.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal computes (unit + extra) × quantity rounded to cents.
func LineTotal(unit, extra decimal.Decimal, quantity int) decimal.Decimal {
	return Money(unit.Add(extra).Mul(decimal.NewFromInt(int64(quantity))))
}

// Recalculate reprices every line and rebuilds the aggregate totals so that
// total = subtotal + tax holds exactly. The tax rate is a fraction (0.08 for
// 8%).
func (a *Aggregate) Recalculate(taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	for i := range a.Items {
		line := &a.Items[i]
		line.TotalPrice = LineTotal(line.UnitPrice, line.ExtraCost, line.Quantity)
		subtotal = subtotal.Add(line.TotalPrice)
	}
	a.Subtotal = Money(subtotal)
	a.Tax = Money(a.Subtotal.Mul(taxRate))
	a.Total = a.Subtotal.Add(a.Tax)
}

// ItemCount returns the total quantity across all lines.
func (a *Aggregate) ItemCount() int {
	n := 0
	for _, line := range a.Items {
		n += line.Quantity
	}
	return n
}

// FindLine returns a pointer to the line with the given ID, or nil.
func (a *Aggregate) FindLine(lineID string) *Line {
	for i := range a.Items {
		if a.Items[i].LineID == lineID {
			return &a.Items[i]
		}
	}
	return nil
}

// RemoveLine deletes the line with the given ID, reporting whether it existed.
func (a *Aggregate) RemoveLine(lineID string) bool {
	for i := range a.Items {
		if a.Items[i].LineID == lineID {
			a.Items = append(a.Items[:i], a.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the aggregate.
func (a Aggregate) Clone() Aggregate {
	out := a
	out.Items = make([]Line, len(a.Items))
	for i, line := range a.Items {
		cp := line
		cp.Modifiers = append([]string(nil), line.Modifiers...)
		out.Items[i] = cp
	}
	if a.ConfirmedAt != nil {
		at := *a.ConfirmedAt
		out.ConfirmedAt = &at
	}
	return out
}
