// Package pricing holds the pure order-math used by checkout: sibling
// discount tiers, per-child line items, fee totals, order totals and
// installment previews. Every amount is integer cents. Nothing here
// performs I/O; the checkout session re-derives totals from a selection
// snapshot on every relevant change.
package pricing

import (
	"fmt"
	"math"
	"time"

	"enroll-middleware/models"
)

// ValidationError flags malformed price inputs (negative amounts, bad
// positions, zero installment counts). Bad inputs are rejected rather
// than coerced to zero so that upstream data problems stay visible.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Field, e.Reason)
}

// TierTable maps selection position to sibling discount rate, index 0
// being the first child. Positions past the end reuse the last entry;
// the table caps, it never extrapolates.
type TierTable []float64

// DefaultSiblingTiers matches the platform's table: first child full
// price, then 25%, 35% and 45% off for every child after the third.
var DefaultSiblingTiers = TierTable{0, 0.25, 0.35, 0.45}

// Rate returns the discount rate for a 1-based selection position.
func (t TierTable) Rate(position int) (float64, error) {
	if position < 1 {
		return 0, &ValidationError{Field: "position", Reason: fmt.Sprintf("must be >= 1, got %v", position)}
	}
	if len(t) == 0 {
		return 0, nil
	}
	if position > len(t) {
		return t[len(t)-1], nil
	}
	return t[position-1], nil
}

// ComputeLineItems prices each selected child at the class base price
// less the sibling discount for their position in childIDs. Order
// matters: reordering the selection changes who gets which tier.
func ComputeLineItems(basePriceCents int64, childIDs []string, tiers TierTable) ([]models.LineItem, error) {
	if basePriceCents < 0 {
		return nil, &ValidationError{Field: "base price", Reason: fmt.Sprintf("must not be negative, got %v", basePriceCents)}
	}
	items := make([]models.LineItem, 0, len(childIDs))
	for i, childID := range childIDs {
		rate, err := tiers.Rate(i + 1)
		if err != nil {
			return nil, err
		}
		discount := roundCents(float64(basePriceCents) * rate)
		items = append(items, models.LineItem{
			Position:      i + 1,
			ChildID:       childID,
			PriceCents:    basePriceCents,
			DiscountRate:  rate,
			DiscountCents: discount,
			TotalCents:    basePriceCents - discount,
		})
	}
	return items, nil
}

// LineItemsTotal sums the discounted totals of a set of line items.
func LineItemsTotal(items []models.LineItem) (total int64) {
	for _, item := range items {
		total += item.TotalCents
	}
	return total
}

// ComputeFeesTotal prices the custom fees for a selection: required
// fees apply once per selected child unconditionally, optional fees
// only where the child's fee index set includes them.
func ComputeFeesTotal(fees []models.CustomFee, childIDs []string, selectedByChild map[string][]int) (int64, error) {
	var total int64
	for _, fee := range fees {
		if fee.AmountCents < 0 {
			return 0, &ValidationError{Field: "fee amount", Reason: fmt.Sprintf("fee %q must not be negative", fee.Name)}
		}
		if !fee.IsOptional {
			total += fee.AmountCents * int64(len(childIDs))
		}
	}
	for _, childID := range childIDs {
		for _, idx := range selectedByChild[childID] {
			if idx < 0 || idx >= len(fees) {
				return 0, &ValidationError{Field: "fee index", Reason: fmt.Sprintf("%v is out of range for %v fees", idx, len(fees))}
			}
			if !fees[idx].IsOptional {
				// required fees are already counted above
				continue
			}
			total += fees[idx].AmountCents
		}
	}
	return total, nil
}

// TotalParams feeds ComputeOrderTotal. The Backend* fields carry a
// server-computed total when one exists: the client math is only an
// estimate, the server total is authoritative and must override the
// local figures exactly, never be added on top of them.
type TotalParams struct {
	LineItemsTotalCents       int64
	FeesTotalCents            int64
	Discount                  *models.Discount
	ProcessingFeePercent      float64
	BackendTotalCents         int64
	BackendProcessingFeeCents int64
}

type TotalBreakdown struct {
	SubtotalCents      int64 `json:"subtotal_cents"`
	DiscountCents      int64 `json:"discount_cents"`
	ProcessingFeeCents int64 `json:"processing_fee_cents"`
	TotalCents         int64 `json:"total_cents"`
}

// ComputeOrderTotal derives subtotal, discount, processing fee and
// grand total. The discounted subtotal clamps at zero; the processing
// fee applies to the post-discount amount.
func ComputeOrderTotal(p TotalParams) (TotalBreakdown, error) {
	var b TotalBreakdown
	if p.LineItemsTotalCents < 0 {
		return b, &ValidationError{Field: "line items total", Reason: "must not be negative"}
	}
	if p.FeesTotalCents < 0 {
		return b, &ValidationError{Field: "fees total", Reason: "must not be negative"}
	}
	if p.ProcessingFeePercent < 0 {
		return b, &ValidationError{Field: "processing fee percent", Reason: "must not be negative"}
	}

	b.SubtotalCents = p.LineItemsTotalCents + p.FeesTotalCents

	if p.Discount != nil {
		switch p.Discount.Type {
		case models.DiscountPercentage:
			b.DiscountCents = roundCents(float64(b.SubtotalCents) * p.Discount.Value / 100)
		case models.DiscountFixed:
			b.DiscountCents = roundCents(p.Discount.Value)
		default:
			return b, &ValidationError{Field: "discount type", Reason: fmt.Sprintf("unknown type %q", p.Discount.Type)}
		}
		if p.Discount.Value < 0 {
			return b, &ValidationError{Field: "discount value", Reason: "must not be negative"}
		}
	}

	afterDiscount := b.SubtotalCents - b.DiscountCents
	if afterDiscount < 0 {
		afterDiscount = 0
	}
	b.ProcessingFeeCents = roundCents(float64(afterDiscount) * p.ProcessingFeePercent / 100)
	b.TotalCents = afterDiscount + b.ProcessingFeeCents

	// reconcile with the server where it has already priced the order
	if p.BackendTotalCents > 0 {
		b.TotalCents = p.BackendTotalCents
		if p.BackendProcessingFeeCents > 0 {
			b.ProcessingFeeCents = p.BackendProcessingFeeCents
		}
	}

	return b, nil
}

// ComputeInstallmentPreview divides an order total into count equal
// monthly payments starting at start. Cents that don't divide evenly
// ride on the first installment so the schedule sums exactly to the
// total.
func ComputeInstallmentPreview(totalCents int64, count int, start time.Time) ([]models.Installment, error) {
	if totalCents < 0 {
		return nil, &ValidationError{Field: "order total", Reason: "must not be negative"}
	}
	if count < 1 {
		return nil, &ValidationError{Field: "installment count", Reason: fmt.Sprintf("must be >= 1, got %v", count)}
	}
	perMonth := totalCents / int64(count)
	remainder := totalCents - perMonth*int64(count)
	schedule := make([]models.Installment, 0, count)
	for i := 0; i < count; i++ {
		amount := perMonth
		if i == 0 {
			amount += remainder
		}
		schedule = append(schedule, models.Installment{
			Index:       i + 1,
			DueDate:     start.AddDate(0, i, 0),
			AmountCents: amount,
		})
	}
	return schedule, nil
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
