package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Totals is the derived summary persisted on every cart write.
type Totals struct {
	Items  int
	Amount decimal.Decimal
}

// ComputeTotals sums quantity and quantity*priceAtTime over every line,
// regardless of line status.
func ComputeTotals(lines []models.CartLine) Totals {
	t := Totals{Amount: decimal.Zero}
	for _, line := range lines {
		t.Items += line.Quantity
		t.Amount = t.Amount.Add(line.PriceAtTime.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	t.Amount = t.Amount.Round(2)
	return t
}

// ApplyTotals recomputes derived fields and renumbers positions in place.
// Every writer of cart lines calls it before SaveTotals, so any mutation
// also reactivates an abandoned cart.
func ApplyTotals(cart *models.Cart, now time.Time) {
	cart.Status = enums.CartStatusActive
	for i := range cart.Lines {
		cart.Lines[i].CartID = cart.ID
		cart.Lines[i].Position = i
	}
	totals := ComputeTotals(cart.Lines)
	cart.TotalItems = totals.Items
	cart.TotalAmount = totals.Amount
	cart.LastActivity = now
}
