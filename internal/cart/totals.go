package cart

import (
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
)

// ComputeTotals derives subtotal, shipping fee, and grand total. Pickup ships for free.
func ComputeTotals(lines []domain.CartLine, mode domain.ShippingMode, fee money.Amount) domain.OrderTotals {
	var subtotal money.Amount
	for _, line := range lines {
		subtotal += line.Total()
	}
	shipping := fee
	if mode == domain.ShippingPickup {
		shipping = 0
	}
	return domain.OrderTotals{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		GrandTotal:  subtotal + shipping,
	}
}
