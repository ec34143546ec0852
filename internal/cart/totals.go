package cart

import (
	"context"
	"errors"
)

// Totals derives the amount due from line items and the stored adjustment columns.
type Totals struct{}

// Total returns subtotal + shipping + tax - discount - gift cards, floored at zero.
// When items were not loaded the stored subtotal is used instead.
func (Totals) Total(_ context.Context, c Cart) (int64, error) {
	subtotal := c.Subtotal
	if len(c.Items) > 0 {
		subtotal = 0
		for _, it := range c.Items {
			if it.Quantity < 0 || it.UnitPrice < 0 {
				return 0, errors.New("cart: negative line item")
			}
			subtotal += it.UnitPrice * int64(it.Quantity)
		}
	}
	total := subtotal + c.ShippingTotal + c.TaxTotal - c.DiscountTotal - c.GiftCardTotal
	if total < 0 {
		total = 0
	}
	return total, nil
}
