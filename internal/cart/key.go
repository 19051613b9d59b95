// Package cart owns the visitor's cart: line identity, the persisted cart
// state machine, and the order totals derived from it.
package cart

import (
	"errors"
	"strings"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
)

// ErrUnidentifiableItem is returned for items with no variant id, product id, or name.
var ErrUnidentifiableItem = errors.New("cart: unidentifiable item")

// LineKey derives the stable identity of a cart line. A variant id wins over
// the product id, so two variants of one product stay on separate lines.
func LineKey(item domain.Item) (string, error) {
	if id := strings.TrimSpace(item.VariantID); id != "" {
		return "variant-" + id, nil
	}
	if id := strings.TrimSpace(item.ProductID); id != "" {
		return "product-" + id, nil
	}
	if name := strings.TrimSpace(item.Name); name != "" {
		return "name-" + name, nil
	}
	return "", ErrUnidentifiableItem
}
