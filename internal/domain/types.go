// Package domain holds the storefront types shared by the cart, checkout,
// catalog, and backend packages.
package domain

import (
	"errors"
	"strings"

	"github.com/Lakyn80/naramkova-moda/internal/money"
)

// ErrVariantNotFound is returned when a product has no variant with the requested id.
var ErrVariantNotFound = errors.New("domain: variant not found")

// ShippingMode selects how the order reaches the customer.
type ShippingMode string

const (
	// ShippingPost sends the parcel by post and charges the shipping fee.
	ShippingPost ShippingMode = "post"
	// ShippingPickup is a free personal pickup.
	ShippingPickup ShippingMode = "pickup"
)

// DefaultShippingMode applies when nothing was chosen or the stored value is unreadable.
const DefaultShippingMode = ShippingPost

// ParseShippingMode reads a persisted or submitted mode.
func ParseShippingMode(raw string) (ShippingMode, bool) {
	switch ShippingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ShippingPost:
		return ShippingPost, true
	case ShippingPickup:
		return ShippingPickup, true
	default:
		return "", false
	}
}

// Stock returns a known stock ceiling.
func Stock(n int) *int {
	return &n
}

// Item is a purchasable entity offered to the cart: a product, optionally narrowed to one variant.
type Item struct {
	ProductID   string
	VariantID   string
	Name        string
	VariantName string
	WristSize   string
	Image       string
	Price       money.Amount
	// Stock is nil when the catalog did not report a ceiling.
	Stock *int
}

// CartLine is one distinct purchasable entity and its quantity. The JSON form
// is the persisted cartItems element.
type CartLine struct {
	Key         string       `json:"lineKey"`
	ProductID   string       `json:"id,omitempty"`
	VariantID   string       `json:"variantId,omitempty"`
	Name        string       `json:"name"`
	VariantName string       `json:"variantName,omitempty"`
	WristSize   string       `json:"wristSize,omitempty"`
	Image       string       `json:"image,omitempty"`
	Price       money.Amount `json:"price"`
	Quantity    int          `json:"quantity"`
	Stock       *int         `json:"stock,omitempty"`
}

// Item returns the identity fields of the line, for resolving its key again.
func (l CartLine) Item() Item {
	return Item{
		ProductID:   l.ProductID,
		VariantID:   l.VariantID,
		Name:        l.Name,
		VariantName: l.VariantName,
		WristSize:   l.WristSize,
		Image:       l.Image,
		Price:       l.Price,
		Stock:       l.Stock,
	}
}

// Total is price times quantity.
func (l CartLine) Total() money.Amount {
	return l.Price.Times(l.Quantity)
}

// OrderTotals are derived from the cart on demand and never stored.
type OrderTotals struct {
	Subtotal    money.Amount `json:"subtotal"`
	ShippingFee money.Amount `json:"shippingFee"`
	GrandTotal  money.Amount `json:"grandTotal"`
}

// Category groups products in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Variant is a purchasable flavour of a product, e.g. a wrist size.
type Variant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	WristSize string       `json:"wristSize,omitempty"`
	Price     money.Amount `json:"price"`
	Stock     *int         `json:"stock,omitempty"`
	ImageURL  string       `json:"imageUrl,omitempty"`
}

// Product is a catalog entry with its prices already normalised.
type Product struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Price       money.Amount `json:"price"`
	Stock       *int         `json:"stock,omitempty"`
	CategoryID  string       `json:"categoryId,omitempty"`
	Categories  []string     `json:"categories,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	Images      []string     `json:"images,omitempty"`
	Variants    []Variant    `json:"variants,omitempty"`
}

// Item builds the cart item for the product or one of its variants. A variant
// without its own price inherits the product price.
func (p Product) Item(variantID string) (Item, error) {
	item := Item{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.ImageURL,
		Price:     p.Price,
		Stock:     p.Stock,
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return item, nil
	}
	for _, v := range p.Variants {
		if v.ID != variantID {
			continue
		}
		item.VariantID = v.ID
		item.VariantName = v.Name
		item.WristSize = v.WristSize
		if v.Price > 0 {
			item.Price = v.Price
		}
		if v.Stock != nil {
			item.Stock = v.Stock
		}
		if v.ImageURL != "" {
			item.Image = v.ImageURL
		}
		return item, nil
	}
	return Item{}, ErrVariantNotFound
}

// Customer carries the checkout form fields.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Note    string `json:"note,omitempty"`
}

// OrderReceipt is the backend's acknowledgement of a created order.
type OrderReceipt struct {
	OrderID string `json:"orderId"`
	VS      string `json:"vs"`
	Status  string `json:"status"`
}
