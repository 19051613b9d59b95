package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
)

// flexID accepts identifiers sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	*f = ""
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
	}
	return nil
}

// flexPrice accepts prices as numbers or localised strings; unreadable values become zero.
type flexPrice money.Amount

func (f *flexPrice) UnmarshalJSON(data []byte) error {
	*f = 0
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	*f = flexPrice(money.ParsePriceOrZero(raw))
	return nil
}

// flexStock is nil when the backend omitted the stock or sent something unreadable.
type flexStock struct {
	value *int
}

func (f *flexStock) UnmarshalJSON(data []byte) error {
	f.value = nil
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return nil
	}
	f.value = domain.Stock(int(i))
	return nil
}

type mediaPayload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type variantPayload struct {
	ID          flexID    `json:"id"`
	VariantName string    `json:"variant_name"`
	Name        string    `json:"name"`
	WristSize   string    `json:"wrist_size"`
	Price       flexPrice `json:"price"`
	PriceCZK    flexPrice `json:"price_czk"`
	Stock       flexStock `json:"stock"`
	Image       string    `json:"image"`
}

type productPayload struct {
	ID          flexID           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       flexPrice        `json:"price"`
	PriceCZK    flexPrice        `json:"price_czk"`
	Stock       flexStock        `json:"stock"`
	Image       string           `json:"image"`
	Media       []mediaPayload   `json:"media"`
	CategoryID  flexID           `json:"category_id"`
	Variants    []variantPayload `json:"variants"`
}

type categoryPayload struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (p productPayload) toProduct() (domain.Product, bool) {
	id := strings.TrimSpace(string(p.ID))
	if id == "" {
		return domain.Product{}, false
	}
	product := domain.Product{
		ID:          id,
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Price:       firstPrice(p.Price, p.PriceCZK),
		Stock:       p.Stock.value,
		CategoryID:  string(p.CategoryID),
		ImageURL:    strings.TrimSpace(p.Image),
	}
	for _, m := range p.Media {
		if url := strings.TrimSpace(m.URL); url != "" && (m.Type == "" || m.Type == "image") {
			product.Images = append(product.Images, url)
		}
	}
	if product.ImageURL == "" && len(product.Images) > 0 {
		product.ImageURL = product.Images[0]
	}
	if product.CategoryID != "" {
		product.Categories = []string{product.CategoryID}
	}
	for _, v := range p.Variants {
		variantID := strings.TrimSpace(string(v.ID))
		if variantID == "" {
			continue
		}
		name := strings.TrimSpace(v.VariantName)
		if name == "" {
			name = strings.TrimSpace(v.Name)
		}
		product.Variants = append(product.Variants, domain.Variant{
			ID:        variantID,
			Name:      name,
			WristSize: strings.TrimSpace(v.WristSize),
			Price:     firstPrice(v.PriceCZK, v.Price),
			Stock:     v.Stock.value,
			ImageURL:  strings.TrimSpace(v.Image),
		})
	}
	return product, true
}

func (c categoryPayload) toCategory() (domain.Category, bool) {
	id := strings.TrimSpace(string(c.ID))
	if id == "" {
		return domain.Category{}, false
	}
	return domain.Category{ID: id, Name: strings.TrimSpace(c.Name), Slug: strings.TrimSpace(c.Slug)}, true
}

func firstPrice(candidates ...flexPrice) money.Amount {
	for _, c := range candidates {
		if c > 0 {
			return money.Amount(c)
		}
	}
	return 0
}

// OrderItem is one line of an order submission.
type OrderItem struct {
	ProductID string       `json:"id"`
	VariantID string       `json:"variantId,omitempty"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	Price     money.Amount `json:"price"`
}

// OrderRequest is the body posted to the orders endpoint.
type OrderRequest struct {
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Address      string              `json:"address"`
	Note         string              `json:"note"`
	VS           string              `json:"vs"`
	TotalCZK     money.Amount        `json:"totalCzk"`
	ShippingCZK  money.Amount        `json:"shippingCzk"`
	ShippingMode domain.ShippingMode `json:"shippingMode"`
	Items        []OrderItem         `json:"items"`

	IdempotencyKey string `json:"-"`
}

type orderPayload struct {
	OK      *bool  `json:"ok"`
	OrderID flexID `json:"orderId"`
	VS      flexID `json:"vs"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (p orderPayload) reason() string {
	if msg := strings.TrimSpace(p.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(p.Message)
}
