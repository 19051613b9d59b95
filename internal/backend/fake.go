package backend

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
)

//go:embed demo_catalog.yaml
var demoCatalogYAML []byte

type demoCatalog struct {
	Categories []demoCategory `yaml:"categories"`
	Products   []demoProduct  `yaml:"products"`

	index map[string]domain.Product
	order []string
}

type demoCategory struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

type demoVariant struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	WristSize string `yaml:"wristSize"`
	Price     string `yaml:"price"`
	Stock     *int   `yaml:"stock"`
}

type demoProduct struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Price       string        `yaml:"price"`
	Stock       *int          `yaml:"stock"`
	CategoryID  string        `yaml:"categoryId"`
	ImageURL    string        `yaml:"imageUrl"`
	Variants    []demoVariant `yaml:"variants"`
}

func loadDemoCatalog() (*demoCatalog, error) {
	var catalog demoCatalog
	if err := yaml.Unmarshal(demoCatalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("backend: parse demo catalog: %w", err)
	}
	catalog.index = make(map[string]domain.Product, len(catalog.Products))
	for _, p := range catalog.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		price, err := money.ParsePrice(p.Price)
		if err != nil {
			return nil, fmt.Errorf("backend: demo product %s: %w", id, err)
		}
		product := domain.Product{
			ID:          id,
			Name:        p.Name,
			Description: p.Description,
			Price:       price,
			Stock:       p.Stock,
			CategoryID:  p.CategoryID,
			ImageURL:    p.ImageURL,
		}
		if p.CategoryID != "" {
			product.Categories = []string{p.CategoryID}
		}
		if p.ImageURL != "" {
			product.Images = []string{p.ImageURL}
		}
		for _, v := range p.Variants {
			product.Variants = append(product.Variants, domain.Variant{
				ID:        v.ID,
				Name:      v.Name,
				WristSize: v.WristSize,
				Price:     money.ParsePriceOrZero(v.Price),
				Stock:     v.Stock,
			})
		}
		catalog.index[id] = product
		catalog.order = append(catalog.order, id)
	}
	return &catalog, nil
}

func (c *demoCatalog) products() []domain.Product {
	out := make([]domain.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.index[id])
	}
	return out
}

func (c *demoCatalog) product(id string) (domain.Product, error) {
	p, ok := c.index[id]
	if !ok {
		return domain.Product{}, ErrNotFound
	}
	return p, nil
}

func (c *demoCatalog) categoryList() []domain.Category {
	out := make([]domain.Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, domain.Category{ID: cat.ID, Name: cat.Name, Slug: cat.Slug})
	}
	return out
}

func fakeOrderReceipt(req OrderRequest) domain.OrderReceipt {
	return domain.OrderReceipt{
		OrderID: randomID("ord"),
		VS:      req.VS,
		Status:  "awaiting_payment",
	}
}

func randomID(prefix string) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err == nil {
		return fmt.Sprintf("%s_%s", strings.TrimSpace(prefix), hex.EncodeToString(b))
	}
	ts := time.Now().UnixNano()
	return fmt.Sprintf("%s_%d", strings.TrimSpace(prefix), ts)
}
