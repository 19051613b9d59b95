package cart

import (
	"errors"
	"testing"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
)

func TestLineKey(t *testing.T) {
	tests := []struct {
		name string
		item domain.Item
		want string
	}{
		{name: "variant wins", item: domain.Item{ProductID: "1", VariantID: "11", Name: "Náramek"}, want: "variant-11"},
		{name: "product", item: domain.Item{ProductID: "1", Name: "Náramek"}, want: "product-1"},
		{name: "name", item: domain.Item{Name: "Náramek Maminka"}, want: "name-Náramek Maminka"},
		{name: "whitespace ids ignored", item: domain.Item{ProductID: "  ", VariantID: " ", Name: "X"}, want: "name-X"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LineKey(tc.item)
			if err != nil {
				t.Fatalf("LineKey returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("LineKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLineKeyRejectsUnidentifiable(t *testing.T) {
	_, err := LineKey(domain.Item{Name: "   "})
	if !errors.Is(err, ErrUnidentifiableItem) {
		t.Fatalf("expected ErrUnidentifiableItem, got %v", err)
	}
}

func TestLineKeySeparatesVariantsOfOneProduct(t *testing.T) {
	a, _ := LineKey(domain.Item{ProductID: "1", VariantID: "11"})
	b, _ := LineKey(domain.Item{ProductID: "1", VariantID: "12"})
	base, _ := LineKey(domain.Item{ProductID: "1"})
	if a == b || a == base || b == base {
		t.Fatalf("expected distinct keys, got %q %q %q", a, b, base)
	}
}
