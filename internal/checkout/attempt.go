package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
)

// KeyCheckoutAttempt holds the open attempt next to the cart keys of a session.
const KeyCheckoutAttempt = "checkoutAttempt"

// idempotencyNamespace scopes the UUID v5 order keys of this storefront.
var idempotencyNamespace = uuid.MustParse("7c1f2b9e-5d3a-4c8e-9f61-2a4b8d0e6c37")

// attempt ties a variable symbol to the cart contents it was minted for.
type attempt struct {
	Fingerprint    string `json:"fingerprint"`
	VS             int    `json:"vs"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type fingerprintLine struct {
	Key      string `json:"k"`
	Quantity int    `json:"q"`
	Price    int64  `json:"p"`
}

// fingerprint digests everything that changes what the customer pays for.
func fingerprint(snap cart.Snapshot, totals domain.OrderTotals) string {
	lines := make([]fingerprintLine, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, fingerprintLine{Key: l.Key, Quantity: l.Quantity, Price: int64(l.Price)})
	}
	body, _ := json.Marshal(struct {
		Lines []fingerprintLine    `json:"l"`
		Mode  domain.ShippingMode `json:"m"`
		Total int64               `json:"t"`
	}{lines, snap.ShippingMode, int64(totals.GrandTotal)})
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func idempotencyKey(fp string, vs int) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fp+":"+strconv.Itoa(vs))).String()
}

func loadAttempt(ctx context.Context, kv kvstore.Store) (attempt, bool, error) {
	raw, ok, err := kv.Get(ctx, KeyCheckoutAttempt)
	if err != nil || !ok {
		return attempt{}, false, err
	}
	var a attempt
	if err := json.Unmarshal(raw, &a); err != nil || a.Fingerprint == "" || a.VS == 0 {
		return attempt{}, false, nil
	}
	return a, true, nil
}

func saveAttempt(ctx context.Context, kv kvstore.Store, a attempt) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("checkout: encode attempt: %w", err)
	}
	return kv.Set(ctx, KeyCheckoutAttempt, body)
}
