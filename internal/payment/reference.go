// Package payment builds Czech domestic bank-transfer requests: the variable
// symbol that ties a transfer to an order, and the SPD payload that banking
// apps read from a QR code.
package payment

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// MinReference is the smallest variable symbol issued.
	MinReference = 100000
	// MaxReference is the largest variable symbol issued.
	MaxReference = 999999
)

// ReferenceFunc mints a variable symbol.
type ReferenceFunc func() (int, error)

// GenerateReference returns a uniformly random six-digit variable symbol.
func GenerateReference() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxReference-MinReference+1))
	if err != nil {
		return 0, fmt.Errorf("payment: generate reference: %w", err)
	}
	return MinReference + int(n.Int64()), nil
}
