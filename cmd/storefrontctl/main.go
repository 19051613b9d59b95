// Command storefrontctl is the operator CLI: it builds SPD payment payloads,
// computes order totals, and inspects or clears stored carts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Lakyn80/naramkova-moda/internal/platform/config"
)

func main() {
	root := newRootCmd(func(ctx context.Context) (config.Config, error) {
		return config.Load(ctx)
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
