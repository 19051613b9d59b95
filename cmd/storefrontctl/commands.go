package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/format"
	"github.com/Lakyn80/naramkova-moda/internal/money"
	"github.com/Lakyn80/naramkova-moda/internal/payment"
	"github.com/Lakyn80/naramkova-moda/internal/platform/config"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
)

type configLoader func(ctx context.Context) (config.Config, error)

func newRootCmd(load configLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Operate the naramkova-moda storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSPDCmd(),
		newVSCmd(),
		newTotalsCmd(),
		newCartCmd(load),
	)
	return root
}

func newSPDCmd() *cobra.Command {
	var (
		iban    string
		amount  string
		vs      int
		newVS   bool
		message string
	)
	cmd := &cobra.Command{
		Use:   "spd",
		Short: "Print the SPD payload for a bank transfer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := money.ParsePrice(amount)
			if err != nil {
				return err
			}
			if newVS {
				if vs, err = payment.GenerateReference(); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("message") && vs != 0 {
				message = "Objednávka " + strconv.Itoa(vs)
			}
			payload, err := payment.BuildPayload(payment.PaymentRequest{
				Account:   iban,
				Amount:    parsed,
				Reference: vs,
				Message:   payment.FoldDiacritics(message),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), payload)
			return err
		},
	}
	cmd.Flags().StringVar(&iban, "iban", os.Getenv("STOREFRONT_MERCHANT_IBAN"), "merchant IBAN")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in CZK, e.g. 416 or 416,50")
	cmd.Flags().IntVar(&vs, "vs", 0, "variable symbol")
	cmd.Flags().BoolVar(&newVS, "new-vs", false, "mint a fresh variable symbol")
	cmd.Flags().StringVar(&message, "message", "", "message for the recipient (defaults to \"Objednávka <vs>\")")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsMutuallyExclusive("vs", "new-vs")
	return cmd
}

func newVSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vs",
		Short: "Mint a variable symbol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := payment.GenerateReference()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
			return err
		},
	}
}

func newTotalsCmd() *cobra.Command {
	var (
		file string
		mode string
		fee  string
	)
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Compute order totals for a JSON list of cart lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			shipping, ok := domain.ParseShippingMode(mode)
			if !ok {
				return fmt.Errorf("unknown shipping mode %q", mode)
			}
			shippingFee, err := money.ParsePrice(fee)
			if err != nil {
				return err
			}
			lines, err := readLines(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return printTotals(cmd.OutOrStdout(), cart.ComputeTotals(lines, shipping, shippingFee))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "cart lines JSON file, - for stdin")
	cmd.Flags().StringVar(&mode, "mode", string(domain.DefaultShippingMode), "shipping mode: post or pickup")
	cmd.Flags().StringVar(&fee, "fee", "89", "postal shipping fee in CZK")
	return cmd
}

func newCartCmd(load configLoader) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect or clear a stored session cart",
	}
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id")
	_ = cmd.MarkPersistentFlagRequired("session")

	withCart := func(run func(cmd *cobra.Command, cfg config.Config, c *cart.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := load(ctx)
			if err != nil {
				return err
			}
			store, err := kvstore.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()
			return run(cmd, cfg, cart.Load(ctx, cart.Namespace(store, sessionID)))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "inspect",
			Short: "Print the cart lines, shipping mode, and totals",
			RunE: withCart(func(cmd *cobra.Command, cfg config.Config, c *cart.Store) error {
				snap := c.Snapshot()
				out := struct {
					cart.Snapshot
					Totals domain.OrderTotals `json:"totals"`
				}{snap, cart.ComputeTotals(snap.Lines, snap.ShippingMode, cfg.Merchant.ShippingFee)}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the cart; the shipping mode is kept",
			RunE: withCart(func(cmd *cobra.Command, _ config.Config, c *cart.Store) error {
				if err := c.Clear(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "cart %s cleared\n", sessionID)
				return err
			}),
		},
	)
	return cmd
}

func readLines(stdin io.Reader, file string) ([]domain.CartLine, error) {
	var r io.Reader = stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []domain.CartLine
	if err := json.NewDecoder(r).Decode(&lines); err != nil {
		return nil, errors.New("cart lines must be a JSON array")
	}
	return lines, nil
}

func printTotals(w io.Writer, totals domain.OrderTotals) error {
	_, err := fmt.Fprintf(w, "subtotal:  %s\nshipping:  %s\ntotal:     %s\n",
		format.CZK(totals.Subtotal), format.CZK(totals.ShippingFee), format.CZK(totals.GrandTotal))
	return err
}
