package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	productName  string
	productPrice string
	productStock int
)

var productCmd = &cobra.Command{
	Use:   "product-add",
	Short: "Add a product with initial stock",
	Long: `Add a product row so checkouts can reserve it.

Examples:
  natrip-payments product-add --name "Mochila Trilha" --price 189.90 --stock 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(productPrice)
		if err != nil {
			return fmt.Errorf("invalid --price: %w", err)
		}
		if productStock < 0 {
			return fmt.Errorf("--stock must not be negative")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.products.Create(cmd.Context(), productName, price, productStock)
		if err != nil {
			return err
		}
		fmt.Printf("product %d: %s price=%s stock=%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
		return nil
	},
}

func init() {
	productCmd.Flags().StringVar(&productName, "name", "", "product name")
	productCmd.Flags().StringVar(&productPrice, "price", "0", "unit price")
	productCmd.Flags().IntVar(&productStock, "stock", 0, "initial stock")
	_ = productCmd.MarkFlagRequired("name")
}
