package shopctl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// productColumns は一覧表に出すフィールド。
var productColumns = []string{"id", "name", "price", "category", "stock", "featured"}

// cell は一覧表のセルの表記を返す。フィールドがない場合は "-" とする。
func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func newProductsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := a.client(false)
			var raw json.RawMessage
			if err := client.GetJSON(cmd.Context(), "/product", &raw); err != nil {
				return describe(err)
			}
			if asJSON {
				var v any
				if err := json.Unmarshal(raw, &v); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			}

			var products []map[string]any
			if err := json.Unmarshal(raw, &products); err != nil {
				return fmt.Errorf("商品一覧のデコードに失敗: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.ToUpper(strings.Join(productColumns, "\t")))
			for _, p := range products {
				cells := make([]string, len(productColumns))
				for i, col := range productColumns {
					cells[i] = cell(p[col])
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Create products in bulk from a JSON array file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			client, err := a.client(true)
			if err != nil {
				return err
			}
			var resp struct {
				Message  string    `json:"message"`
				Products []product `json:"products"`
			}
			if err := client.PostJSON(cmd.Context(), "/product/bulk", json.RawMessage(data), &resp); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			for _, p := range resp.Products {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	}
}
