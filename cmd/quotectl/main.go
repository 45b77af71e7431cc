// Package main is the entry point for quotectl, an offline quoting tool that
// prices print jobs and plans shipping boxes against a catalog file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories/seed"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "quotectl",
		Short:         "Price print jobs and plan shipping boxes offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("catalog", "", "Path to a catalog YAML file (defaults to the built-in seed)")

	rootCmd.AddCommand(newPriceCmd(), newSplitCmd())
	return rootCmd
}

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a product configuration",
		Long: `Price a product configuration against the catalog.

Add-ons are given as ID or ID:key=value,key=value.

Example:
  quotectl price --stock 9pt-c2s --width 4 --height 6 --qty 1000 --speed fast \
    --add-on variable_data_printing --add-on hole_drilling:hole_type=3,hole_size=1/4`,
		Args: cobra.NoArgs,
		RunE: runPrice,
	}
	cmd.Flags().String("stock", "", "Paper stock ID")
	cmd.Flags().String("width", "", "Width in inches")
	cmd.Flags().String("height", "", "Height in inches")
	cmd.Flags().Int("qty", 0, "Quantity")
	cmd.Flags().String("sides", string(domain.SidesSingle), "single or double")
	cmd.Flags().String("speed", string(domain.SpeedEconomy), "economy, fast, faster or crazy_fast")
	cmd.Flags().StringArray("add-on", nil, "Add-on selection, repeatable")
	_ = cmd.MarkFlagRequired("stock")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a shipment weight into boxes",
		Args:  cobra.NoArgs,
		RunE:  runSplit,
	}
	cmd.Flags().Float64("weight", 0, "Total shipment weight in pounds")
	cmd.Flags().Float64("max", services.DefaultMaxBoxWeightLbs, "Maximum weight per box in pounds")
	_ = cmd.MarkFlagRequired("weight")
	return cmd
}

func runPrice(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	catalogPath, _ := cmd.Flags().GetString("catalog")
	stock, _ := flags.GetString("stock")
	widthRaw, _ := flags.GetString("width")
	heightRaw, _ := flags.GetString("height")
	qty, _ := flags.GetInt("qty")
	sidesRaw, _ := flags.GetString("sides")
	speedRaw, _ := flags.GetString("speed")
	addOnRaw, _ := flags.GetStringArray("add-on")

	width, err := decimal.NewFromString(widthRaw)
	if err != nil {
		return fmt.Errorf("invalid --width %q: %w", widthRaw, err)
	}
	height, err := decimal.NewFromString(heightRaw)
	if err != nil {
		return fmt.Errorf("invalid --height %q: %w", heightRaw, err)
	}
	speed, ok := domain.ParseSpeedCategory(speedRaw)
	if !ok {
		return fmt.Errorf("invalid --speed %q", speedRaw)
	}
	selections, err := parseAddOnSelections(addOnRaw)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	calc, err := services.NewPricingCalculator(ctx, services.PricingCalculatorDeps{
		Catalog: seed.NewCatalogRepository(catalogPath),
	})
	if err != nil {
		return err
	}

	breakdown, err := calc.Quote(ctx, domain.ProductConfiguration{
		PaperStockID: stock,
		WidthIn:      width,
		HeightIn:     height,
		Quantity:     qty,
		Sides:        domain.Sides(strings.ToLower(strings.TrimSpace(sidesRaw))),
		Speed:        speed,
	}, selections)
	if err != nil {
		return err
	}
	writeBreakdown(cmd.OutOrStdout(), breakdown)
	return nil
}

func runSplit(cmd *cobra.Command, _ []string) error {
	weight, _ := cmd.Flags().GetFloat64("weight")
	maxWeight, _ := cmd.Flags().GetFloat64("max")

	splitter, err := services.NewBoxSplitter(maxWeight, services.DefaultBoxDimensions)
	if err != nil {
		return err
	}
	packages, err := splitter.Split(weight)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, services.BoxSummary(packages))
	for i, pkg := range packages {
		fmt.Fprintf(out, "  box %d: %.2f lbs (%gx%gx%g in)\n", i+1, pkg.WeightLbs, pkg.LengthIn, pkg.WidthIn, pkg.HeightIn)
	}
	return nil
}

// parseAddOnSelections reads "id" or "id:key=value,key=value" entries.
func parseAddOnSelections(raw []string) ([]domain.AddOnSelection, error) {
	selections := make([]domain.AddOnSelection, 0, len(raw))
	for _, entry := range raw {
		id, opts, hasOpts := strings.Cut(strings.TrimSpace(entry), ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid --add-on %q: missing id", entry)
		}
		selection := domain.AddOnSelection{AddOnID: id}
		if hasOpts {
			selection.SubOptions = make(map[string]string)
			for _, pair := range strings.Split(opts, ",") {
				key, value, ok := strings.Cut(pair, "=")
				key = strings.TrimSpace(key)
				if !ok || key == "" {
					return nil, fmt.Errorf("invalid --add-on %q: expected key=value, got %q", entry, pair)
				}
				selection.SubOptions[key] = strings.TrimSpace(value)
			}
		}
		selections = append(selections, selection)
	}
	return selections, nil
}

func writeBreakdown(out io.Writer, b domain.PriceBreakdown) {
	fmt.Fprintf(out, "base cost:      %s\n", b.BaseCost.StringFixed(4))
	fmt.Fprintf(out, "marked up:      %s\n", b.MarkedUpCost.StringFixed(4))
	fmt.Fprintf(out, "turnaround:     x%s\n", b.TurnaroundMultiplier.String())
	fmt.Fprintf(out, "subtotal:       %s\n", b.Subtotal.StringFixed(2))
	for _, item := range b.AddOnLineItems {
		fmt.Fprintf(out, "  + %-26s %s\n", item.Name, item.Cost.StringFixed(2))
	}
	fmt.Fprintf(out, "add-ons:        %s\n", b.AddOnsCost.StringFixed(2))
	fmt.Fprintf(out, "total:          %s\n", b.TotalPrice.StringFixed(2))
}
