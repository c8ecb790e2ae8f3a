package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
	"wbcalc/internal/settings"
)

// cliWarehouseID is the in-memory warehouse used when tariffs come from flags.
const cliWarehouseID = 1

type calcFlags struct {
	dims       string
	cogs       float64
	commission float64
	logistics  float64
	reverse    float64
	buyback    float64
	storage    float64

	acquiring   float64
	advertising float64
	vat         float64
	tax         float64
	margin      float64
	discount    float64

	baseLiter   float64
	extraLiter  float64
	coefficient float64

	json bool
}

func newCalcCommand(a *app) *cobra.Command {
	defaults := settings.Factory()
	var f calcFlags

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price one product locally and print the breakdown",
		Example: `  wbcalc calc --dims 30x20x10 --cogs 500 --commission 25 --reverse 50
  wbcalc calc --dims 130x40x40 --cogs 3000 --commission 15 --logistics 1200 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, cat, err := f.request(a.cfg.Pricing.DefaultTariffs())
			if err != nil {
				return err
			}

			svc := calculator.New(calculator.Options{
				Tariffs:        cat,
				Commissions:    cat,
				DefaultTariffs: a.cfg.Pricing.DefaultTariffs(),
				Thresholds:     a.cfg.Pricing.Thresholds(),
				Logger:         zap.NewNop(),
			})
			res, err := svc.Calculate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, calculator.FormatSummary(res))
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.dims, "dims", "", "Package dimensions in cm, LxWxH")
	fl.Float64Var(&f.cogs, "cogs", 0, "Cost of goods per unit, RUB")
	fl.Float64Var(&f.commission, "commission", 0, "Category commission, %")
	fl.Float64Var(&f.logistics, "logistics", 0, "Manual forward logistics, RUB (required for KGT)")
	fl.Float64Var(&f.reverse, "reverse", 0, "Reverse logistics per return, RUB (not counted when unset)")
	fl.Float64Var(&f.buyback, "buyback", defaults.BuybackPct, "Buyback, %")
	fl.Float64Var(&f.storage, "storage", defaults.StorageRub, "Storage per unit, RUB")

	fl.Float64Var(&f.acquiring, "acquiring", defaults.AcquiringPct, "Acquiring, %")
	fl.Float64Var(&f.advertising, "drr", defaults.AdvertisingPct, "Advertising spend (DRR), %")
	fl.Float64Var(&f.vat, "vat", defaults.VATPct, "VAT, %")
	fl.Float64Var(&f.tax, "tax", defaults.TaxIncomePct, "Income tax, %")
	fl.Float64Var(&f.margin, "margin", defaults.MarginPct, "Target margin, %")
	fl.Float64Var(&f.discount, "discount", 0, "Seller discount shown on the storefront, %")

	fl.Float64Var(&f.baseLiter, "base-liter", 0, "Warehouse rate for the first liter, RUB (default tariff when unset)")
	fl.Float64Var(&f.extraLiter, "extra-liter", 0, "Warehouse rate per additional liter, RUB")
	fl.Float64Var(&f.coefficient, "coefficient", 0, "Warehouse coefficient as a multiplier, e.g. 1.25")

	fl.BoolVar(&f.json, "json", false, "Print the result as JSON")

	_ = cmd.MarkFlagRequired("dims")
	_ = cmd.MarkFlagRequired("cogs")
	_ = cmd.MarkFlagRequired("commission")
	return cmd
}

// request builds the calculation input and the in-memory catalog it runs against.
func (f calcFlags) request(fallback pricing.BoxDeliveryTariffs) (calculator.Request, *calculator.MemoryCatalog, error) {
	dims, err := parseDims(f.dims)
	if err != nil {
		return calculator.Request{}, nil, err
	}

	commission := f.commission
	req := calculator.Request{
		Dimensions:                dims,
		CommissionPct:             &commission,
		COGSRub:                   f.cogs,
		LogisticsForwardManualRub: f.logistics,
		LogisticsReverseRub:       f.reverse,
		BuybackPct:                f.buyback,
		StorageRub:                f.storage,
		AcquiringPct:              f.acquiring,
		AdvertisingPct:            f.advertising,
		VATPct:                    f.vat,
		TaxIncomePct:              f.tax,
		MarginPct:                 f.margin,
		DiscountPct:               f.discount,
	}

	cat := &calculator.MemoryCatalog{}
	if f.baseLiter > 0 || f.extraLiter > 0 || f.coefficient > 0 {
		tariffs := fallback
		if f.baseLiter > 0 {
			tariffs.BaseLiterRub = f.baseLiter
		}
		if f.extraLiter > 0 {
			tariffs.AdditionalLiterRub = f.extraLiter
		}
		if f.coefficient > 0 {
			tariffs.Coefficient = f.coefficient
		}
		cat.Warehouses = []catalog.Warehouse{{ID: cliWarehouseID, Name: "CLI", Tariffs: &tariffs}}
		req.WarehouseID = cliWarehouseID
	}
	return req, cat, nil
}

func parseDims(s string) (pricing.Dimensions, error) {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == 'x' || r == '×' || r == '*' || r == ' '
	})
	if len(fields) != 3 {
		return pricing.Dimensions{}, errors.New("--dims must look like 30x20x10")
	}

	var sides [3]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.ReplaceAll(field, ",", "."), 64)
		if err != nil || v <= 0 {
			return pricing.Dimensions{}, fmt.Errorf("--dims: invalid side %q", field)
		}
		sides[i] = v
	}
	return pricing.Dimensions{LengthCM: sides[0], WidthCM: sides[1], HeightCM: sides[2]}, nil
}
