package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fieldalloc/app"
	"github.com/kilianp07/fieldalloc/core/model"
)

var priceFlags struct {
	site        string
	service     string
	customer    string
	date        string
	quantity    int
	flexibility string
	simulate    bool
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Quote a service for a date",
	Args:  cobra.NoArgs,
	RunE:  price,
}

func init() {
	f := priceCmd.Flags()
	f.StringVar(&priceFlags.site, "site", "", "site id")
	f.StringVar(&priceFlags.service, "service", "", "service id")
	f.StringVar(&priceFlags.customer, "customer", "", "customer id")
	f.StringVar(&priceFlags.date, "date", "", "job date (YYYY-MM-DD)")
	f.IntVar(&priceFlags.quantity, "quantity", 1, "number of units")
	f.StringVar(&priceFlags.flexibility, "flexibility", string(model.FlexExact), "exact, flexible_day or flexible_week")
	f.BoolVar(&priceFlags.simulate, "simulate", false, "compare fixed and week-flexible prices")
	_ = priceCmd.MarkFlagRequired("service")
	_ = priceCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(priceCmd)
}

func price(cmd *cobra.Command, _ []string) error {
	date, err := time.Parse(time.DateOnly, priceFlags.date)
	if err != nil {
		return err
	}
	flex := model.Flexibility(priceFlags.flexibility)
	switch flex {
	case model.FlexExact, model.FlexFlexibleDay, model.FlexFlexibleWeek:
	default:
		return errors.New("flexibility must be exact, flexible_day or flexible_week")
	}
	ctx := cmd.Context()
	return withService(ctx, func(svc *app.Service) error {
		if priceFlags.simulate {
			sim, err := svc.Pricing.SimulatePricing(ctx, priceFlags.site, priceFlags.service, date, priceFlags.customer)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sim)
		}
		res, err := svc.Pricing.CalculatePrice(ctx, model.PricingContext{
			SiteID:      priceFlags.site,
			ServiceID:   priceFlags.service,
			CustomerID:  priceFlags.customer,
			Date:        date,
			Quantity:    priceFlags.quantity,
			Flexibility: flex,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}
