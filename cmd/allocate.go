package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fieldalloc/app"
	"github.com/kilianp07/fieldalloc/core/allocation"
	"github.com/kilianp07/fieldalloc/core/model"
)

var allocateFlags struct {
	shadow    bool
	apply     bool
	preferred string
	customer  float64
	engineer  float64
	platform  float64
}

var allocateCmd = &cobra.Command{
	Use:   "allocate <booking-id>",
	Short: "Rank engineers for a booking and optionally apply the best one",
	Args:  cobra.ExactArgs(1),
	RunE:  allocate,
}

func init() {
	f := allocateCmd.Flags()
	f.BoolVar(&allocateFlags.shadow, "shadow", false, "compare with the legacy allocator without assigning")
	f.BoolVar(&allocateFlags.apply, "apply", false, "assign the selected engineer")
	f.StringVar(&allocateFlags.preferred, "date", "", "override the preferred date (YYYY-MM-DD)")
	f.Float64Var(&allocateFlags.customer, "customer-weight", 0, "customer weight")
	f.Float64Var(&allocateFlags.engineer, "engineer-weight", 0, "engineer weight")
	f.Float64Var(&allocateFlags.platform, "platform-weight", 0, "platform weight")
	allocateCmd.MarkFlagsMutuallyExclusive("shadow", "apply")
	allocateCmd.MarkFlagsRequiredTogether("customer-weight", "engineer-weight", "platform-weight")
	rootCmd.AddCommand(allocateCmd)
}

func allocate(cmd *cobra.Command, args []string) error {
	opts := allocation.Options{Shadow: allocateFlags.shadow, Apply: allocateFlags.apply}
	if cmd.Flags().Changed("customer-weight") {
		w := model.Weights{
			Customer: allocateFlags.customer,
			Engineer: allocateFlags.engineer,
			Platform: allocateFlags.platform,
		}
		if err := w.Validate(); err != nil {
			return err
		}
		opts.Weights = &w
	}
	if allocateFlags.preferred != "" {
		d, err := time.Parse(time.DateOnly, allocateFlags.preferred)
		if err != nil {
			return err
		}
		opts.PreferredDate = d
	}
	ctx := cmd.Context()
	return withService(ctx, func(svc *app.Service) error {
		stop, err := svc.Start(ctx)
		if err != nil {
			return err
		}
		defer stop()
		res, err := svc.Allocator.FindBestEngineer(ctx, args[0], opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}
