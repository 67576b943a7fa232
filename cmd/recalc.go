package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fieldalloc/app"
	"github.com/kilianp07/fieldalloc/jobs/recalc"
)

var recalcKind string

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recalculate area intelligence and customer metrics once",
	Args:  cobra.NoArgs,
	RunE:  runRecalc,
}

func init() {
	recalcCmd.Flags().StringVar(&recalcKind, "kind", "all", "area, customer or all")
	rootCmd.AddCommand(recalcCmd)
}

func runRecalc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withService(ctx, func(svc *app.Service) error {
		var batches []func(context.Context) (recalc.Result, error)
		switch recalcKind {
		case recalc.KindArea:
			batches = append(batches, svc.Recalc.RunAreas)
		case recalc.KindCustomer:
			batches = append(batches, svc.Recalc.RunCustomers)
		case "all":
			batches = append(batches, svc.Recalc.RunAreas, svc.Recalc.RunCustomers)
		default:
			return fmt.Errorf("unknown kind %q", recalcKind)
		}
		var errs []error
		for _, run := range batches {
			r, err := run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d processed, %d failed in %s\n", r.Kind, r.Processed, r.Failed, r.Duration)
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}
