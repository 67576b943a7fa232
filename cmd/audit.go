package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fieldalloc/app"
	"github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/pkg/export"
)

var auditFlags struct {
	booking  string
	engineer string
	kind     string
	since    time.Duration
	limit    int
	format   string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export recorded allocation decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := audit.Query{
			BookingID:  auditFlags.booking,
			EngineerID: auditFlags.engineer,
			Kind:       audit.Kind(auditFlags.kind),
			Limit:      auditFlags.limit,
		}
		if auditFlags.since > 0 {
			q.Start = time.Now().Add(-auditFlags.since)
		}
		ctx := cmd.Context()
		return withService(ctx, func(svc *app.Service) error {
			recs, err := svc.Audit.Query(ctx, q)
			if err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), auditFlags.format, recs)
		})
	},
}

func init() {
	f := auditCmd.Flags()
	f.StringVar(&auditFlags.booking, "booking", "", "filter by booking id")
	f.StringVar(&auditFlags.engineer, "engineer", "", "filter by engineer id")
	f.StringVar(&auditFlags.kind, "kind", "", "allocation, shadow, override or no_candidate")
	f.DurationVar(&auditFlags.since, "since", 0, "only records newer than this")
	f.IntVar(&auditFlags.limit, "limit", 100, "maximum records")
	f.StringVarP(&auditFlags.format, "format", "o", "json", "json or csv")
	rootCmd.AddCommand(auditCmd)
}
