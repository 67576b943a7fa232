// Package export writes allocation decision records for offline review.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/fieldalloc/core/audit"
)

// Header is the CSV column order.
var Header = []string{
	"id", "timestamp", "kind", "booking_id", "engineer_id", "previous_engineer_id",
	"composite", "candidate_count", "viable_count", "applied",
	"legacy_engineer_id", "decision_changed", "improvement_percent", "reason",
}

// WriteJSON writes records to w as a JSON array.
func WriteJSON(w io.Writer, recs []audit.DecisionRecord) error {
	if recs == nil {
		recs = []audit.DecisionRecord{}
	}
	return json.NewEncoder(w).Encode(recs)
}

// WriteCSV writes one row per record. Candidate details are omitted.
func WriteCSV(w io.Writer, recs []audit.DecisionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.ID,
			r.Timestamp.UTC().Format(time.RFC3339),
			string(r.Kind),
			r.BookingID,
			r.EngineerID,
			r.PreviousEngineerID,
			strconv.FormatFloat(r.Composite, 'f', 2, 64),
			strconv.Itoa(r.CandidateCount),
			strconv.Itoa(r.ViableCount),
			strconv.FormatBool(r.Applied),
			"", "", "",
			r.Reason,
		}
		if l := r.Legacy; l != nil {
			row[10] = l.EngineerID
			row[11] = strconv.FormatBool(l.DecisionChanged)
			row[12] = strconv.FormatFloat(l.ImprovementPercent, 'f', 2, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, "json" or "csv".
func Write(w io.Writer, format string, recs []audit.DecisionRecord) error {
	switch strings.ToLower(format) {
	case "", "json":
		return WriteJSON(w, recs)
	case "csv":
		return WriteCSV(w, recs)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}
