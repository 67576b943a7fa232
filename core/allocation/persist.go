package allocation

import (
	"context"
	"time"

	"github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/monitoring"
)

// maxAuditCandidates bounds the candidate summaries kept per record.
const maxAuditCandidates = 10

// persist appends the allocation log, the score logs of the selection and
// its best viable alternatives, and the audit record. The decision has
// already been made; write failures are reported, not returned.
func (a *Allocator) persist(ctx context.Context, b model.Booking, res model.AllocationResult, w model.Weights, viable int) {
	sel := res.Selected
	now := a.now()
	meta := map[string]any{
		"customer_score": sel.Score.Customer,
		"engineer_score": sel.Score.Engineer,
		"platform_score": sel.Score.Platform,
		"viable_count":   viable,
		"date":           sel.Slot.Date.Format(time.DateOnly),
		"half_day":       string(sel.Slot.HalfDay),
		"price":          sel.Slot.Price,
	}
	if c := res.LegacyComparison; c != nil {
		meta["legacy_engineer_id"] = c.EngineerID
		meta["legacy_score"] = c.Score
		meta["decision_changed"] = c.DecisionChanged
		meta["improvement_percent"] = c.ImprovementPercent
		if c.Error != "" {
			meta["legacy_error"] = c.Error
		}
	}
	entry := model.AllocationLog{
		ID:             a.newID(),
		BookingID:      b.ID,
		EngineerID:     sel.Engineer.ID,
		PreviousID:     b.EngineerID,
		CompositeScore: sel.Score.Composite,
		Weights:        w,
		CandidateCount: len(res.Candidates),
		Shadow:         res.Shadow,
		Metadata:       meta,
		CreatedAt:      now,
	}
	if err := a.repo.AppendAllocationLog(ctx, entry); err != nil {
		a.log.Errorf("allocation: append allocation log for %s: %v", b.ID, err)
		monitoring.CaptureException(err, map[string]string{"component": "allocation", "op": "allocation_log"})
	}

	logs := make([]model.ScoreLog, 0, 1+a.cfg.Alternatives)
	for i, c := range res.Candidates {
		if !c.Viable || len(logs) > a.cfg.Alternatives {
			break
		}
		logs = append(logs, model.ScoreLog{
			ID:          a.newID(),
			BookingID:   b.ID,
			EngineerID:  c.Engineer.ID,
			Date:        c.Slot.Date,
			HalfDay:     c.Slot.HalfDay,
			Rank:        i + 1,
			Score:       c.Score,
			WasSelected: i == 0 && !res.Shadow,
			Shadow:      res.Shadow,
			CreatedAt:   now,
		})
	}
	if err := a.repo.AppendScoreLogs(ctx, logs); err != nil {
		a.log.Errorf("allocation: append score logs for %s: %v", b.ID, err)
		monitoring.CaptureException(err, map[string]string{"component": "allocation", "op": "score_logs"})
	}

	kind := audit.KindAllocation
	if res.Shadow {
		kind = audit.KindShadow
	}
	rec := a.decisionRecord(kind, b, res, w, viable)
	rec.ID = entry.ID
	a.appendAudit(ctx, rec)
}

func (a *Allocator) decisionRecord(kind audit.Kind, b model.Booking, res model.AllocationResult, w model.Weights, viable int) audit.DecisionRecord {
	rec := audit.DecisionRecord{
		ID:                 a.newID(),
		Timestamp:          a.now(),
		Kind:               kind,
		BookingID:          b.ID,
		PreviousEngineerID: b.EngineerID,
		Weights:            w,
		CandidateCount:     len(res.Candidates),
		ViableCount:        viable,
		Applied:            res.Applied,
		Reason:             res.Error,
		Legacy:             res.LegacyComparison,
	}
	if res.Selected != nil {
		rec.EngineerID = res.Selected.Engineer.ID
		rec.Composite = res.Selected.Score.Composite
	}
	for i, c := range res.Candidates {
		if i == maxAuditCandidates {
			break
		}
		rec.Candidates = append(rec.Candidates, audit.CandidateSummary{
			EngineerID: c.Engineer.ID,
			Date:       c.Slot.Date,
			HalfDay:    c.Slot.HalfDay,
			Composite:  c.Score.Composite,
			Customer:   c.Score.Customer,
			Engineer:   c.Score.Engineer,
			Platform:   c.Score.Platform,
			Viable:     c.Viable,
			Reasons:    c.Reasons,
		})
	}
	return rec
}

func (a *Allocator) appendAudit(ctx context.Context, rec audit.DecisionRecord) {
	if err := a.audit.Append(ctx, rec); err != nil {
		a.log.Errorf("allocation: audit record for %s: %v", rec.BookingID, err)
		monitoring.CaptureException(err, map[string]string{"component": "allocation", "op": "audit"})
	}
}
