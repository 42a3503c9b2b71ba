package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliance_framework/internal/events"
	"compliance_framework/internal/metrics"
	"compliance_framework/internal/notify"
	"compliance_framework/internal/store"
)

// Service orchestrates the reconciliation pass: extraction, validation,
// master matching, and the ledger append, one pending notice at a time.
// A failure in one item never affects another.
type Service struct {
	store     *store.Store
	extractor *Extractor
	validator *Validator
	bus       *events.Bus
	notifier  *notify.Notifier
	now       func() time.Time
}

func NewService(st *store.Store, ex *Extractor, va *Validator, bus *events.Bus, notifier *notify.Notifier) *Service {
	return &Service{
		store:     st,
		extractor: ex,
		validator: va,
		bus:       bus,
		notifier:  notifier,
		now:       time.Now,
	}
}

// ProcessPending runs the pipeline over every pending notice. The returned
// error covers run-level failures (store unreachable); per-item failures
// are skips, not errors.
func (s *Service) ProcessPending(ctx context.Context) (RunResult, error) {
	runID := uuid.NewString()
	result := RunResult{RunID: runID}
	if err := s.store.StartRun(ctx, runID, s.now().UTC()); err != nil {
		log.Printf("run start failed: %v", err)
	}

	notices, err := s.store.ListPendingNotices(ctx)
	if err != nil {
		s.finishRun(ctx, runID, "failed", err.Error(), result)
		return result, err
	}

	for _, notice := range notices {
		outcome := s.processNotice(ctx, notice)
		result.Processed++
		result.Outcomes = append(result.Outcomes, outcome)
		metrics.IncProcessed()
		if outcome.Status == OutcomeAppended {
			result.Appended++
			metrics.IncAppended()
		} else {
			result.Skipped++
			metrics.IncSkipped()
		}
		s.publish(outcome)
	}

	s.finishRun(ctx, runID, "ok", "", result)
	metrics.IncRuns()
	return result, nil
}

func (s *Service) processNotice(ctx context.Context, notice store.Notice) ItemOutcome {
	outcome := ItemOutcome{NoticeID: notice.ID, Source: notice.Source}

	extracted, err := s.extractor.Extract(ctx, notice.Body)
	if err != nil {
		log.Printf("extraction failed for %s: %v", notice.Source, err)
		return s.skip(ctx, notice, outcome, OutcomeExtractFailed, err.Error())
	}

	verdict := s.validator.Validate(ctx, notice.Body, extracted)
	final := resolve(extracted, verdict)

	masters, err := s.store.ListMasters(ctx)
	if err != nil {
		log.Printf("master lookup failed for %s: %v", notice.Source, err)
		return s.skip(ctx, notice, outcome, OutcomeStoreError, err.Error())
	}
	master, err := MatchMaster(masters, final.ComplianceName)
	switch {
	case errors.Is(err, ErrNoMatch):
		log.Printf("no master match for %q (%s)", final.ComplianceName, notice.Source)
		return s.skip(ctx, notice, outcome, OutcomeNoMatch, fmt.Sprintf("no master entry matching %q", final.ComplianceName))
	case errors.Is(err, ErrAmbiguousMatch):
		log.Printf("ambiguous master match for %q (%s)", final.ComplianceName, notice.Source)
		return s.skip(ctx, notice, outcome, OutcomeAmbiguousMatch, fmt.Sprintf("multiple master entries match %q", final.ComplianceName))
	case err != nil:
		return s.skip(ctx, notice, outcome, OutcomeStoreError, err.Error())
	}

	// A malformed date rejects the item; it is never stored as a
	// fabricated fallback value.
	due, err := time.Parse("2006-01-02", strings.TrimSpace(final.NewDueDate))
	if err != nil {
		log.Printf("bad due date %q for %s", final.NewDueDate, notice.Source)
		return s.skip(ctx, notice, outcome, OutcomeBadDate, fmt.Sprintf("unparseable due date %q", final.NewDueDate))
	}

	appended, err := s.store.AppendOverride(ctx, store.Override{
		MasterID:    master.ID,
		Year:        s.now().Year(),
		NewDueDate:  due,
		Reason:      ReasonAutomated,
		IsPermanent: final.IsPermanent,
		NoticeID:    notice.ID,
	}, s.now().UTC())
	if err != nil {
		log.Printf("override append failed for %s: %v", notice.Source, err)
		return s.skip(ctx, notice, outcome, OutcomeStoreError, err.Error())
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("override appended: %s due %s (%s)", master.Name, due.Format("2006-01-02"), verdict.Reason)
		if nerr := s.notifier.Send(ctx, msg); nerr != nil {
			log.Printf("webhook notify failed: %v", nerr)
		}
	}

	outcome.Status = OutcomeAppended
	outcome.Detail = fmt.Sprintf("override %d for %s", appended.ID, master.Name)
	return outcome
}

// resolve picks the final record. An invalid verdict substitutes only the
// compliance name and due date; financial year and permanence always carry
// over from the original extraction.
func resolve(extracted Extraction, verdict Verdict) Extraction {
	if verdict.Valid {
		return extracted
	}
	final := extracted
	if strings.TrimSpace(verdict.CorrectedName) != "" {
		final.ComplianceName = verdict.CorrectedName
	}
	if strings.TrimSpace(verdict.CorrectedDueDate) != "" {
		final.NewDueDate = verdict.CorrectedDueDate
	}
	return final
}

func (s *Service) skip(ctx context.Context, notice store.Notice, outcome ItemOutcome, status, detail string) ItemOutcome {
	outcome.Status = status
	outcome.Detail = detail
	if err := s.store.MarkNoticeSkipped(ctx, notice.ID, detail, s.now().UTC()); err != nil {
		log.Printf("skip bookkeeping failed for %s: %v", notice.Source, err)
	}
	return outcome
}

func (s *Service) publish(outcome ItemOutcome) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Kind:     outcome.Status,
		NoticeID: outcome.NoticeID,
		Source:   outcome.Source,
		Detail:   outcome.Detail,
		At:       s.now().UTC(),
	})
}

func (s *Service) finishRun(ctx context.Context, runID, status, errMsg string, result RunResult) {
	if err := s.store.FinishRun(ctx, runID, status, errMsg, result.Processed, result.Appended, result.Skipped, s.now().UTC()); err != nil {
		log.Printf("run finish failed: %v", err)
	}
}
