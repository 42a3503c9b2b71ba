package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"compliance_framework/config"
	"compliance_framework/internal/events"
	"compliance_framework/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, extractURL, validateURL string) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	cfg := testPipelineConfig(extractURL, validateURL)
	prompts := config.DefaultPromptConfig()
	svc := NewService(st, NewExtractor(nil, cfg, prompts), NewValidator(nil, cfg, prompts), events.NewBus(), nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, st
}

func seedNotice(t *testing.T, st *store.Store, id, body string) {
	t.Helper()
	if err := st.InsertNotice(context.Background(), store.Notice{ID: id, Source: id + ".txt", Body: body}, fixedNow); err != nil {
		t.Fatal(err)
	}
}

const gstExtraction = "compliance_name:GST GSTR-3B|new_due_date:2024-04-25|financial_year:2023-2024|is_permanent:false"

func TestProcessPendingAppendsOverride(t *testing.T) {
	extract := chatCompletionServer(t, gstExtraction, nil)
	defer extract.Close()
	validate := messagesServer(t, "valid:true|reason:Data matches text", nil)
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	masterID, err := st.InsertMaster(ctx, store.Master{Name: "GST GSTR-3B", Frequency: "monthly"}, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	seedNotice(t, st, "n1", "The due date for GST GSTR-3B for March 2024 is extended to 25th April 2024.")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 1 || result.Appended != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	overrides, err := st.ListOverrides(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 1 {
		t.Fatalf("expected exactly one override, got %d", len(overrides))
	}
	ov := overrides[0]
	if ov.MasterID != masterID {
		t.Fatalf("master id=%d want %d", ov.MasterID, masterID)
	}
	if got := ov.NewDueDate.Format("2006-01-02"); got != "2024-04-25" {
		t.Fatalf("due date=%s", got)
	}
	if ov.Year != fixedNow.Year() {
		t.Fatalf("year=%d want current year %d", ov.Year, fixedNow.Year())
	}
	if ov.IsPermanent {
		t.Fatal("permanence must carry through as false")
	}
	if ov.Reason != ReasonAutomated {
		t.Fatalf("reason=%q", ov.Reason)
	}
}

func TestProcessPendingNoMasterMatchDropsItem(t *testing.T) {
	extract := chatCompletionServer(t, gstExtraction, nil)
	defer extract.Close()
	validate := messagesServer(t, "valid:true|reason:ok", nil)
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	seedNotice(t, st, "n1", "text")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Appended != 0 || result.Skipped != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Outcomes[0].Status != OutcomeNoMatch {
		t.Fatalf("outcome=%s", result.Outcomes[0].Status)
	}
	overrides, _ := st.ListOverrides(ctx, 10)
	if len(overrides) != 0 {
		t.Fatalf("expected zero overrides, got %d", len(overrides))
	}
}

func TestProcessPendingExtractionFailureSkipsValidation(t *testing.T) {
	extract := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer extract.Close()
	var validateCalls int64
	validate := messagesServer(t, "valid:true|reason:ok", func(*http.Request) {
		atomic.AddInt64(&validateCalls, 1)
	})
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	seedNotice(t, st, "n1", "text")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Appended != 0 {
		t.Fatalf("expected zero appends, got %d", result.Appended)
	}
	if result.Outcomes[0].Status != OutcomeExtractFailed {
		t.Fatalf("outcome=%s", result.Outcomes[0].Status)
	}
	if n := atomic.LoadInt64(&validateCalls); n != 0 {
		t.Fatalf("validator must not be called after extraction failure, got %d calls", n)
	}
}

func TestProcessPendingValidatorFailureFailsOpen(t *testing.T) {
	extract := chatCompletionServer(t, gstExtraction, nil)
	defer extract.Close()
	validate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	if _, err := st.InsertMaster(ctx, store.Master{Name: "GST GSTR-3B"}, fixedNow); err != nil {
		t.Fatal(err)
	}
	seedNotice(t, st, "n1", "text")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Appended != 1 {
		t.Fatalf("fail-open validation must not block the append: %+v", result)
	}
	overrides, _ := st.ListOverrides(ctx, 10)
	if got := overrides[0].NewDueDate.Format("2006-01-02"); got != "2024-04-25" {
		t.Fatalf("original extraction must be used unmodified, due=%s", got)
	}
}

func TestProcessPendingInvalidVerdictSubstitutesNameAndDateOnly(t *testing.T) {
	extract := chatCompletionServer(t, "compliance_name:GST GSTR-3B|new_due_date:2024-04-25|financial_year:2023-2024|is_permanent:true", nil)
	defer extract.Close()
	validate := messagesServer(t, "valid:false|reason:Wrong compliance|corrected_compliance_name:Income Tax Return|corrected_new_due_date:2024-07-31", nil)
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	itrID, err := st.InsertMaster(ctx, store.Master{Name: "Income Tax Return"}, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.InsertMaster(ctx, store.Master{Name: "GST GSTR-3B"}, fixedNow); err != nil {
		t.Fatal(err)
	}
	seedNotice(t, st, "n1", "text")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Appended != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	overrides, _ := st.ListOverrides(ctx, 10)
	ov := overrides[0]
	if ov.MasterID != itrID {
		t.Fatalf("corrected name must drive the match, master=%d", ov.MasterID)
	}
	if got := ov.NewDueDate.Format("2006-01-02"); got != "2024-07-31" {
		t.Fatalf("corrected date must be used, due=%s", got)
	}
	if !ov.IsPermanent {
		t.Fatal("permanence flag must carry over from the original extraction")
	}
}

func TestProcessPendingMalformedDateRejectsItem(t *testing.T) {
	extract := chatCompletionServer(t, "compliance_name:GST GSTR-3B|new_due_date:April 25th|financial_year:2023-2024|is_permanent:false", nil)
	defer extract.Close()
	validate := messagesServer(t, "valid:true|reason:ok", nil)
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	if _, err := st.InsertMaster(ctx, store.Master{Name: "GST GSTR-3B"}, fixedNow); err != nil {
		t.Fatal(err)
	}
	seedNotice(t, st, "n1", "text")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Appended != 0 || result.Outcomes[0].Status != OutcomeBadDate {
		t.Fatalf("malformed date must reject the item: %+v", result)
	}
	overrides, _ := st.ListOverrides(ctx, 10)
	if len(overrides) != 0 {
		t.Fatal("no fabricated fallback date may be stored")
	}
}

func TestProcessPendingItemIsolation(t *testing.T) {
	// First extraction call fails, the second succeeds; the failing item
	// must not stop the other from reaching the ledger.
	var calls int64
	extract := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": gstExtraction}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer extract.Close()
	validate := messagesServer(t, "valid:true|reason:ok", nil)
	defer validate.Close()

	svc, st := newTestService(t, extract.URL, validate.URL)
	ctx := context.Background()
	if _, err := st.InsertMaster(ctx, store.Master{Name: "GST GSTR-3B"}, fixedNow); err != nil {
		t.Fatal(err)
	}
	seedNotice(t, st, "n1", "text one")
	seedNotice(t, st, "n2", "text two")

	result, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 2 || result.Appended != 1 || result.Skipped != 1 {
		t.Fatalf("items must process independently: %+v", result)
	}
	runs, err := st.ListRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Processed != 2 || runs[0].Appended != 1 {
		t.Fatalf("run bookkeeping lost: %+v", runs)
	}
}
