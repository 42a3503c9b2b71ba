package pipeline

// Extraction is the normalized record produced by the extraction stage.
// Missing fields decode to their zero values.
type Extraction struct {
	ComplianceName string
	NewDueDate     string
	FinancialYear  string
	IsPermanent    bool
}

// Verdict is the validation stage's audit of an extraction. Corrected
// fields are only meaningful when Valid is false, and the validator is only
// trusted to correct the compliance name and due date.
type Verdict struct {
	Valid            bool
	Reason           string
	CorrectedName    string
	CorrectedDueDate string
}

// ReasonAutomated tags ledger entries created by this pipeline.
const ReasonAutomated = "AI Detected Update"

// Per-item outcomes.
const (
	OutcomeAppended       = "APPENDED"
	OutcomeExtractFailed  = "EXTRACT_FAILED"
	OutcomeNoMatch        = "NO_MATCH"
	OutcomeAmbiguousMatch = "AMBIGUOUS_MATCH"
	OutcomeBadDate        = "BAD_DATE"
	OutcomeStoreError     = "STORE_ERROR"
)

// ItemOutcome describes what happened to one notice during a run.
type ItemOutcome struct {
	NoticeID string `json:"notice_id"`
	Source   string `json:"source"`
	Status   string `json:"status"`
	Detail   string `json:"detail"`
}

// RunResult summarizes one pipeline pass over the pending notices.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Appended  int           `json:"appended"`
	Skipped   int           `json:"skipped"`
	Outcomes  []ItemOutcome `json:"outcomes"`
}
