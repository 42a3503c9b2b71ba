package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"compliance_framework/compact"
	"compliance_framework/config"
	"compliance_framework/internal/metrics"
)

const anthropicVersion = "2023-06-01"

// Validator audits an extraction against the original text using the
// secondary provider. A broken validator must not block otherwise-good
// extractions, so provider failures fail open to a valid verdict.
type Validator struct {
	client *http.Client
	cfg    config.PipelineConfig
	prompt string
}

func NewValidator(client *http.Client, cfg config.PipelineConfig, prompts config.PromptConfig) *Validator {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second}
	}
	return &Validator{client: client, cfg: cfg, prompt: prompts.ValidationPrompt}
}

// Validate returns the provider's verdict, failing open when the provider
// is unreachable or returns garbage.
func (v *Validator) Validate(ctx context.Context, text string, ex Extraction) Verdict {
	content, err := v.complete(ctx, fmt.Sprintf(v.prompt, text, encodeExtraction(ex)))
	if err != nil {
		log.Printf("validation failed open: %v", err)
		metrics.IncFailedOpen()
		return Verdict{Valid: true, Reason: "Validation skipped due to error"}
	}

	rec := compact.Decode(content)
	verdict := Verdict{
		Valid:  rec.Bool("valid"),
		Reason: rec.String("reason"),
	}
	if verdict.Reason == "" {
		verdict.Reason = "Validation completed"
	}
	if !verdict.Valid {
		verdict.CorrectedName = rec.String("corrected_compliance_name")
		verdict.CorrectedDueDate = rec.String("corrected_new_due_date")
	}
	return verdict
}

// encodeExtraction re-encodes the record for the audit prompt. The
// permanence flag goes over the wire as a lowercase string.
func encodeExtraction(ex Extraction) string {
	rec := compact.NewRecord()
	rec.Set("compliance_name", ex.ComplianceName)
	rec.Set("new_due_date", ex.NewDueDate)
	rec.Set("financial_year", ex.FinancialYear)
	rec.Set("is_permanent", strconv.FormatBool(ex.IsPermanent))
	return compact.Encode(rec)
}

func (v *Validator) complete(ctx context.Context, prompt string) (string, error) {
	endpoint := strings.TrimRight(v.cfg.ValidateBaseURL, "/") + "/v1/messages"
	payload := map[string]interface{}{
		"model":      v.cfg.ValidateModel,
		"max_tokens": v.cfg.ValidateMaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", v.cfg.ValidateAPIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("validate provider status %d: %s", resp.StatusCode, string(body))
	}
	var wrapper struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if len(wrapper.Content) == 0 {
		return "", errors.New("empty validate provider response")
	}
	content := strings.TrimSpace(wrapper.Content[0].Text)
	if content == "" {
		return "", errors.New("validate provider returned empty content")
	}
	return content, nil
}
