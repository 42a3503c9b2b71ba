package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"compliance_framework/compact"
	"compliance_framework/config"
)

// Extractor turns raw regulatory text into a structured Extraction by way
// of the primary text-completion provider. Credentials and endpoints come
// from the config passed at construction; there is no ambient lookup.
type Extractor struct {
	client *http.Client
	cfg    config.PipelineConfig
	prompt string
}

func NewExtractor(client *http.Client, cfg config.PipelineConfig, prompts config.PromptConfig) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second}
	}
	return &Extractor{client: client, cfg: cfg, prompt: prompts.ExtractionPrompt}
}

// Extract is all-or-nothing: any provider failure returns an error and the
// caller skips the item. Retry policy, if any, belongs to the scheduler.
func (e *Extractor) Extract(ctx context.Context, text string) (Extraction, error) {
	content, err := e.complete(ctx, fmt.Sprintf(e.prompt, text))
	if err != nil {
		return Extraction{}, err
	}
	rec := compact.Decode(content)
	return Extraction{
		ComplianceName: rec.String("compliance_name"),
		NewDueDate:     rec.String("new_due_date"),
		FinancialYear:  rec.String("financial_year"),
		IsPermanent:    rec.Bool("is_permanent"),
	}, nil
}

func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	endpoint := strings.TrimRight(e.cfg.ExtractBaseURL, "/") + "/v1/chat/completions"
	payload := map[string]interface{}{
		"model":       e.cfg.ExtractModel,
		"temperature": 0,
		"max_tokens":  e.cfg.ExtractMaxTokens,
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
	if strings.TrimSpace(e.cfg.ExtractAPIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.ExtractAPIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("extract provider status %d: %s", resp.StatusCode, string(body))
	}
	var wrapper struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if len(wrapper.Choices) == 0 {
		return "", errors.New("empty extract provider response")
	}
	content := strings.TrimSpace(wrapper.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("extract provider returned empty content")
	}
	return content, nil
}
