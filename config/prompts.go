package config

import "strings"

// PromptConfig carries the provider prompt templates. Both are plain
// fmt.Sprintf templates; the stages fill in the regulatory text (and, for
// validation, the compact-encoded extraction). Overridable via config.yaml
// for prompt iteration without a rebuild.
type PromptConfig struct {
	ExtractionPrompt string `json:"extraction_prompt" yaml:"extraction_prompt"`
	ValidationPrompt string `json:"validation_prompt" yaml:"validation_prompt"`
}

type promptFileConfig struct {
	ExtractionPrompt string `json:"extraction_prompt" yaml:"extraction_prompt"`
	ValidationPrompt string `json:"validation_prompt" yaml:"validation_prompt"`
}

// DefaultPromptConfig returns the baked-in prompt templates.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		ExtractionPrompt: `Extract compliance information from the regulatory text below and return it
in compact format: pipe-separated key:value pairs on a single line.

Required fields:
- compliance_name: name of the compliance
- new_due_date: date in YYYY-MM-DD format
- financial_year: e.g. 2023-2024
- is_permanent: true or false

Example output:
compliance_name:GST GSTR-3B|new_due_date:2024-04-25|financial_year:2023-2024|is_permanent:false

Text:
%s

Return ONLY the compact formatted string:`,
		ValidationPrompt: `You are a senior compliance auditor. Verify whether the extracted data
matches the regulatory text.

Regulatory text:
%s

Extracted data (compact format, pipe-separated key:value pairs):
%s

Return the validation result in the same compact format with these fields:
- valid: true or false
- reason: brief explanation
- corrected_compliance_name: only if invalid
- corrected_new_due_date: only if invalid

Example:
valid:true|reason:Data matches text

Return ONLY the compact formatted validation:`,
	}
}

func applyPromptOverrides(base PromptConfig, override promptFileConfig) PromptConfig {
	if strings.TrimSpace(override.ExtractionPrompt) != "" {
		base.ExtractionPrompt = override.ExtractionPrompt
	}
	if strings.TrimSpace(override.ValidationPrompt) != "" {
		base.ValidationPrompt = override.ValidationPrompt
	}
	return base
}
