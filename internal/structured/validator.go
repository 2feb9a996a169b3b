package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

// Validator wraps a language-model provider and enforces a structured
// output contract: the response must parse as JSON into the target type
// and satisfy its validation tags. Malformed output triggers a repair
// re-prompt carrying the previous raw response and the specific
// violations, up to a fixed attempt budget.
type Validator struct {
	provider    llm.Provider
	validate    *validator.Validate
	maxAttempts int
}

// Result reports call accounting so callers can track cost: every
// attempt is a billable external call.
type Result struct {
	Attempts   int
	TokensUsed int
}

// New creates a Validator with the given attempt budget (minimum 1).
func New(provider llm.Provider, maxAttempts int) *Validator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Validator{
		provider:    provider,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		maxAttempts: maxAttempts,
	}
}

const repairTemplate = `Your previous response did not conform to the required JSON schema.

## Previous response:
%s

## Validation errors:
%s

Respond again with ONLY the corrected JSON object. No prose, no code fences.`

// Call invokes the provider and parses the response into out, which must
// be a non-nil pointer to a struct with json and validate tags. On
// schema violations it retries with a repair prompt. Returns the attempt
// count even on success so callers can account for repair cost.
func (v *Validator) Call(ctx context.Context, system, prompt string, out any) (*Result, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("structured output target must be a non-nil pointer")
	}

	res := &Result{}
	currentPrompt := prompt
	var lastRaw string
	var lastViolations []string
	var lastErr error

	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		res.Attempts = attempt

		resp, err := v.provider.Generate(ctx, llm.GenerateRequest{
			System:      system,
			Prompt:      currentPrompt,
			Temperature: 0.2,
		})
		if err != nil {
			// Capability failures are not schema failures: no repair
			// prompt will fix a timeout, so surface them directly.
			return res, err
		}
		res.TokensUsed += resp.TokensUsed
		lastRaw = resp.Text

		violations := v.parseInto(resp.Text, rv)
		if len(violations) == 0 {
			return res, nil
		}

		lastViolations = violations
		lastErr = fmt.Errorf("%s", strings.Join(violations, "; "))
		currentPrompt = prompt + "\n\n" + fmt.Sprintf(repairTemplate, resp.Text, "- "+strings.Join(violations, "\n- "))
	}

	return res, &model.StructuredOutputError{
		Attempts:    res.Attempts,
		RawResponse: lastRaw,
		Violations:  lastViolations,
		Err:         lastErr,
	}
}

// parseInto extracts JSON from raw text, unmarshals it into a fresh
// value of the target type, validates it, and on success copies it into
// dst. Returns the list of violations (empty on success).
func (v *Validator) parseInto(raw string, dst reflect.Value) []string {
	jsonText := ExtractJSON(raw)
	if jsonText == "" {
		return []string{"response contains no JSON object"}
	}

	// Decode into a fresh value so a failed attempt cannot leave
	// partial state behind in the caller's target.
	fresh := reflect.New(dst.Type().Elem())
	dec := json.NewDecoder(strings.NewReader(jsonText))
	if err := dec.Decode(fresh.Interface()); err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := v.validate.Struct(fresh.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if ok := errors.As(err, &verrs); ok {
			violations := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				violations = append(violations, fmt.Sprintf("field %q failed %q constraint (value: %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return violations
		}
		return []string{err.Error()}
	}

	dst.Elem().Set(fresh.Elem())
	return nil
}

// ExtractJSON pulls a JSON object out of model output, tolerating code
// fences and surrounding prose.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	// Fenced block first: ```json ... ```
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	// Fall back to the outermost braces
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
