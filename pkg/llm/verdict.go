package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedVerdict is returned by ParseVerdict when the text holds no usable verdict.
var ErrMalformedVerdict = errors.New("malformed verdict")

// Verdict is one reviewer's structured review.
type Verdict struct {
	Approved         bool   `json:"approved"`
	ChangesRequested bool   `json:"changesRequested"`
	Body             string `json:"body"`
	Summary          string `json:"summary"`
	// Fallback is set when the verdict was not produced by the generator.
	Fallback bool `json:"-"`
}

// FallbackVerdict approves. Review availability wins over strict validation.
func FallbackVerdict() Verdict {
	return Verdict{
		Approved:         true,
		ChangesRequested: false,
		Body:             "Automated review could not be generated; approving based on the change set summary.",
		Summary:          "Approved (fallback review)",
		Fallback:         true,
	}
}

type rawVerdict struct {
	Approved         *bool  `json:"approved"`
	ChangesRequested *bool  `json:"changesRequested"`
	Body             string `json:"body"`
	Summary          string `json:"summary"`
}

// ParseVerdict extracts a verdict from generator output. It accepts a bare JSON object,
// one wrapped in a markdown fence, or one embedded in prose. On failure it returns
// FallbackVerdict together with a *GenerationError.
func ParseVerdict(raw string) (Verdict, error) {
	fail := func(err error) (Verdict, error) {
		return FallbackVerdict(), &GenerationError{Purpose: PurposeVerdict, Err: err, Raw: raw}
	}

	obj := extractJSONObject(raw)
	if obj == "" {
		return fail(fmt.Errorf("%w: no JSON object in response", ErrMalformedVerdict))
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(obj), &rv); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMalformedVerdict, err))
	}
	if rv.Approved == nil {
		return fail(fmt.Errorf("%w: missing approved field", ErrMalformedVerdict))
	}

	v := Verdict{
		Approved: *rv.Approved,
		Body:     strings.TrimSpace(rv.Body),
		Summary:  strings.TrimSpace(rv.Summary),
	}
	if rv.ChangesRequested != nil {
		v.ChangesRequested = *rv.ChangesRequested
	} else {
		v.ChangesRequested = !v.Approved
	}
	if v.ChangesRequested {
		v.Approved = false
	}
	if v.Summary == "" {
		v.Summary = firstLine(v.Body)
	}
	if v.Body == "" {
		v.Body = v.Summary
	}
	return v, nil
}

// extractJSONObject returns the outermost {...} span of s, ignoring code fences.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const limit = 120
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
