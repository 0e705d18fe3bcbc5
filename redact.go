package strand

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Redactor is a stock lifecycle hook that normalizes model output and tool
// results to NFC, strips control characters, and scrubs configured
// patterns. Wire it with WithHooks.
type Redactor struct {
	// Patterns are scrubbed from text; each match is replaced with
	// Replacement.
	Patterns []*regexp.Regexp
	// Replacement substitutes for each pattern match. Empty means
	// "[redacted]".
	Replacement string
}

var _ AfterStreamHook = (*Redactor)(nil)
var _ AfterToolHook = (*Redactor)(nil)

// NewRedactor builds a Redactor from pattern strings. Invalid patterns are
// skipped.
func NewRedactor(patterns ...string) *Redactor {
	r := &Redactor{}
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			r.Patterns = append(r.Patterns, re)
		}
	}
	return r
}

func (r *Redactor) AfterStream(_ context.Context, out *ModelOutput) error {
	out.Text = r.clean(out.Text)
	return nil
}

func (r *Redactor) AfterTool(_ context.Context, _ FunctionCall, resp *Part) error {
	if resp.Response != nil {
		cleaned := *resp.Response
		cleaned.Content = r.clean(cleaned.Content)
		resp.Response = &cleaned
	}
	return nil
}

func (r *Redactor) clean(s string) string {
	if s == "" {
		return s
	}
	// Unicode normalization defeats homoglyph smuggling of scrubbed terms.
	s = norm.NFC.String(s)
	s = stripControl(s)
	replacement := r.Replacement
	if replacement == "" {
		replacement = "[redacted]"
	}
	for _, re := range r.Patterns {
		s = re.ReplaceAllString(s, replacement)
	}
	return s
}

// stripControl removes C0/C1 control characters except tab and newline.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || (r >= 0x7f && r < 0xa0) {
			return -1
		}
		return r
	}, s)
}
