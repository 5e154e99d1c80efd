package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// TestingT is the subset of testing.T the asserters report through.
// Taking the interface lets the asserters themselves be put under test.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TextAsserter compares rendered multi-line output and reports
// mismatches as a unified diff instead of two full blobs. Trailing
// whitespace on changed lines is made visible, since tabwriter padding
// differences are otherwise impossible to spot in a failure message.
type TextAsserter struct {
	t            TestingT
	trimOuter    bool
	trimTrailing bool
	skipBlank    bool
	colorize     bool
}

// TextOption adjusts how a TextAsserter normalizes input and renders
// the diff.
type TextOption func(*TextAsserter)

// NewTextAsserter creates an asserter reporting through t.
func NewTextAsserter(t *testing.T) *TextAsserter {
	return NewTextAsserterWithInterface(t)
}

// NewTextAsserterWithInterface creates an asserter reporting through any
// TestingT.
func NewTextAsserterWithInterface(t TestingT) *TextAsserter {
	return &TextAsserter{t: t}
}

// WithOptions applies options and returns the asserter for chaining.
func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(ta)
	}
	return ta
}

// Assert fails the test when actual differs from expected after the
// configured normalization.
func (ta *TextAsserter) Assert(actual, expected string) {
	want := ta.normalize(expected)
	got := ta.normalize(actual)
	if want == got {
		return
	}
	edits := myers.ComputeEdits("", want, got)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	ta.t.Errorf("text mismatch (-expected +actual):\n%s", ta.render(unified))
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.trimOuter {
		text = strings.TrimSpace(text)
	}
	if !ta.trimTrailing && !ta.skipBlank {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if ta.skipBlank && strings.TrimSpace(line) == "" {
			continue
		}
		if ta.trimTrailing {
			line = strings.TrimRight(line, " \t")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// render marks trailing whitespace on changed lines and, when enabled,
// colors the diff the way git does.
func (ta *TextAsserter) render(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = ta.paint(line, color.FgYellow)
		case strings.HasPrefix(line, "@@"):
			lines[i] = ta.paint(line, color.FgCyan)
		case strings.HasPrefix(line, "-"):
			lines[i] = ta.paint(exposeTrailing(line), color.FgRed)
		case strings.HasPrefix(line, "+"):
			lines[i] = ta.paint(exposeTrailing(line), color.FgGreen)
		}
	}
	return strings.Join(lines, "\n")
}

func (ta *TextAsserter) paint(line string, attr color.Attribute) string {
	if !ta.colorize {
		return line
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(line)
}

// exposeTrailing replaces trailing spaces with a middle dot and trailing
// tabs with an arrow so padding differences survive terminal rendering.
func exposeTrailing(line string) string {
	end := len(line)
	for end > 0 && (line[end-1] == ' ' || line[end-1] == '\t') {
		end--
	}
	if end == len(line) {
		return line
	}
	var marked strings.Builder
	marked.WriteString(line[:end])
	for _, c := range []byte(line[end:]) {
		if c == ' ' {
			marked.WriteRune('·')
		} else {
			marked.WriteRune('→')
		}
	}
	return marked.String()
}

// WithTrimSpace strips leading and trailing whitespace from the whole
// text before comparing.
func WithTrimSpace(trim bool) TextOption {
	return func(ta *TextAsserter) { ta.trimOuter = trim }
}

// WithIgnoreTrailingWhitespace strips trailing spaces and tabs from each
// line before comparing.
func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(ta *TextAsserter) { ta.trimTrailing = ignore }
}

// WithIgnoreEmptyLines drops blank lines before comparing.
func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(ta *TextAsserter) { ta.skipBlank = ignore }
}

// WithEnableColors colorizes the reported diff.
func WithEnableColors(enable bool) TextOption {
	return func(ta *TextAsserter) { ta.colorize = enable }
}
