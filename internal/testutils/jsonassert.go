package testutils

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// MustJSON marshals v for use in test fixtures, panicking on failure.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// PresencePlaceholder, used as an expected value, asserts that the field
// exists without pinning what it holds. Sequence numbers and timestamps
// want this.
const PresencePlaceholder = "<<PRESENCE>>"

// jsonCompareRules is what the With options mutate. The defaults lean
// towards tolerant comparison: fixtures state what matters, actual
// payloads may carry more.
type jsonCompareRules struct {
	IgnoreExtraKeys          bool `default:"true"`
	NilToEmptyArray          bool `default:"true"`
	AllowPresencePlaceholder bool `default:"true"`
	CompareOnlyExpectedKeys  bool `default:"false"`
	IgnoreArrayOrder         bool `default:"false"`
	IgnoredFields            []string
}

// Option adjusts how a JSONAsserter compares documents.
type Option func(*jsonCompareRules)

// JSONAsserter compares JSON documents structurally and reports
// mismatches as a formatted delta rather than two raw blobs.
type JSONAsserter struct {
	t     *testing.T
	rules jsonCompareRules
}

// NewJSONAsserter creates an asserter with the default rules.
func NewJSONAsserter(t *testing.T) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.rules)
	return ja
}

// WithOptions applies options and returns the asserter for chaining.
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.rules)
	}
	return ja
}

// Assert fails the test when actualJSON differs from expectedJSON under
// the configured rules.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if delta := ja.compare(actualJSON, expectedJSON); delta != "" {
		ja.t.Errorf("JSON mismatch:\n%s", delta)
	}
}

// compare returns the empty string on a match, otherwise a parse error
// or the formatted delta.
func (ja *JSONAsserter) compare(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("expected document is not valid JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("actual document is not valid JSON: %v", err)
	}

	// gojsondiff wants objects at the root, so arrays get boxed.
	if _, ok := expected.([]any); ok {
		if _, ok := actual.([]any); ok {
			expected = map[string]any{"items": expected}
			actual = map[string]any{"items": actual}
		}
	}

	for _, field := range ja.rules.IgnoredFields {
		dropField(expected, field)
		dropField(actual, field)
	}
	// Sorting runs after ignored fields are gone so they cannot leak
	// into the sort key, and before align so elements pair up by index.
	if ja.rules.IgnoreArrayOrder {
		sortArraysDeep(expected)
		sortArraysDeep(actual)
	}
	ja.align(expected, actual)

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	delta, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("comparison failed: %v", err)
	}
	if !delta.Modified() {
		return ""
	}

	out, err := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	}).Format(delta)
	if err != nil {
		return fmt.Sprintf("delta formatting failed: %v", err)
	}
	return out
}

// align reconciles the two documents under the configured rules before
// diffing: presence placeholders adopt the actual value, null and empty
// arrays unify, and actual keys the expectation never mentions drop out
// when extra keys are ignored.
func (ja *JSONAsserter) align(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		if ja.rules.IgnoreExtraKeys || ja.rules.CompareOnlyExpectedKeys {
			for key := range act {
				if _, known := exp[key]; !known {
					delete(act, key)
				}
			}
		}
		for key, expVal := range exp {
			actVal, present := act[key]
			switch {
			case ja.rules.AllowPresencePlaceholder && expVal == PresencePlaceholder:
				// A missing key keeps the placeholder and the diff
				// reports the absence.
				if present {
					exp[key] = actVal
				}
			case ja.rules.NilToEmptyArray && nilArrayPair(expVal, actVal):
				if expVal == nil {
					exp[key] = []any{}
				}
				if actVal == nil {
					act[key] = []any{}
				}
			default:
				ja.align(expVal, actVal)
			}
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i, expVal := range exp {
			if i >= len(act) {
				return
			}
			switch {
			case ja.rules.AllowPresencePlaceholder && expVal == PresencePlaceholder:
				exp[i] = act[i]
			case ja.rules.NilToEmptyArray && nilArrayPair(expVal, act[i]):
				if expVal == nil {
					exp[i] = []any{}
				}
				if act[i] == nil {
					act[i] = []any{}
				}
			default:
				ja.align(expVal, act[i])
			}
		}
	}
}

// nilArrayPair reports whether one side is JSON null where the other is
// null or an empty array, the shape marshaling a nil Go slice produces.
func nilArrayPair(a, b any) bool {
	emptyArr := func(v any) bool {
		arr, ok := v.([]any)
		return ok && len(arr) == 0
	}
	if a == nil {
		return b == nil || emptyArr(b)
	}
	return b == nil && emptyArr(a)
}

// dropField removes every occurrence of the named field at any depth.
func dropField(doc any, field string) {
	switch v := doc.(type) {
	case map[string]any:
		delete(v, field)
		for _, child := range v {
			dropField(child, field)
		}
	case []any:
		for _, child := range v {
			dropField(child, field)
		}
	}
}

// sortArraysDeep orders array elements by their marshaled form so two
// documents listing the same members compare equal regardless of order.
// Children sort first so parent sort keys see canonical subtrees.
func sortArraysDeep(doc any) {
	switch v := doc.(type) {
	case map[string]any:
		for _, child := range v {
			sortArraysDeep(child)
		}
	case []any:
		for _, child := range v {
			sortArraysDeep(child)
		}
		sort.Slice(v, func(i, j int) bool {
			bi, _ := json.Marshal(v[i])
			bj, _ := json.Marshal(v[j])
			return string(bi) < string(bj)
		})
	}
}

// WithIgnoreExtraKeys controls whether keys present only in the actual
// document are ignored.
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(r *jsonCompareRules) { r.IgnoreExtraKeys = ignore }
}

// WithNilToEmptyArray controls whether null and [] compare equal.
func WithNilToEmptyArray(normalize bool) Option {
	return func(r *jsonCompareRules) { r.NilToEmptyArray = normalize }
}

// WithAllowPresencePlaceholder controls whether PresencePlaceholder
// values are honored.
func WithAllowPresencePlaceholder(allow bool) Option {
	return func(r *jsonCompareRules) { r.AllowPresencePlaceholder = allow }
}

// WithCompareOnlyExpectedKeys restricts the comparison to keys the
// expected document names.
func WithCompareOnlyExpectedKeys(only bool) Option {
	return func(r *jsonCompareRules) { r.CompareOnlyExpectedKeys = only }
}

// WithIgnoredFields names fields excluded from comparison wherever they
// appear. Timestamps like lastSeen go here.
func WithIgnoredFields(fields ...string) Option {
	return func(r *jsonCompareRules) { r.IgnoredFields = append(r.IgnoredFields, fields...) }
}

// WithIgnoreArrayOrder makes array comparison order-insensitive.
func WithIgnoreArrayOrder(ignore bool) Option {
	return func(r *jsonCompareRules) { r.IgnoreArrayOrder = ignore }
}
