package secrets

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Mask is the replacement text for every redacted span.
const Mask = "***"

// ValueEncoder derives an alternate encoding of a literal secret value.
// The encoded form is masked wherever it appears, in addition to the
// original form.
type ValueEncoder func(string) string

// Redactor masks registered secret values and pattern matches in text.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	values   []string
	encoders []ValueEncoder
	patterns []*regexp.Regexp
}

// span is a half-open [start, end) range scheduled for masking.
type span struct {
	start, end int
}

// NewRedactor creates an empty Redactor. Rules take effect in the order
// they are added.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// AddValue registers a literal secret value. The value and every
// encoder-derived variant of it are masked in all future output.
// Empty values are ignored.
func (r *Redactor) AddValue(value string) {
	if value == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values = append(r.values, value)
	for _, enc := range r.encoders {
		if v := applyEncoder(enc, value); v != "" && v != value {
			r.values = append(r.values, v)
		}
	}
}

// AddValueEncoder registers an encoder. It is applied retroactively to
// every value registered so far, and to every value added later.
func (r *Redactor) AddValueEncoder(enc ValueEncoder) {
	if enc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.encoders = append(r.encoders, enc)
	for _, value := range r.values {
		if v := applyEncoder(enc, value); v != "" && v != value {
			r.values = append(r.values, v)
		}
	}
}

// AddPattern registers a regex rule. If the expression contains a capture
// group, only the first group is masked; otherwise the whole match is.
// Returns an error if the expression does not compile.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact returns input with every registered value and pattern match
// replaced by Mask. Overlapping matches are merged before replacement.
func (r *Redactor) Redact(input string) string {
	if input == "" {
		return input
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	spans := make([]span, 0, 4)

	for _, value := range r.values {
		for i := 0; i+len(value) <= len(input); {
			j := indexFrom(input, value, i)
			if j < 0 {
				break
			}
			spans = append(spans, span{start: j, end: j + len(value)})
			i = j + len(value)
		}
	}

	for _, re := range r.patterns {
		for _, m := range re.FindAllStringSubmatchIndex(input, -1) {
			// Prefer the first capture group when it participated in
			// the match, so context like user and host survive.
			if len(m) >= 4 && m[2] >= 0 {
				spans = append(spans, span{start: m[2], end: m[3]})
			} else {
				spans = append(spans, span{start: m[0], end: m[1]})
			}
		}
	}

	if len(spans) == 0 {
		return input
	}

	merged := mergeSpans(spans)

	// Replace back to front so earlier offsets stay valid.
	out := input
	for i := len(merged) - 1; i >= 0; i-- {
		s := merged[i]
		out = out[:s.start] + Mask + out[s.end:]
	}
	return out
}

// applyEncoder runs enc and recovers a panic. A faulty encoder must not
// take down the write path; erring toward a missing variant is acceptable
// because the original value is still registered.
func applyEncoder(enc ValueEncoder, value string) (encoded string) {
	defer func() {
		if recover() != nil {
			encoded = ""
		}
	}()
	return enc(value)
}

// indexFrom returns the index of needle in haystack at or after offset,
// or -1.
func indexFrom(haystack, needle string, offset int) int {
	i := strings.Index(haystack[offset:], needle)
	if i < 0 {
		return -1
	}
	return offset + i
}

// mergeSpans merges overlapping or adjacent spans.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})

	merged := []span{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}
	return merged
}
