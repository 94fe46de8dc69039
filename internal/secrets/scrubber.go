package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Result is the outcome of scrubbing one text.
type Result struct {
	Text string
	// ByRule counts redactions per rule ID.
	ByRule map[string]int
}

// Redacted returns the total number of redactions.
func (r Result) Redacted() int {
	n := 0
	for _, c := range r.ByRule {
		n += c
	}
	return n
}

// Scrubber redacts secrets from text. It is safe for concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
	gitleaks  *gitleaksRules
}

// New compiles cfg. A nil cfg selects DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	redaction := cfg.Redaction
	if redaction == "" {
		redaction = DefaultRedaction
	}
	s := &Scrubber{
		enabled:   cfg.Enabled,
		redaction: redaction,
		rules:     rules,
		allow:     allow,
	}
	if cfg.Gitleaks {
		if s.gitleaks, err = newGitleaksRules(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustNew is New that panics on an invalid config.
func MustNew(cfg *Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled reports whether Scrub changes anything. Safe on a nil Scrubber.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

type span struct{ start, end int }

// Scrub returns text with every detected secret replaced.
func (s *Scrubber) Scrub(text string) Result {
	res := Result{Text: text, ByRule: map[string]int{}}
	if !s.Enabled() || text == "" {
		return res
	}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(text) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			if start == end || s.allowed(text[start:end]) {
				continue
			}
			spans = append(spans, span{start, end})
			res.ByRule[rule.id]++
		}
	}
	for _, f := range s.gitleaks.find(text) {
		if s.allowed(text[f.start:f.end]) {
			continue
		}
		spans = append(spans, f.span)
		res.ByRule[f.ruleID]++
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()
	return res
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(v string) bool {
	for _, re := range s.allow {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := spans[:1]
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}
