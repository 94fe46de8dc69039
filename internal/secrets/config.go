// Package secrets redacts credentials from job log text before it leaves the
// process as an OpenTelemetry log record.
//
// Job engines echo connection strings, command lines and HTTP headers into
// their logs. The scrubber replaces the secret part of each match and keeps
// the surrounding text, so "password=hunter22" becomes "password=[REDACTED]".
package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	Rules []Rule `koanf:"rules"`

	// Redaction is the replacement text (default "[REDACTED]").
	Redaction string `koanf:"redaction"`

	// AllowList holds patterns for values that are never redacted, such as
	// placeholders in sample configurations.
	AllowList []string `koanf:"allow_list"`

	// Gitleaks adds the gitleaks default rule set after Rules. It catches
	// far more token formats at a higher cost per scrub.
	Gitleaks bool `koanf:"gitleaks"`
}

// Rule detects one kind of secret. When Pattern has a capture group only the
// first group is redacted; otherwise the whole match is.
type Rule struct {
	ID      string `koanf:"id"`
	Pattern string `koanf:"pattern"`
	// Keywords, when set, must appear (case-insensitively) in the text for
	// the rule to run.
	Keywords []string `koanf:"keywords"`
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns an enabled config with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Rules:     DefaultRules(),
		Redaction: DefaultRedaction,
	}
}

func (c *Config) compile() ([]compiledRule, []*regexp.Regexp, error) {
	rules := make([]compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		cr := compiledRule{id: rule.ID, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}
	return rules, allow, nil
}
