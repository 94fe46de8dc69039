package secrets

// DefaultRules returns rules for credentials commonly found in job logs.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "aws-access-key-id",
			Pattern:  `\b((?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16})\b`,
			Keywords: []string{"AKIA", "ASIA", "AGPA", "AIDA", "AROA"},
		},
		{
			// password=..., secret: ..., token=... in properties, command
			// lines and JDBC URLs.
			ID:       "key-value-secret",
			Pattern:  `(?i)\b(?:password|passwd|pwd|secret|token|api[_-]?key)\s*[:=]\s*['"]?([^\s'";&,]+)`,
			Keywords: []string{"pass", "pwd", "secret", "token", "key"},
		},
		{
			ID:       "url-credentials",
			Pattern:  `\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^:/\s@]+:([^@/\s]+)@`,
			Keywords: []string{"://"},
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)\bbearer\s+([A-Za-z0-9\-._~+/]+=*)`,
			Keywords: []string{"bearer"},
		},
		{
			ID:       "github-token",
			Pattern:  `\b(gh[pousr]_[A-Za-z0-9]{36})\b`,
			Keywords: []string{"gh"},
		},
		{
			ID:       "private-key",
			Pattern:  `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY-----`,
			Keywords: []string{"PRIVATE KEY"},
		},
	}
}
