package secrets

import (
	"fmt"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksRules runs the gitleaks default configuration over a text.
type gitleaksRules struct {
	config gitleaksConfig.Config
}

type gitleaksFinding struct {
	span
	ruleID string
}

func newGitleaksRules() (*gitleaksRules, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	return &gitleaksRules{config: d.Config}, nil
}

// find returns the position of every secret gitleaks reports. A detector
// keeps its findings, so each call gets a fresh one over the shared config.
func (g *gitleaksRules) find(text string) []gitleaksFinding {
	if g == nil || text == "" {
		return nil
	}
	var out []gitleaksFinding
	for _, f := range detect.NewDetector(g.config).DetectString(text) {
		if f.Secret == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(text[from:], f.Secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, gitleaksFinding{
				span:   span{start, start + len(f.Secret)},
				ruleID: "gitleaks:" + f.RuleID,
			})
			from = start + len(f.Secret)
		}
	}
	return out
}
