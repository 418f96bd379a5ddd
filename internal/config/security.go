package config

import (
	"regexp"
	"strings"
)

type sensitivePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// The env table is the only place secrets tend to land in a launcher
// config, usually as N8N_ENCRYPTION_KEY or a database password.
var sensitivePatterns = []sensitivePattern{
	{"Encryption Key", regexp.MustCompile(`(?i)N8N_ENCRYPTION_KEY\s*=\s*['"].+['"]`)},
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*['"].+['"]`)},
	{"Token", regexp.MustCompile(`(?i)(token|api[_-]?key|secret)\s*=\s*['"][a-zA-Z0-9_-]{15,}['"]`)},
	{"GitHub Token", regexp.MustCompile(`gh[ps]_[a-zA-Z0-9]{36,}`)},
}

// SensitiveDataFinding is one line that looks like it holds a secret.
type SensitiveDataFinding struct {
	PatternName string
	Line        int
	Preview     string
}

// DetectSensitiveData scans config content for likely secrets.
// Comment lines are ignored.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding
	for i, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, p := range sensitivePatterns {
			if p.Pattern.MatchString(line) {
				findings = append(findings, SensitiveDataFinding{
					PatternName: p.Name,
					Line:        i + 1,
					Preview:     redactSensitiveValue(line),
				})
				break
			}
		}
	}
	return findings
}

// redactSensitiveValue keeps the key and masks the quoted value.
func redactSensitiveValue(line string) string {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "***"
	}
	return strings.TrimSpace(line[:idx]) + ` = "***"`
}
