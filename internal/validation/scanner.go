package validation

import (
	"regexp"
	"strings"

	"github.com/conneroisu/unify/internal/interfaces"
)

// Severity levels reported by the scanner.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type securityRule struct {
	kind     string
	message  string
	severity string
	pattern  *regexp.Regexp
}

var securityRules = []securityRule{
	{
		kind:     "inline-event-handler",
		message:  "inline event handler attribute",
		severity: SeverityWarning,
		pattern:  regexp.MustCompile(`(?i)<[a-z][^>]*\son[a-z]+\s*=`),
	},
	{
		kind:     "javascript-url",
		message:  "javascript: URL in attribute",
		severity: SeverityCritical,
		pattern:  regexp.MustCompile(`(?i)(?:href|src|action)\s*=\s*["']?\s*javascript:`),
	},
	{
		kind:     "eval",
		message:  "use of eval()",
		severity: SeverityWarning,
		pattern:  regexp.MustCompile(`\beval\s*\(`),
	},
	{
		kind:     "insecure-resource",
		message:  "script or stylesheet loaded over plain http",
		severity: SeverityWarning,
		pattern:  regexp.MustCompile(`(?i)<(?:script|link)[^>]+(?:src|href)\s*=\s*["']http://`),
	},
}

// Scanner implements interfaces.SecurityScanner with regular expressions.
type Scanner struct{}

var _ interfaces.SecurityScanner = Scanner{}

// Scan reports every rule match in html.
func (Scanner) Scan(html, path string) []interfaces.SecurityIssue {
	return ScanForSecurityIssues(html, path)
}

// ScanForSecurityIssues returns one issue per match, ordered by rule then position.
func ScanForSecurityIssues(html, path string) []interfaces.SecurityIssue {
	var issues []interfaces.SecurityIssue
	for _, rule := range securityRules {
		for _, loc := range rule.pattern.FindAllStringIndex(html, -1) {
			issues = append(issues, interfaces.SecurityIssue{
				Type:     rule.kind,
				Message:  rule.message,
				Line:     strings.Count(html[:loc[0]], "\n") + 1,
				FilePath: path,
				Severity: rule.severity,
			})
		}
	}

	return issues
}

// HasCritical reports whether any issue is critical.
func HasCritical(issues []interfaces.SecurityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
