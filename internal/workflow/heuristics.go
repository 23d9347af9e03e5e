package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RuleBasedExtractor maps request text to a department with keyword rules.
// It stands in for the model-backed extractor when no LLM endpoint is
// configured; both satisfy DepartmentExtractor.
type RuleBasedExtractor struct{}

var departmentKeywords = []struct {
	department string
	keywords   []string
}{
	{"electronics", []string{"laptop", "monitor", "keyboard", "cable", "charger", "electronics"}},
	{"apparel", []string{"shirt", "hoodie", "jacket", "sticker", "apparel", "clothing"}},
	{"accessories", []string{"mug", "bottle", "bag", "accessories"}},
}

// ExtractDepartment picks the first department whose keywords appear in the
// request, falling back to "general".
func (RuleBasedExtractor) ExtractDepartment(_ context.Context, request string) (string, error) {
	lower := strings.ToLower(request)
	for _, d := range departmentKeywords {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				return d.department, nil
			}
		}
	}
	return "general", nil
}

// StaticPolicyProvider serves order policies from a fixed table. The server
// normally uses the SQLite-backed provider; this one backs tests and
// store-less deployments.
type StaticPolicyProvider struct {
	Policies map[string]string
	Default  string
}

// OrderPolicy returns the policy for a department, or the default when none
// is configured.
func (p StaticPolicyProvider) OrderPolicy(_ context.Context, department string) (string, error) {
	if policy, ok := p.Policies[strings.ToLower(department)]; ok {
		return policy, nil
	}
	if p.Default != "" {
		return p.Default, nil
	}
	return "", fmt.Errorf("no order policy for department %q", department)
}

// MarkdownSummarizer renders findings into the final Markdown report.
type MarkdownSummarizer struct{}

// Summarize produces the Markdown-formatted result payload.
func (MarkdownSummarizer) Summarize(_ context.Context, department, findings string) (string, error) {
	var b strings.Builder
	b.WriteString("# Restocking Recommendations\n\n")
	fmt.Fprintf(&b, "_Generated %s for the **%s** department._\n\n", time.Now().UTC().Format("2006-01-02"), department)
	b.WriteString("## Findings\n\n")
	for _, line := range strings.Split(strings.TrimSpace(findings), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n## Actions\n\n")
	b.WriteString("1. Reorder items below their minimum stock threshold first.\n")
	b.WriteString("2. Keep each order inside the department policy limits above.\n")
	b.WriteString("3. Flag orders exceeding policy for management approval.\n")
	return b.String(), nil
}
