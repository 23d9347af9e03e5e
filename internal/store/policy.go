package store

import (
	"context"
	"fmt"
)

// fallbackDepartment is consulted when a department has no policy row.
const fallbackDepartment = "general"

// PolicyLookup serves company order policies from the repository. It
// satisfies the workflow's policy provider contract.
type PolicyLookup struct {
	repo Repository
}

// NewPolicyLookup creates a repository-backed policy provider.
func NewPolicyLookup(repo Repository) *PolicyLookup {
	return &PolicyLookup{repo: repo}
}

// OrderPolicy returns the policy for a department, falling back to the
// general policy when the department has none.
func (p *PolicyLookup) OrderPolicy(ctx context.Context, department string) (string, error) {
	policy, err := p.repo.GetCompanyOrderPolicy(ctx, department)
	if err != nil {
		return "", fmt.Errorf("failed to look up policy for %q: %w", department, err)
	}
	if policy != "" {
		return policy, nil
	}

	policy, err = p.repo.GetCompanyOrderPolicy(ctx, fallbackDepartment)
	if err != nil {
		return "", fmt.Errorf("failed to look up fallback policy: %w", err)
	}
	if policy == "" {
		return "", fmt.Errorf("no order policy configured for %q", department)
	}
	return policy, nil
}
