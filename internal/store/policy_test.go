package store

import (
	"context"
	"strings"
	"testing"
)

func TestPolicyLookupKnownDepartment(t *testing.T) {
	repo := newTestStore(t)
	lookup := NewPolicyLookup(repo)

	policy, err := lookup.OrderPolicy(context.Background(), "electronics")
	if err != nil {
		t.Fatalf("OrderPolicy failed: %v", err)
	}
	if policy == "" {
		t.Fatal("Expected a seeded policy for electronics")
	}
}

func TestPolicyLookupFallsBackToGeneral(t *testing.T) {
	repo := newTestStore(t)
	lookup := NewPolicyLookup(repo)

	policy, err := lookup.OrderPolicy(context.Background(), "garden-furniture")
	if err != nil {
		t.Fatalf("OrderPolicy failed: %v", err)
	}
	general, err := repo.GetCompanyOrderPolicy(context.Background(), "general")
	if err != nil {
		t.Fatalf("GetCompanyOrderPolicy failed: %v", err)
	}
	if policy != general {
		t.Errorf("Expected the general policy, got %q", policy)
	}
	if !strings.Contains(strings.ToLower(policy), "standard limits") {
		t.Errorf("Expected the general policy text, got %q", policy)
	}
}
