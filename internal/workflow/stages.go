package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Stage identifiers for the inventory analysis pipeline. They mirror the
// executor names of the original workflow.
const (
	StageStock     = "stock_extractor"
	StagePolicy    = "finance_policy"
	StageSummarize = "summarizer"
)

// DepartmentExtractor determines which department an analysis request is
// about. Implementations own their business logic; the pipeline treats them
// as opaque collaborators.
type DepartmentExtractor interface {
	ExtractDepartment(ctx context.Context, request string) (string, error)
}

// PolicyProvider looks up the company order policy for a department.
type PolicyProvider interface {
	OrderPolicy(ctx context.Context, department string) (string, error)
}

// Summarizer turns the accumulated findings into the final Markdown result.
type Summarizer interface {
	Summarize(ctx context.Context, department, findings string) (string, error)
}

const departmentLinePrefix = "Department: "

// InventoryStages assembles the three-stage inventory pipeline: stock
// analysis, policy check, recommendation summary.
func InventoryStages(extractor DepartmentExtractor, policies PolicyProvider, summarizer Summarizer) []Stage {
	return []Stage{
		{
			ID:   StageStock,
			Name: "stock analysis",
			Run: func(ctx context.Context, input string, emit func(string)) (string, error) {
				emit("analyzing inventory and stock levels for request")
				dept, err := extractor.ExtractDepartment(ctx, input)
				if err != nil {
					return "", fmt.Errorf("extract department: %w", err)
				}
				emit(fmt.Sprintf("department identified: %s; prioritising low-stock items", dept))
				findings := departmentLinePrefix + dept + "\n" + input
				return findings, nil
			},
		},
		{
			ID:   StagePolicy,
			Name: "policy check",
			Run: func(ctx context.Context, input string, emit func(string)) (string, error) {
				dept := departmentFromFindings(input)
				emit(fmt.Sprintf("fetching company order policy and budget for department %s", dept))
				policy, err := policies.OrderPolicy(ctx, dept)
				if err != nil {
					return "", fmt.Errorf("order policy for %s: %w", dept, err)
				}
				emit("policy retrieved; checking order limits against restock candidates")
				return input + "\n\nOrder policy:\n" + policy, nil
			},
		},
		{
			ID:   StageSummarize,
			Name: "recommendation summary",
			Run: func(ctx context.Context, input string, emit func(string)) (string, error) {
				emit("generating restocking recommendations and priority summary")
				result, err := summarizer.Summarize(ctx, departmentFromFindings(input), input)
				if err != nil {
					return "", fmt.Errorf("summarize findings: %w", err)
				}
				return result, nil
			},
		},
	}
}

// NewInventoryPipeline wires the inventory stages into a pipeline.
func NewInventoryPipeline(logger *slog.Logger, extractor DepartmentExtractor, policies PolicyProvider, summarizer Summarizer) (*Pipeline, error) {
	return NewPipeline(logger, InventoryStages(extractor, policies, summarizer)...)
}

// departmentFromFindings recovers the department recorded by the stock stage.
func departmentFromFindings(findings string) string {
	for _, line := range strings.Split(findings, "\n") {
		if strings.HasPrefix(line, departmentLinePrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, departmentLinePrefix))
		}
	}
	return "general"
}
