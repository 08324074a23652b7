package routing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mautops/casework-gin/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCELDecisionTable_FirstMatch 测试首个命中规则生效
func TestCELDecisionTable_FirstMatch(t *testing.T) {
	table, err := routing.NewCELDecisionTable([]routing.DecisionRule{
		{
			Name:          "critical-fraud",
			Condition:     `allegation_type.contains("fraud") && severity_rank >= 4`,
			Category:      "LEGAL",
			AssignedGroup: "legal-escalations",
			Priority:      "CRITICAL",
		},
		{
			Name:          "fraud",
			Condition:     `allegation_type.contains("fraud")`,
			Category:      "LEGAL",
			AssignedGroup: "legal-team",
		},
		{
			Name:      "leak",
			Condition: `allegation_type.matches("leak(ed|ing)?")`,
			Category:  "security",
			Priority:  "HIGH",
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := table.Classify(ctx, "Wire Fraud", routing.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, "legal-escalations", got.AssignedGroup)
	assert.Equal(t, routing.SeverityCritical, got.Priority)

	got, err = table.Classify(ctx, "wire fraud", routing.SeverityLow)
	require.NoError(t, err)
	assert.Equal(t, "legal-team", got.AssignedGroup)
	assert.Equal(t, routing.SeverityLow, got.Priority)

	got, err = table.Classify(ctx, "document leaked", routing.SeverityLow)
	require.NoError(t, err)
	assert.Equal(t, routing.CategoryCSIS, got.Category)
	assert.Equal(t, routing.SeverityHigh, got.Priority)
	assert.Equal(t, "intake-team", got.AssignedGroup)

	_, err = table.Classify(ctx, "parking", routing.SeverityLow)
	assert.True(t, errors.Is(err, routing.ErrNoRuleMatched))
}

// TestCELDecisionTable_InvalidRules 测试无效规则
func TestCELDecisionTable_InvalidRules(t *testing.T) {
	_, err := routing.NewCELDecisionTable([]routing.DecisionRule{{Condition: `allegation_type ==`, Category: "HR"}})
	assert.Error(t, err)

	_, err = routing.NewCELDecisionTable([]routing.DecisionRule{{Condition: `severity_rank + 1`, Category: "HR"}})
	assert.Error(t, err)

	_, err = routing.NewCELDecisionTable([]routing.DecisionRule{{Condition: `true`, Category: "FINANCE"}})
	assert.Error(t, err)

	_, err = routing.NewCELDecisionTable([]routing.DecisionRule{{Condition: `true`, Category: "HR", Priority: "URGENT"}})
	assert.Error(t, err)
}

// TestCELDecisionTable_WithFallback 测试决策表未命中时回退到内置策略
func TestCELDecisionTable_WithFallback(t *testing.T) {
	table, err := routing.NewCELDecisionTable([]routing.DecisionRule{
		{Condition: `allegation_type == "nepotism"`, Category: "COMPLIANCE", AssignedGroup: "ethics-office"},
	})
	require.NoError(t, err)

	classifier := routing.NewFallbackClassifier(table, nil, nil)
	ctx := context.Background()

	got, err := classifier.Classify(ctx, "Nepotism", routing.SeverityMedium)
	require.NoError(t, err)
	assert.Equal(t, "ethics-office", got.AssignedGroup)

	got, err = classifier.Classify(ctx, "harassment", routing.SeverityMedium)
	require.NoError(t, err)
	assert.Equal(t, routing.CategoryHR, got.Category)
}
