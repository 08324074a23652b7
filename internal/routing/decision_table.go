package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// ErrNoRuleMatched 决策表没有命中任何规则
var ErrNoRuleMatched = errors.New("no decision rule matched")

// DecisionRule 决策表规则
// Condition 是 CEL 表达式,可用变量: allegation_type（小写）、severity、severity_rank
type DecisionRule struct {
	Name          string `yaml:"name" json:"name"`
	Condition     string `yaml:"condition" json:"condition"`
	Category      string `yaml:"category" json:"category"`
	AssignedGroup string `yaml:"assigned_group" json:"assigned_group"`
	Priority      string `yaml:"priority" json:"priority"` // 为空时沿用输入的严重程度
}

type compiledRule struct {
	name     string
	prog     cel.Program
	output   Classification
	priority Severity
}

// CELDecisionTable 基于 CEL 的决策表,首个命中规则生效
type CELDecisionTable struct {
	rules []compiledRule
}

// NewCELDecisionTable 编译决策表规则
func NewCELDecisionTable(rules []DecisionRule) (*CELDecisionTable, error) {
	env, err := cel.NewEnv(
		cel.Variable("allegation_type", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("severity_rank", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	table := &CELDecisionTable{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}

		category, ok := ParseCategory(rule.Category)
		if !ok {
			return nil, fmt.Errorf("decision rule %s: unknown category %q", name, rule.Category)
		}
		var priority Severity
		if rule.Priority != "" {
			if priority, ok = ParseSeverity(rule.Priority); !ok {
				return nil, fmt.Errorf("decision rule %s: unknown priority %q", name, rule.Priority)
			}
		}

		ast, iss := env.Parse(strings.TrimSpace(rule.Condition))
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("decision rule %s: %w", name, iss.Err())
		}
		checked, iss := env.Check(ast)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("decision rule %s: %w", name, iss.Err())
		}
		if !checked.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("decision rule %s: condition must evaluate to bool", name)
		}
		prog, err := env.Program(checked)
		if err != nil {
			return nil, fmt.Errorf("decision rule %s: %w", name, err)
		}

		table.rules = append(table.rules, compiledRule{
			name:     name,
			prog:     prog,
			output:   Classification{Category: category, AssignedGroup: rule.AssignedGroup},
			priority: priority,
		})
	}
	return table, nil
}

// Classify 按顺序评估规则
func (t *CELDecisionTable) Classify(ctx context.Context, allegationType string, severity Severity) (Classification, error) {
	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}
	if !severity.Valid() {
		severity = SeverityMedium
	}

	vars := map[string]any{
		"allegation_type": strings.ToLower(allegationType),
		"severity":        string(severity),
		"severity_rank":   int64(severity.Rank()),
	}
	for _, rule := range t.rules {
		out, _, err := rule.prog.Eval(vars)
		if err != nil {
			return Classification{}, fmt.Errorf("decision rule %s: %w", rule.name, err)
		}
		if matched, ok := out.Value().(bool); ok && matched {
			result := rule.output
			result.Priority = severity
			if rule.priority != "" {
				result.Priority = rule.priority
			}
			if result.AssignedGroup == "" {
				result.AssignedGroup = GeneralClassification.AssignedGroup
			}
			return result, nil
		}
	}
	return Classification{}, ErrNoRuleMatched
}
