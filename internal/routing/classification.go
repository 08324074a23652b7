package routing

import (
	"strings"
)

// Severity 严重程度,LOW < MEDIUM < HIGH < CRITICAL
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity 解析严重程度（大小写不敏感）
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// Rank 返回排序值,未知值为 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid 是否为已知严重程度
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// TaskPriority 转换为队列任务的整数优先级
func (s Severity) TaskPriority() int {
	switch s {
	case SeverityLow:
		return 25
	case SeverityHigh:
		return 75
	case SeverityCritical:
		return 100
	}
	return 50
}

// MaxSeverity 返回较高的严重程度
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Category 分类类别
type Category string

const (
	CategoryHR         Category = "HR"
	CategoryLegal      Category = "LEGAL"
	CategoryCSIS       Category = "CSIS"
	CategoryCompliance Category = "COMPLIANCE"
	CategoryGeneral    Category = "GENERAL"
)

// Categories 所有类别
var Categories = []Category{CategoryHR, CategoryLegal, CategoryCSIS, CategoryCompliance, CategoryGeneral}

// ParseCategory 解析类别（大小写不敏感,SECURITY 视为 CSIS）
func ParseCategory(s string) (Category, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "SECURITY" {
		return CategoryCSIS, true
	}
	for _, c := range Categories {
		if string(c) == upper {
			return c, true
		}
	}
	return "", false
}

// Department 返回类别对应的部门
func (c Category) Department() Department {
	switch c {
	case CategoryHR:
		return DepartmentHR
	case CategoryLegal:
		return DepartmentLegal
	case CategoryCSIS:
		return DepartmentSecurity
	case CategoryCompliance:
		return DepartmentCompliance
	}
	return DepartmentGeneral
}

// Classification 分类结果
type Classification struct {
	Category      Category `json:"category"`
	Priority      Severity `json:"priority"`
	AssignedGroup string   `json:"assigned_group"`
}

// 兜底分类
var (
	// GeneralClassification 未匹配任何规则时的分类
	GeneralClassification = Classification{Category: CategoryGeneral, Priority: SeverityMedium, AssignedGroup: "intake-team"}
	// FailureClassification 分类服务失败时的分类
	FailureClassification = Classification{Category: CategoryHR, Priority: SeverityMedium, AssignedGroup: "hr-intake-team"}
)

// keywordRule 关键字规则
type keywordRule struct {
	category    Category
	group       string
	minPriority Severity
	keywords    []string
}

// ClassificationPolicy 内置分类策略
// 按顺序匹配关键字,第一个命中的规则生效
type ClassificationPolicy struct {
	rules []keywordRule
}

// NewClassificationPolicy 创建内置分类策略
func NewClassificationPolicy() *ClassificationPolicy {
	return &ClassificationPolicy{
		rules: []keywordRule{
			{
				category: CategoryHR,
				group:    "hr-intake-team",
				keywords: []string{"harassment", "discrimination", "bullying", "retaliation", "misconduct", "workplace"},
			},
			{
				category: CategoryLegal,
				group:    "legal-team",
				keywords: []string{"fraud", "contract", "litigation", "bribery", "corruption", "legal"},
			},
			{
				category:    CategoryCSIS,
				group:       "security-team",
				minPriority: SeverityHigh,
				keywords:    []string{"security", "breach", "espionage", "threat", "classified"},
			},
			{
				category: CategoryCompliance,
				group:    "compliance-team",
				keywords: []string{"policy", "compliance", "regulatory", "conflict of interest", "ethics"},
			},
		},
	}
}

// Classify 对指控类型和严重程度进行分类
func (p *ClassificationPolicy) Classify(allegationType string, severity Severity) Classification {
	text := strings.ToLower(allegationType)
	if !severity.Valid() {
		severity = SeverityMedium
	}

	for _, rule := range p.rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return Classification{
					Category:      rule.category,
					Priority:      MaxSeverity(severity, rule.minPriority),
					AssignedGroup: rule.group,
				}
			}
		}
	}
	return GeneralClassification
}
