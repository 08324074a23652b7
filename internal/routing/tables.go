package routing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Department 部门
type Department string

const (
	DepartmentOversight     Department = "oversight"
	DepartmentInvestigation Department = "investigation"
	DepartmentSecurity      Department = "security"
	DepartmentLegal         Department = "legal"
	DepartmentHR            Department = "hr"
	DepartmentCompliance    Department = "compliance"
	DepartmentGeneral       Department = "general"
)

// DefaultDepartmentOrder 领取下一个任务时遍历部门的顺序
var DefaultDepartmentOrder = []Department{
	DepartmentOversight,
	DepartmentInvestigation,
	DepartmentSecurity,
	DepartmentLegal,
	DepartmentHR,
	DepartmentCompliance,
	DepartmentGeneral,
}

// Tables 静态路由表: 角色可访问队列、队列所属部门、升级路径
// 启动时加载一次,之后只读
type Tables struct {
	Roles           map[string][]string   `yaml:"roles"`
	Queues          map[string]Department `yaml:"queues"`
	Escalations     map[string]string     `yaml:"escalations"`
	OversightQueue  string                `yaml:"oversight_queue"`
	BypassRoles     []string              `yaml:"bypass_roles"`
	DepartmentOrder []Department          `yaml:"department_order"`
	DecisionRules   []DecisionRule        `yaml:"decision_rules"`
}

// DefaultTables 内置路由表
func DefaultTables() *Tables {
	return &Tables{
		Roles: map[string][]string{
			"oversight":          {"oversight-queue"},
			"investigator":       {"investigation-queue", "security-review-queue"},
			"security-analyst":   {"security-review-queue"},
			"legal-counsel":      {"legal-review-queue", "legal-approval-queue"},
			"hr-manager":         {"hr-intake-queue", "hr-approval-queue"},
			"hr-intake":          {"hr-intake-queue"},
			"compliance-officer": {"compliance-queue"},
			"intake-analyst":     {"intake-queue", "default-queue"},
		},
		Queues: map[string]Department{
			"oversight-queue":       DepartmentOversight,
			"investigation-queue":   DepartmentInvestigation,
			"security-review-queue": DepartmentSecurity,
			"legal-review-queue":    DepartmentLegal,
			"legal-approval-queue":  DepartmentLegal,
			"hr-intake-queue":       DepartmentHR,
			"hr-approval-queue":     DepartmentHR,
			"compliance-queue":      DepartmentCompliance,
			"intake-queue":          DepartmentGeneral,
			"default-queue":         DepartmentGeneral,
		},
		Escalations: map[string]string{
			"hr-intake-queue":    "hr-approval-queue",
			"legal-review-queue": "legal-approval-queue",
			"intake-queue":       "investigation-queue",
			"default-queue":      "investigation-queue",
		},
		OversightQueue:  "oversight-queue",
		BypassRoles:     []string{"admin", "oversight"},
		DepartmentOrder: DefaultDepartmentOrder,
	}
}

// LoadTables 从 YAML 文件加载路由表,未配置的部分使用内置默认值
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables 解析 YAML 路由表
func ParseTables(data []byte) (*Tables, error) {
	var loaded Tables
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse routing tables: %w", err)
	}

	defaults := DefaultTables()
	if loaded.Roles == nil {
		loaded.Roles = defaults.Roles
	}
	if loaded.Queues == nil {
		loaded.Queues = defaults.Queues
	}
	if loaded.Escalations == nil {
		loaded.Escalations = defaults.Escalations
	}
	if loaded.OversightQueue == "" {
		loaded.OversightQueue = defaults.OversightQueue
	}
	if loaded.BypassRoles == nil {
		loaded.BypassRoles = defaults.BypassRoles
	}
	if loaded.DepartmentOrder == nil {
		loaded.DepartmentOrder = defaults.DepartmentOrder
	}

	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return &loaded, nil
}

// Validate 校验路由表的一致性
func (t *Tables) Validate() error {
	if _, ok := t.Queues[t.OversightQueue]; !ok {
		return fmt.Errorf("oversight queue %q is not a known queue", t.OversightQueue)
	}
	for role, queues := range t.Roles {
		for _, queue := range queues {
			if _, ok := t.Queues[queue]; !ok {
				return fmt.Errorf("role %q references unknown queue %q", role, queue)
			}
		}
	}
	for from, to := range t.Escalations {
		if _, ok := t.Queues[to]; !ok {
			return fmt.Errorf("escalation from %q targets unknown queue %q", from, to)
		}
		if from == to {
			return fmt.Errorf("escalation from %q targets itself", from)
		}
	}
	return nil
}

// IsBypass 角色是否绕过队列访问控制
func (t *Tables) IsBypass(roles []string) bool {
	for _, role := range roles {
		for _, bypass := range t.BypassRoles {
			if role == bypass {
				return true
			}
		}
	}
	return false
}

// AccessibleQueues 返回角色集合可访问的队列（已排序去重）
func (t *Tables) AccessibleQueues(roles []string) []string {
	set := make(map[string]struct{})
	if t.IsBypass(roles) {
		for queue := range t.Queues {
			set[queue] = struct{}{}
		}
	}
	for _, role := range roles {
		for _, queue := range t.Roles[role] {
			set[queue] = struct{}{}
		}
	}

	queues := make([]string, 0, len(set))
	for queue := range set {
		queues = append(queues, queue)
	}
	sort.Strings(queues)
	return queues
}

// CanAccess 角色集合能否访问队列
func (t *Tables) CanAccess(roles []string, queue string) bool {
	if t.IsBypass(roles) {
		return true
	}
	for _, role := range roles {
		for _, q := range t.Roles[role] {
			if q == queue {
				return true
			}
		}
	}
	return false
}

// DepartmentOf 返回队列所属部门
func (t *Tables) DepartmentOf(queue string) (Department, bool) {
	dept, ok := t.Queues[queue]
	return dept, ok
}

// EscalationTarget 返回队列的升级目标
// 显式表优先; 属于已知部门的队列默认升级到监督队列; 监督队列与未知队列没有升级路径
func (t *Tables) EscalationTarget(queue string) (string, bool) {
	if queue == t.OversightQueue {
		return "", false
	}
	if target, ok := t.Escalations[queue]; ok {
		return target, true
	}
	if _, ok := t.Queues[queue]; ok {
		return t.OversightQueue, true
	}
	return "", false
}

// departmentRank 部门在遍历顺序中的位置,未列出的部门排在最后
func (t *Tables) departmentRank(dept Department) int {
	for i, d := range t.DepartmentOrder {
		if d == dept {
			return i
		}
	}
	return len(t.DepartmentOrder)
}

// QueuesByDepartmentOrder 按部门顺序排列队列,同部门内按名称排序
func (t *Tables) QueuesByDepartmentOrder(queues []string) []string {
	ordered := make([]string, len(queues))
	copy(ordered, queues)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri := t.departmentRank(t.Queues[ordered[i]])
		rj := t.departmentRank(t.Queues[ordered[j]])
		if ri != rj {
			return ri < rj
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}

// QueuesForDepartment 返回部门包含的队列（已排序）
func (t *Tables) QueuesForDepartment(dept Department) []string {
	var queues []string
	for queue, d := range t.Queues {
		if d == dept {
			queues = append(queues, queue)
		}
	}
	sort.Strings(queues)
	return queues
}
