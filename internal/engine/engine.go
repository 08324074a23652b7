package engine

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 引擎中不存在该任务或流程实例
var ErrNotFound = errors.New("not found in process engine")

// ActiveTask 流程引擎中的活动任务
type ActiveTask struct {
	ID                   string     `json:"id"`
	ProcessInstanceID    string     `json:"process_instance_id"`
	ProcessDefinitionKey string     `json:"process_definition_key"`
	TaskDefinitionKey    string     `json:"task_definition_key"`
	Name                 string     `json:"name"`
	Assignee             string     `json:"assignee,omitempty"`
	CandidateGroups      []string   `json:"candidate_groups,omitempty"`
	Priority             int        `json:"priority"`
	DueDate              *time.Time `json:"due_date,omitempty"`
	FormKey              string     `json:"form_key,omitempty"`
	Description          string     `json:"description,omitempty"`
}

// ProcessEngine 流程引擎接口
type ProcessEngine interface {
	// ListActiveTasks 查询流程实例当前的活动任务
	ListActiveTasks(ctx context.Context, processInstanceID string) ([]*ActiveTask, error)
	// CompleteTask 完成任务并提交输出变量
	CompleteTask(ctx context.Context, taskID string, variables map[string]interface{}) error
	// GetBusinessKey 查询流程实例的业务 key
	GetBusinessKey(ctx context.Context, processInstanceID string) (string, error)
}
