package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryEngine 内存流程引擎,用于本地开发和测试
type MemoryEngine struct {
	mu           sync.RWMutex
	tasks        map[string]*ActiveTask
	businessKeys map[string]string
	completed    map[string]map[string]interface{}
	failNext     error
}

// NewMemoryEngine 创建内存流程引擎
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		tasks:        make(map[string]*ActiveTask),
		businessKeys: make(map[string]string),
		completed:    make(map[string]map[string]interface{}),
	}
}

// AddTask 添加活动任务
func (e *MemoryEngine) AddTask(task *ActiveTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := *task
	e.tasks[task.ID] = &copied
}

// SetBusinessKey 设置流程实例的业务 key
func (e *MemoryEngine) SetBusinessKey(processInstanceID, businessKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.businessKeys[processInstanceID] = businessKey
}

// FailNext 让下一次调用返回指定错误
func (e *MemoryEngine) FailNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// takeFailure 取出并清除预设错误
func (e *MemoryEngine) takeFailure() error {
	err := e.failNext
	e.failNext = nil
	return err
}

// ListActiveTasks 查询流程实例当前的活动任务
func (e *MemoryEngine) ListActiveTasks(_ context.Context, processInstanceID string) ([]*ActiveTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return nil, err
	}

	var result []*ActiveTask
	for _, task := range e.tasks {
		if task.ProcessInstanceID == processInstanceID {
			copied := *task
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CompleteTask 完成任务
func (e *MemoryEngine) CompleteTask(_ context.Context, taskID string, variables map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return err
	}
	if _, ok := e.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	delete(e.tasks, taskID)
	if variables == nil {
		variables = map[string]interface{}{}
	}
	e.completed[taskID] = variables
	return nil
}

// GetBusinessKey 查询流程实例的业务 key
func (e *MemoryEngine) GetBusinessKey(_ context.Context, processInstanceID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return "", err
	}
	key, ok := e.businessKeys[processInstanceID]
	if !ok {
		return "", fmt.Errorf("process instance %s: %w", processInstanceID, ErrNotFound)
	}
	return key, nil
}

// Completed 返回任务完成时提交的变量
func (e *MemoryEngine) Completed(taskID string) (map[string]interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vars, ok := e.completed[taskID]
	return vars, ok
}

// CompletedCount 返回已完成的任务数
func (e *MemoryEngine) CompletedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.completed)
}
