package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// TypePopulateInstance 填充流程实例队列任务的异步任务类型
const TypePopulateInstance = "population:instance"

// PopulationPayload 填充任务负载
type PopulationPayload struct {
	ProcessInstanceID    string `json:"process_instance_id"`
	ProcessDefinitionKey string `json:"process_definition_key"`
}

// Validate 校验负载
func (p PopulationPayload) Validate() error {
	if strings.TrimSpace(p.ProcessInstanceID) == "" {
		return fmt.Errorf("process instance ID is required")
	}
	if strings.TrimSpace(p.ProcessDefinitionKey) == "" {
		return fmt.Errorf("process definition key is required")
	}
	return nil
}

// NewPopulationTask 创建填充任务
func NewPopulationTask(payload PopulationPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePopulateInstance, data), nil
}
