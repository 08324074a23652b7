package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient 基于 REST API 的流程引擎客户端
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient 创建流程引擎 REST 客户端
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// restTask 引擎返回的任务结构
type restTask struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Assignee            string `json:"assignee"`
	Priority            int    `json:"priority"`
	Due                 string `json:"due"`
	FormKey             string `json:"formKey"`
	Description         string `json:"description"`
	TaskDefinitionKey   string `json:"taskDefinitionKey"`
	ProcessInstanceID   string `json:"processInstanceId"`
	ProcessDefinitionID string `json:"processDefinitionId"`
}

// restIdentityLink 任务的身份关联
type restIdentityLink struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
}

// restVariable 引擎变量
type restVariable struct {
	Value interface{} `json:"value"`
}

// engineTimeLayout 引擎返回的时间格式
const engineTimeLayout = "2006-01-02T15:04:05.000-0700"

// ListActiveTasks 查询流程实例当前的活动任务
func (c *RESTClient) ListActiveTasks(ctx context.Context, processInstanceID string) ([]*ActiveTask, error) {
	var tasks []restTask
	query := url.Values{"processInstanceId": {processInstanceID}}
	if err := c.do(ctx, http.MethodGet, "/task?"+query.Encode(), nil, &tasks); err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}

	result := make([]*ActiveTask, 0, len(tasks))
	for _, t := range tasks {
		var links []restIdentityLink
		linkQuery := url.Values{"type": {"candidate"}}
		if err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(t.ID)+"/identity-links?"+linkQuery.Encode(), nil, &links); err != nil {
			return nil, fmt.Errorf("failed to get candidate groups for task %s: %w", t.ID, err)
		}

		task := &ActiveTask{
			ID:                   t.ID,
			ProcessInstanceID:    t.ProcessInstanceID,
			ProcessDefinitionKey: definitionKey(t.ProcessDefinitionID),
			TaskDefinitionKey:    t.TaskDefinitionKey,
			Name:                 t.Name,
			Assignee:             t.Assignee,
			Priority:             t.Priority,
			FormKey:              t.FormKey,
			Description:          t.Description,
		}
		for _, link := range links {
			if link.GroupID != "" {
				task.CandidateGroups = append(task.CandidateGroups, link.GroupID)
			}
		}
		if t.Due != "" {
			if due, err := time.Parse(engineTimeLayout, t.Due); err == nil {
				due = due.UTC()
				task.DueDate = &due
			}
		}
		result = append(result, task)
	}
	return result, nil
}

// CompleteTask 完成任务并提交输出变量
func (c *RESTClient) CompleteTask(ctx context.Context, taskID string, variables map[string]interface{}) error {
	vars := make(map[string]restVariable, len(variables))
	for k, v := range variables {
		vars[k] = restVariable{Value: v}
	}
	body := map[string]interface{}{"variables": vars}
	if err := c.do(ctx, http.MethodPost, "/task/"+url.PathEscape(taskID)+"/complete", body, nil); err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	return nil
}

// GetBusinessKey 查询流程实例的业务 key
func (c *RESTClient) GetBusinessKey(ctx context.Context, processInstanceID string) (string, error) {
	var instance struct {
		BusinessKey string `json:"businessKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/process-instance/"+url.PathEscape(processInstanceID), nil, &instance); err != nil {
		return "", fmt.Errorf("failed to get business key: %w", err)
	}
	return instance.BusinessKey, nil
}

// do 发送请求并解析 JSON 响应
func (c *RESTClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("process engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// definitionKey 从 "key:version:id" 形式的流程定义 ID 中取出 key
func definitionKey(processDefinitionID string) string {
	if i := strings.Index(processDefinitionID, ":"); i >= 0 {
		return processDefinitionID[:i]
	}
	return processDefinitionID
}
