package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEngineServer 模拟流程引擎 REST API
func newEngineServer(t *testing.T, completed *map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/task", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pi-1", r.URL.Query().Get("processInstanceId"))
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id":                  "task-1",
				"name":                "Review HR case",
				"priority":            80,
				"due":                 "2026-03-01T09:00:00.000+0000",
				"formKey":             "embedded:app:forms/review.html",
				"taskDefinitionKey":   "hr-review",
				"processInstanceId":   "pi-1",
				"processDefinitionId": "case-intake:3:abc",
			},
		})
	})
	mux.HandleFunc("/task/task-1/identity-links", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "candidate", r.URL.Query().Get("type"))
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"groupId": "hr", "type": "candidate"},
			{"groupId": "hr-managers", "type": "candidate"},
		})
	})
	mux.HandleFunc("/task/task-1/complete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*completed = body
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/task/missing/complete", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"task not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/process-instance/pi-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "pi-1", "businessKey": "CASE-2026-0042"})
	})
	mux.HandleFunc("/process-instance/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

// TestRESTClient_ListActiveTasks 测试查询活动任务
func TestRESTClient_ListActiveTasks(t *testing.T) {
	var completed map[string]interface{}
	server := newEngineServer(t, &completed)
	defer server.Close()

	client := engine.NewRESTClient(server.URL+"/", time.Second)
	tasks, err := client.ListActiveTasks(context.Background(), "pi-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "case-intake", task.ProcessDefinitionKey)
	assert.Equal(t, "hr-review", task.TaskDefinitionKey)
	assert.Equal(t, 80, task.Priority)
	assert.Equal(t, []string{"hr", "hr-managers"}, task.CandidateGroups)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), *task.DueDate)
}

// TestRESTClient_CompleteTask 测试完成任务
func TestRESTClient_CompleteTask(t *testing.T) {
	var completed map[string]interface{}
	server := newEngineServer(t, &completed)
	defer server.Close()

	client := engine.NewRESTClient(server.URL, time.Second)
	err := client.CompleteTask(context.Background(), "task-1", map[string]interface{}{"approved": true})
	require.NoError(t, err)

	vars, ok := completed["variables"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"value": true}, vars["approved"])

	err = client.CompleteTask(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

// TestRESTClient_GetBusinessKey 测试查询业务 key
func TestRESTClient_GetBusinessKey(t *testing.T) {
	var completed map[string]interface{}
	server := newEngineServer(t, &completed)
	defer server.Close()

	client := engine.NewRESTClient(server.URL, time.Second)
	key, err := client.GetBusinessKey(context.Background(), "pi-1")
	require.NoError(t, err)
	assert.Equal(t, "CASE-2026-0042", key)

	_, err = client.GetBusinessKey(context.Background(), "broken")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

// TestRESTClient_Unreachable 测试引擎不可达
func TestRESTClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := engine.NewRESTClient(url, 200*time.Millisecond)
	_, err := client.ListActiveTasks(context.Background(), "pi-1")
	assert.Error(t, err)
}

// TestMemoryEngine 测试内存引擎
func TestMemoryEngine(t *testing.T) {
	ctx := context.Background()
	e := engine.NewMemoryEngine()
	e.AddTask(&engine.ActiveTask{ID: "b", ProcessInstanceID: "pi-1"})
	e.AddTask(&engine.ActiveTask{ID: "a", ProcessInstanceID: "pi-1"})
	e.AddTask(&engine.ActiveTask{ID: "c", ProcessInstanceID: "pi-2"})
	e.SetBusinessKey("pi-1", "CASE-1")

	tasks, err := e.ListActiveTasks(ctx, "pi-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)

	require.NoError(t, e.CompleteTask(ctx, "a", map[string]interface{}{"outcome": "ok"}))
	vars, ok := e.Completed("a")
	require.True(t, ok)
	assert.Equal(t, "ok", vars["outcome"])
	assert.True(t, errors.Is(e.CompleteTask(ctx, "a", nil), engine.ErrNotFound))

	e.FailNext(errors.New("engine down"))
	_, err = e.GetBusinessKey(ctx, "pi-1")
	assert.Error(t, err)

	key, err := e.GetBusinessKey(ctx, "pi-1")
	require.NoError(t, err)
	assert.Equal(t, "CASE-1", key)
	assert.Equal(t, 1, e.CompletedCount())
}
