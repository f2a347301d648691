package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/summary"
	"github.com/cexll/pomotask/internal/whatsapp"
)

// ListTasksParams defines the input of list_tasks
type ListTasksParams struct {
	IncompleteOnly bool `json:"incomplete_only,omitempty" jsonschema:"Only return tasks that are not completed"`
	Limit          int  `json:"limit,omitempty" jsonschema:"Maximum number of tasks to return, newest first"`
}

// CompleteTaskParams defines the input of complete_task. Exactly one field is required.
type CompleteTaskParams struct {
	TaskID string `json:"task_id,omitempty" jsonschema:"ID of the task to complete"`
	Index  int    `json:"index,omitempty" jsonschema:"1-based position in the active task list, as shown by list_tasks with incomplete_only"`
}

// SummaryParams is empty; task_summary takes no arguments
type SummaryParams struct{}

// TaskTools serves the task tools for a single user
type TaskTools struct {
	store  store.Store
	userID string
	now    func() time.Time
}

// NewTaskTools creates the tool set
func NewTaskTools(st store.Store, userID string) *TaskTools {
	return &TaskTools{store: st, userID: userID, now: time.Now}
}

// Register adds every tool to server
func (t *TaskTools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List the user's pomodoro tasks, newest first",
	}, t.HandleListTasks)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_task",
		Description: "Mark a task as completed by id or by its position in the active list",
	}, t.HandleCompleteTask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "task_summary",
		Description: "Remaining pomodoros, remaining minutes and the estimated finish time",
	}, t.HandleSummary)
	log.Println("[MCP Tasks] Registered tools: list_tasks, complete_task, task_summary")
}

// HandleListTasks handles the list_tasks tool call
func (t *TaskTools) HandleListTasks(ctx context.Context, req *mcp.CallToolRequest, params ListTasksParams) (*mcp.CallToolResult, any, error) {
	if params.Limit < 0 {
		return nil, nil, fmt.Errorf("limit must be >= 0")
	}
	tasks, err := t.store.ListTasks(ctx, store.TaskQuery{
		UserID:         t.userID,
		IncompleteOnly: params.IncompleteOnly,
		Limit:          params.Limit,
	})
	if err != nil {
		log.Printf("[MCP Tasks] Failed to list tasks: %v", err)
		return errorResult(err), nil, nil
	}
	return jsonResult(map[string]any{"tasks": tasks, "count": len(tasks)})
}

// HandleCompleteTask handles the complete_task tool call
func (t *TaskTools) HandleCompleteTask(ctx context.Context, req *mcp.CallToolRequest, params CompleteTaskParams) (*mcp.CallToolResult, any, error) {
	if (params.TaskID == "") == (params.Index == 0) {
		return nil, nil, fmt.Errorf("exactly one of task_id or index is required")
	}

	id := params.TaskID
	if id == "" {
		active, err := t.store.ListTasks(ctx, store.TaskQuery{UserID: t.userID, IncompleteOnly: true})
		if err != nil {
			return errorResult(err), nil, nil
		}
		if params.Index < 1 || params.Index > len(active) {
			return errorResult(fmt.Errorf("index %d out of range, %d active tasks", params.Index, len(active))), nil, nil
		}
		id = active[params.Index-1].ID
	} else {
		task, err := t.store.GetTask(ctx, id)
		if err != nil || task.UserID != t.userID {
			return errorResult(fmt.Errorf("task %s: %w", id, store.ErrNotFound)), nil, nil
		}
	}

	task, err := t.store.UpdateTask(ctx, id, model.TaskPatch{IsCompleted: model.Ptr(true)})
	if err != nil {
		log.Printf("[MCP Tasks] Failed to complete task %s: %v", id, err)
		return errorResult(err), nil, nil
	}
	log.Printf("[MCP Tasks] Completed task %s", id)
	return jsonResult(task)
}

// HandleSummary handles the task_summary tool call
func (t *TaskTools) HandleSummary(ctx context.Context, req *mcp.CallToolRequest, params SummaryParams) (*mcp.CallToolResult, any, error) {
	tasks, err := t.store.ListTasks(ctx, store.TaskQuery{UserID: t.userID})
	if err != nil {
		return errorResult(err), nil, nil
	}
	s := summary.Compute(tasks, t.now())

	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(body)},
			&mcp.TextContent{Text: whatsapp.FormatSummary(tasks)},
		},
	}, nil, nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}
