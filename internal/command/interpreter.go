// Package command interprets inbound bot messages into task actions.
package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/whatsapp"
)

// Status classifies how a message was handled
type Status string

const (
	StatusIgnored       Status = "ignored"
	StatusUserNotFound  Status = "user_not_found"
	StatusTasksSent     Status = "tasks_sent"
	StatusSummarySent   Status = "summary_sent"
	StatusTaskCompleted Status = "task_completed"
	StatusHelpSent      Status = "help_sent"
)

// SummaryLimit caps the tasks included in a #summary reply
const SummaryLimit = 20

// Inbound is one message received from the messaging platform
type Inbound struct {
	From string // normalized phone number
	Text string
}

// Result describes the outcome of a message
type Result struct {
	Status Status
	UserID string
	TaskID string // set for StatusTaskCompleted
}

// Sender delivers a text reply
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// TaskStore is the subset of the store the interpreter reads and writes
type TaskStore interface {
	ProfileByPhone(ctx context.Context, phone string) (model.Profile, error)
	ListTasks(ctx context.Context, q store.TaskQuery) ([]model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
}

// ChangeNotifier is told when the interpreter modified a user's tasks
type ChangeNotifier interface {
	TasksChanged(ctx context.Context, userID string)
}

// Interpreter classifies each message independently; it keeps no conversation state.
type Interpreter struct {
	store    TaskStore
	sender   Sender
	notifier ChangeNotifier
}

// NewInterpreter creates an interpreter
func NewInterpreter(st TaskStore, sender Sender) *Interpreter {
	return &Interpreter{store: st, sender: sender}
}

// WithNotifier registers a listener for task changes made by commands
func (i *Interpreter) WithNotifier(n ChangeNotifier) *Interpreter {
	i.notifier = n
	return i
}

// Handle processes one message. A store or gateway error aborts the message without a reply.
func (i *Interpreter) Handle(ctx context.Context, msg Inbound) (Result, error) {
	if msg.From == "" || msg.Text == "" {
		return Result{Status: StatusIgnored}, nil
	}

	profile, err := i.store.ProfileByPhone(ctx, msg.From)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[Command] User not found for phone: %s", msg.From)
		if err := i.sender.SendText(ctx, msg.From, whatsapp.NotLinkedMessage); err != nil {
			return Result{}, fmt.Errorf("send not-linked reply: %w", err)
		}
		return Result{Status: StatusUserNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup profile: %w", err)
	}

	userID := profile.UserID
	cmd := strings.ToLower(strings.TrimSpace(msg.Text))
	log.Printf("[Command] Processing command %q for user %s", cmd, userID)

	switch cmd {
	case "#todolist", "#tasks":
		tasks, err := i.store.ListTasks(ctx, store.TaskQuery{UserID: userID, IncompleteOnly: true})
		if err != nil {
			return Result{}, fmt.Errorf("list tasks: %w", err)
		}
		if err := i.sender.SendText(ctx, msg.From, whatsapp.FormatTaskList(tasks)); err != nil {
			return Result{}, fmt.Errorf("send task list: %w", err)
		}
		return Result{Status: StatusTasksSent, UserID: userID}, nil

	case "#summary":
		tasks, err := i.store.ListTasks(ctx, store.TaskQuery{UserID: userID, Limit: SummaryLimit})
		if err != nil {
			return Result{}, fmt.Errorf("list tasks: %w", err)
		}
		if err := i.sender.SendText(ctx, msg.From, whatsapp.FormatSummary(tasks)); err != nil {
			return Result{}, fmt.Errorf("send summary: %w", err)
		}
		return Result{Status: StatusSummarySent, UserID: userID}, nil
	}

	if n, ok := parseLeadingInt(cmd); ok && n > 0 {
		result, handled, err := i.completeByIndex(ctx, msg.From, userID, n)
		if err != nil || handled {
			return result, err
		}
	}

	if err := i.sender.SendText(ctx, msg.From, whatsapp.HelpMessage); err != nil {
		return Result{}, fmt.Errorf("send help: %w", err)
	}
	return Result{Status: StatusHelpSent, UserID: userID}, nil
}

// completeByIndex marks the n-th newest incomplete task done.
// handled is false when no such task exists, so the caller falls through to help.
func (i *Interpreter) completeByIndex(ctx context.Context, to, userID string, n int) (Result, bool, error) {
	tasks, err := i.store.ListTasks(ctx, store.TaskQuery{UserID: userID, IncompleteOnly: true})
	if err != nil {
		return Result{}, false, fmt.Errorf("list tasks: %w", err)
	}
	if n > len(tasks) {
		return Result{}, false, nil
	}

	task := tasks[n-1]
	if _, err := i.store.UpdateTask(ctx, task.ID, model.TaskPatch{IsCompleted: model.Ptr(true)}); err != nil {
		return Result{}, false, fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	if i.notifier != nil {
		i.notifier.TasksChanged(ctx, userID)
	}

	if err := i.sender.SendText(ctx, to, whatsapp.FormatCompleted(task.Title)); err != nil {
		return Result{}, false, fmt.Errorf("send confirmation: %w", err)
	}
	return Result{Status: StatusTaskCompleted, UserID: userID, TaskID: task.ID}, true, nil
}

// parseLeadingInt reads an optionally signed run of leading digits, ignoring anything after it
// ("2", "2.", "2 please" all give 2).
func parseLeadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
