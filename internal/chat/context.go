package chat

import (
	"encoding/json"

	"github.com/cexll/pomotask/internal/model"
)

type selectedTaskContext struct {
	TaskTitle          string  `json:"task_title"`
	TaskDescription    *string `json:"task_description"`
	PomodorosEstimated int     `json:"pomodoros_estimated"`
	PomodorosActual    int     `json:"pomodoros_actual"`
}

type taskSummaryContext struct {
	Title              string  `json:"title"`
	Description        *string `json:"description"`
	PomodorosEstimated int     `json:"pomodoros_estimated"`
	PomodorosActual    int     `json:"pomodoros_actual"`
	IsCompleted        bool    `json:"is_completed"`
}

type allTasksContext struct {
	AllTasks []taskSummaryContext `json:"all_tasks"`
}

// BuildContext describes the selected task, or every task when none is selected
func BuildContext(selected *model.Task, all []model.Task) (json.RawMessage, error) {
	if selected != nil {
		return json.Marshal(selectedTaskContext{
			TaskTitle:          selected.Title,
			TaskDescription:    selected.Description,
			PomodorosEstimated: selected.PomodorosEstimated,
			PomodorosActual:    selected.PomodorosActual,
		})
	}

	ctx := allTasksContext{AllTasks: make([]taskSummaryContext, 0, len(all))}
	for _, t := range all {
		ctx.AllTasks = append(ctx.AllTasks, taskSummaryContext{
			Title:              t.Title,
			Description:        t.Description,
			PomodorosEstimated: t.PomodorosEstimated,
			PomodorosActual:    t.PomodorosActual,
			IsCompleted:        t.IsCompleted,
		})
	}
	return json.Marshal(ctx)
}
