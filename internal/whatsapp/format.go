package whatsapp

import (
	"fmt"
	"strings"

	"github.com/cexll/pomotask/internal/model"
)

// Bot replies. The bot speaks Portuguese for commands and English for listings.
const (
	NoActiveTasksMessage = "✨ No active tasks! Create a new task in the app."
	NotLinkedMessage     = "❌ Seu número não está vinculado a uma conta. Por favor, adicione seu número nas configurações do app."
	HelpMessage          = "*Comandos Disponíveis:*\n\n" +
		"#todolist - Lista suas tarefas ativas\n" +
		"#summary - Resumo diário\n" +
		"[número] - Marca tarefa como concluída\n\n" +
		"Exemplo: Responda \"1\" para completar a primeira tarefa"
)

// FormatTaskList numbers the incomplete tasks in the given order
func FormatTaskList(tasks []model.Task) string {
	open := model.Incomplete(tasks)
	if len(open) == 0 {
		return NoActiveTasksMessage
	}

	var b strings.Builder
	b.WriteString("*📋 Your Active Tasks:*\n\n")
	for i, t := range open {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
	}
	b.WriteString("\n_Reply with a task number to mark it complete_")
	return b.String()
}

// FormatSummary lists active and completed tasks and the pomodoro total
func FormatSummary(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString("*📋 Daily Task Summary*\n\n")

	if open := model.Incomplete(tasks); len(open) > 0 {
		b.WriteString("*Active Tasks:*\n")
		for i, t := range open {
			fmt.Fprintf(&b, "%d. %s (%d/%d 🍅)\n", i+1, t.Title, t.PomodorosActual, t.PomodorosEstimated)
		}
	}

	if done := model.Completed(tasks); len(done) > 0 {
		b.WriteString("\n*Completed Today:*\n")
		for _, t := range done {
			fmt.Fprintf(&b, "✅ %s\n", t.Title)
		}
	}

	total := 0
	for _, t := range tasks {
		total += t.PomodorosActual
	}
	fmt.Fprintf(&b, "\n*Total Pomodoros:* %d 🍅", total)
	return b.String()
}

// FormatCompleted confirms a task was marked done
func FormatCompleted(title string) string {
	return "✅ Concluída: " + title
}
