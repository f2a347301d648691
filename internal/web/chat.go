package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/cexll/pomotask/internal/chat"
	"github.com/cexll/pomotask/internal/model"
)

type chatRequest struct {
	Message string          `json:"message"`
	Context json.RawMessage `json:"context,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	taskCtx := req.Context
	if len(taskCtx) == 0 || string(taskCtx) == "null" {
		var selected *model.Task
		if req.TaskID != "" {
			t, ok := h.ownedTask(w, r, b, req.TaskID)
			if !ok {
				return
			}
			selected = &t
		}
		tasks, _ := b.Snapshot()
		built, err := chat.BuildContext(selected, tasks)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to process message")
			return
		}
		taskCtx = built
	}

	if h.assistant == nil {
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	// One assistant call per user at a time
	key := "chat:" + b.UserID()
	if !h.inFlight.TryAcquire(key) {
		writeError(w, http.StatusTooManyRequests, "A message is already being processed")
		return
	}
	defer h.inFlight.Release(key)

	reply, err := h.assistant.Reply(r.Context(), chat.Request{
		UserID:  b.UserID(),
		Message: message,
		Context: taskCtx,
	})
	if err != nil {
		log.Printf("[Web] Chat for user %s failed: %v", b.UserID(), err)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}
