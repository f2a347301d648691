// Package webhook receives messaging-gateway events and exposes the bot's auxiliary endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cexll/pomotask/internal/auth"
	"github.com/cexll/pomotask/internal/command"
	"github.com/cexll/pomotask/internal/dispatcher"
	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/whatsapp"
)

const (
	// WebhookPath is where the gateway posts inbound messages
	WebhookPath = "/api/whatsapp/webhook"

	dedupeWindow   = 12 * time.Hour
	maxPayloadSize = 1 << 20
)

// Sender delivers text through the messaging gateway
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Broadcaster queues a summary for every linked profile
type Broadcaster interface {
	EnqueueAll(ctx context.Context) (int, error)
}

// EnvCheck reports which gateway settings are present
type EnvCheck struct {
	HasEvolutionURL bool
	HasEvolutionKey bool
	HasInstanceName bool
	InstanceName    string
}

// Options wires the handler. A nil Sender means the gateway is not configured.
type Options struct {
	Store           store.Store
	Sender          Sender
	Notifier        command.ChangeNotifier
	Broadcaster     Broadcaster
	Token           string
	DebugBufferSize int
	Env             EnvCheck
}

// Handler handles gateway webhooks and the manual summary endpoints
type Handler struct {
	store       store.Store
	sender      Sender
	interpreter *command.Interpreter
	broadcaster Broadcaster
	token       string
	env         EnvCheck
	recent      *debugRing
	deduper     *messageDeduper
}

// NewHandler creates a new webhook handler
func NewHandler(opts Options) *Handler {
	h := &Handler{
		store:       opts.Store,
		sender:      opts.Sender,
		broadcaster: opts.Broadcaster,
		token:       opts.Token,
		env:         opts.Env,
		recent:      newDebugRing(opts.DebugBufferSize),
		deduper:     newMessageDeduper(dedupeWindow),
	}
	if opts.Sender != nil {
		h.interpreter = command.NewInterpreter(opts.Store, opts.Sender)
		if opts.Notifier != nil {
			h.interpreter.WithNotifier(opts.Notifier)
		}
	}
	return h
}

// RegisterRoutes registers the webhook routes. requireAuth guards the user-facing endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth func(http.Handler) http.Handler) {
	r.HandleFunc(WebhookPath, h.Handle).Methods(http.MethodPost)
	r.HandleFunc(WebhookPath, h.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/whatsapp/broadcast", h.Broadcast).Methods(http.MethodPost)
	r.Handle("/api/whatsapp/send-summary", requireAuth(http.HandlerFunc(h.SendSummary))).Methods(http.MethodPost)
	r.Handle("/api/debug/whatsapp", requireAuth(http.HandlerFunc(h.Debug))).Methods(http.MethodGet)
}

// Handle processes one inbound gateway event
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if !VerifyToken(tokenFromRequest(r), h.token) {
		log.Printf("[Webhook] Rejected delivery with invalid token")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		log.Printf("[Webhook] Error reading payload: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error reading payload"})
		return
	}
	if !json.Valid(payload) {
		log.Printf("[Webhook] Ignoring non-JSON payload (%d bytes)", len(payload))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	h.recent.push(webhookRecord{Timestamp: time.Now().UTC(), Body: json.RawMessage(payload)})

	msg := parseInbound(payload)
	log.Printf("[Webhook] Parsed message: from=%q text=%q id=%q", msg.From, msg.Text, msg.ID)

	if msg.FromMe {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(command.StatusIgnored), "reason": "from_me"})
		return
	}
	if msg.From == "" || msg.Text == "" {
		log.Printf("[Webhook] Ignored: missing sender or text")
		writeJSON(w, http.StatusOK, map[string]string{"status": string(command.StatusIgnored), "reason": "missing_data"})
		return
	}

	if h.interpreter == nil {
		log.Printf("[Webhook] WhatsApp not configured: check EVOLUTION_API_URL, EVOLUTION_API_KEY, EVOLUTION_INSTANCE_NAME")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "WhatsApp not configured"})
		return
	}

	if msg.ID != "" && !h.deduper.markIfNew(msg.ID) {
		log.Printf("[Webhook] Ignoring duplicate message: id=%s", msg.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": string(command.StatusIgnored), "reason": "duplicate"})
		return
	}

	result, err := h.interpreter.Handle(r.Context(), command.Inbound{From: msg.From, Text: msg.Text})
	if err != nil {
		log.Printf("[Webhook] Command failed for %s: %v", msg.From, err)
		if msg.ID != "" {
			h.deduper.forget(msg.ID)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}

	resp := map[string]string{"status": string(result.Status)}
	if result.Status == command.StatusUserNotFound {
		resp["phone"] = msg.From
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status reports liveness, recent deliveries and which gateway settings are present
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if !VerifyToken(tokenFromRequest(r), h.token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"message":         "WhatsApp webhook endpoint",
		"recent_webhooks": h.recent.snapshot(),
		"env_check":       h.envFlags(),
	})
}

type sendSummaryRequest struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

// SendSummary sends the caller's summary to the given phone
func (h *Handler) SendSummary(w http.ResponseWriter, r *http.Request) {
	var req sendSummaryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Phone = model.NormalizePhone(req.Phone)
	if req.UserID == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and phone are required"})
		return
	}

	if h.sender == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "WhatsApp service not configured"})
		return
	}

	caller, ok := auth.UserID(r.Context())
	if !ok || caller != req.UserID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	tasks, err := h.store.ListTasks(r.Context(), store.TaskQuery{UserID: req.UserID, Limit: command.SummaryLimit})
	if err != nil {
		log.Printf("[Webhook] Send summary: list tasks for %s failed: %v", req.UserID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	if err := h.sender.SendText(r.Context(), req.Phone, whatsapp.FormatSummary(tasks)); err != nil {
		log.Printf("[Webhook] Send summary to %s failed: %v", req.Phone, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to send message"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Broadcast queues a summary for every linked profile. It requires the shared webhook token.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if h.token == "" || !VerifyToken(tokenFromRequest(r), h.token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if h.broadcaster == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "WhatsApp service not configured"})
		return
	}

	queued, err := h.broadcaster.EnqueueAll(r.Context())
	if err != nil {
		log.Printf("[Webhook] Broadcast failed after %d jobs: %v", queued, err)
		switch {
		case errors.Is(err, dispatcher.ErrQueueFull):
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Summary queue is busy, try again later", "queued": queued})
		case errors.Is(err, dispatcher.ErrQueueClosed):
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Summary queue unavailable", "queued": queued})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to queue summaries", "queued": queued})
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "queued": queued})
}

type debugProfile struct {
	UserID    string    `json:"user_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Debug reports the gateway configuration and the linked profiles
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	env := h.envFlags()
	env["evolution_url"] = presence(h.env.HasEvolutionURL)
	env["instance_name"] = h.env.InstanceName
	if h.env.InstanceName == "" {
		env["instance_name"] = "missing"
	}

	resp := map[string]any{
		"status":         "debug",
		"environment":    env,
		"profiles":       []debugProfile{},
		"profiles_error": nil,
		"webhook_url":    WebhookPath,
	}

	profiles, err := h.store.ListProfiles(r.Context())
	if err != nil {
		resp["profiles_error"] = err.Error()
	} else {
		out := make([]debugProfile, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, debugProfile{UserID: p.UserID, Phone: p.Phone, CreatedAt: p.CreatedAt})
		}
		resp["profiles"] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) envFlags() map[string]any {
	return map[string]any{
		"has_evolution_url": h.env.HasEvolutionURL,
		"has_evolution_key": h.env.HasEvolutionKey,
		"has_instance_name": h.env.HasInstanceName,
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Webhook] Failed to encode response: %v", err)
	}
}
