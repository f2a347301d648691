package webhook

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cexll/pomotask/internal/model"
)

// inboundMessage is the part of an Evolution API messages.upsert event the bot acts on
type inboundMessage struct {
	ID     string
	From   string
	Text   string
	FromMe bool
}

func parseInbound(body []byte) inboundMessage {
	data := gjson.GetBytes(body, "data")

	jid := data.Get("message.key.remoteJid").String()
	if jid == "" {
		jid = data.Get("key.remoteJid").String()
	}

	text := data.Get("message.conversation").String()
	if text == "" {
		text = data.Get("message.extendedTextMessage.text").String()
	}

	return inboundMessage{
		ID:     data.Get("key.id").String(),
		From:   model.PhoneFromJID(jid),
		Text:   text,
		FromMe: data.Get("key.fromMe").Bool(),
	}
}

// webhookRecord is one raw delivery kept for debugging
type webhookRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

// debugRing keeps the most recent deliveries, newest first. Contents reset on restart.
type debugRing struct {
	mu      sync.Mutex
	size    int
	entries []webhookRecord
}

func newDebugRing(size int) *debugRing {
	if size <= 0 {
		size = 20
	}
	return &debugRing{size: size}
}

func (r *debugRing) push(rec webhookRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]webhookRecord{rec}, r.entries...)
	if len(r.entries) > r.size {
		r.entries = r.entries[:r.size]
	}
}

func (r *debugRing) snapshot() []webhookRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]webhookRecord, len(r.entries))
	copy(out, r.entries)
	return out
}
