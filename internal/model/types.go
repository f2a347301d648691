package model

import (
	"strings"
	"time"
	"unicode"
)

// Note is a free-text annotation on a task
type Note struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile links a user to the phone number the bot recognises
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role of a chat participant
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage lives only for the duration of a client session
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const whatsappJIDSuffix = "@s.whatsapp.net"

// NormalizePhone keeps only the digits of a phone number
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneFromJID strips the WhatsApp JID suffix from a sender identifier
func PhoneFromJID(jid string) string {
	return strings.TrimSuffix(strings.TrimSpace(jid), whatsappJIDSuffix)
}
