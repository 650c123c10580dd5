package model

import (
	"strings"
	"time"
)

// Priority is the AI-assigned urgency of a message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority normalizes s into a Priority. ok is false when s is not
// one of the known levels.
func ParsePriority(s string) (p Priority, ok bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return "", false
}

// Annotation holds the AI-derived classification of a message.
type Annotation struct {
	Intent    string   `json:"intent"`
	Sentiment string   `json:"sentiment"`
	Priority  Priority `json:"priority"`
	Summary   string   `json:"summary"`
}

// DefaultAnnotation is substituted whenever classification fails.
func DefaultAnnotation() Annotation {
	return Annotation{
		Intent:    "unknown",
		Sentiment: "neutral",
		Priority:  PriorityMedium,
		Summary:   "Analysis failed",
	}
}

// Message is a synchronized email. The pair (AccountID, ProviderMessageID)
// is unique.
type Message struct {
	ID        string `db:"id" json:"id"`
	AccountID string `db:"account_id" json:"account_id"`

	// ProviderMessageID is the provider-native identifier. It is unique
	// within an account but not globally.
	ProviderMessageID string `db:"provider_message_id" json:"provider_message_id"`

	From    string `db:"sender" json:"from"`
	To      string `db:"recipients" json:"to"`
	Subject string `db:"subject" json:"subject"`
	Body    string `db:"body" json:"body"`

	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	IsRead     bool      `db:"is_read" json:"is_read"`

	// AI fields stay nil until annotation has been attempted.
	Intent    *string   `db:"ai_intent" json:"ai_intent,omitempty"`
	Sentiment *string   `db:"ai_sentiment" json:"ai_sentiment,omitempty"`
	Priority  *Priority `db:"ai_priority" json:"ai_priority,omitempty"`
	Summary   *string   `db:"ai_summary" json:"ai_summary,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ApplyAnnotation copies an annotation into the message's AI fields.
func (m *Message) ApplyAnnotation(a Annotation) {
	intent, sentiment, summary, priority := a.Intent, a.Sentiment, a.Summary, a.Priority
	m.Intent = &intent
	m.Sentiment = &sentiment
	m.Priority = &priority
	m.Summary = &summary
}

// Annotation returns the message's AI fields. The second result is false
// when the message has not been annotated.
func (m *Message) Annotation() (Annotation, bool) {
	if m.Intent == nil || m.Sentiment == nil || m.Priority == nil || m.Summary == nil {
		return Annotation{}, false
	}
	return Annotation{
		Intent:    *m.Intent,
		Sentiment: *m.Sentiment,
		Priority:  *m.Priority,
		Summary:   *m.Summary,
	}, true
}
