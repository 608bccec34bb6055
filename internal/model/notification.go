package model

import (
	"time"

	"github.com/google/uuid"
)

// Length bounds applied to notification text before it is persisted.
const (
	TitleMaxLength   = 200
	MessageMaxLength = 2000
)

// NotificationType classifies a notification. The set is closed.
type NotificationType string

const (
	NotificationInfo         NotificationType = "info"
	NotificationSuccess      NotificationType = "success"
	NotificationWarning      NotificationType = "warning"
	NotificationError        NotificationType = "error"
	NotificationSecurity     NotificationType = "security"
	NotificationCelebration  NotificationType = "celebration"
	NotificationProgress     NotificationType = "progress"
	NotificationHook         NotificationType = "hook"
	NotificationToolUse      NotificationType = "toolUse"
	NotificationReminder     NotificationType = "reminder"
	NotificationAI           NotificationType = "ai"
	NotificationDownload     NotificationType = "download"
	NotificationSync         NotificationType = "sync"
	NotificationConfirmation NotificationType = "confirmation"
)

// NotificationTypes lists every known notification type.
var NotificationTypes = []NotificationType{
	NotificationInfo,
	NotificationSuccess,
	NotificationWarning,
	NotificationError,
	NotificationSecurity,
	NotificationCelebration,
	NotificationProgress,
	NotificationHook,
	NotificationToolUse,
	NotificationReminder,
	NotificationAI,
	NotificationDownload,
	NotificationSync,
	NotificationConfirmation,
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseNotificationType converts a raw type string into a NotificationType.
// The hook sends snake_case names ("tool_use"), which are accepted as aliases.
func ParseNotificationType(s string) (NotificationType, bool) {
	if s == "tool_use" {
		return NotificationToolUse, true
	}
	t := NotificationType(s)
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// Priority orders notifications by urgency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Valid reports whether p is within the known priority range.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// NotificationRecord is a single persisted notification event.
type NotificationRecord struct {
	// ID is the unique, immutable identifier of the record.
	ID string `json:"id"`

	// Timestamp is when the notification was created.
	Timestamp time.Time `json:"timestamp"`

	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`

	Priority Priority `json:"priority"`

	// Icon is an optional symbol or image reference shown with the notification.
	Icon *string `json:"icon,omitempty"`

	// Metadata carries provenance such as source, project and tool name.
	Metadata Metadata `json:"metadata,omitempty"`

	// UserChoice is set after creation when the user answers an
	// interactive notification. It is the only mutable field.
	UserChoice *string `json:"user_choice,omitempty"`
}

// NewNotification returns a record with a fresh ID and the current time.
func NewNotification(
	title, message string,
	typ NotificationType,
	priority Priority,
) NotificationRecord {
	return NotificationRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Title:     title,
		Message:   message,
		Type:      typ,
		Priority:  priority,
	}
}

// Truncated returns a copy of r with title and message cut to their
// maximum lengths on rune boundaries.
func (r NotificationRecord) Truncated() NotificationRecord {
	r.Title = truncateRunes(r.Title, TitleMaxLength)
	r.Message = truncateRunes(r.Message, MessageMaxLength)
	return r
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
