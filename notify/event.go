package notify

import "time"

// EventType names a security-relevant account change.
type EventType string

const (
	EventNewLogin          EventType = "new_login"
	EventPasswordChanged   EventType = "password_changed"
	EventTwoFactorEnabled  EventType = "two_factor_enabled"
	EventTwoFactorDisabled EventType = "two_factor_disabled"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityHigh    Severity = "high"
)

// Severity ranks how urgently the account owner should read the alert.
// Turning protection off ranks above turning it on.
func (t EventType) Severity() Severity {
	switch t {
	case EventTwoFactorDisabled:
		return SeverityHigh
	case EventPasswordChanged:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Event is emitted by an account state change and handed to a Publisher.
type Event struct {
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	IP         string    `json:"ip"`
	Device     string    `json:"device"`
	OS         string    `json:"os"`
	Location   string    `json:"location,omitempty"` // set by the dispatcher
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher accepts events for delivery. Publish never blocks on delivery.
type Publisher interface {
	Publish(events ...Event)
}
