package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated            EventType = "user_created"
	EventPasswordChanged        EventType = "password_changed"
	EventPasswordResetRequested EventType = "password_reset_requested"
)

// AllEventTypes lists every event type in publication order.
var AllEventTypes = []EventType{EventUserCreated, EventPasswordChanged, EventPasswordResetRequested}

// Subject returns the bus subject for the event type under prefix, e.g. notification.user.created.
func (t EventType) Subject(prefix string) string {
	var suffix string
	switch t {
	case EventUserCreated:
		suffix = "user.created"
	case EventPasswordChanged:
		suffix = "password.changed"
	case EventPasswordResetRequested:
		suffix = "password.reset"
	default:
		suffix = string(t)
	}
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}

// Event represents a notification emitted by the session and user services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, userID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// UserCreatedPayload payload.
type UserCreatedPayload struct {
	Email          string      `json:"email"`
	Name           string      `json:"name"`
	OrganizationID string      `json:"organization_id"`
	Role           domain.Role `json:"role"`
}

// PasswordChangedPayload payload. Reason is "change" or "reset".
type PasswordChangedPayload struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// PasswordResetRequestedPayload carries the reset envelope to the delivery channel.
type PasswordResetRequestedPayload struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type wireEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEvent parses a JSON event and restores the typed payload for known event types.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var payload any
	switch w.Type {
	case EventUserCreated:
		payload = &UserCreatedPayload{}
	case EventPasswordChanged:
		payload = &PasswordChangedPayload{}
	case EventPasswordResetRequested:
		payload = &PasswordResetRequestedPayload{}
	default:
		return Event{}, fmt.Errorf("decode event: unknown type %q", w.Type)
	}
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, payload); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	}

	return Event{
		ID:        w.ID,
		Type:      w.Type,
		UserID:    w.UserID,
		Timestamp: w.Timestamp,
		Payload:   derefPayload(payload),
	}, nil
}

func derefPayload(p any) any {
	switch v := p.(type) {
	case *UserCreatedPayload:
		return *v
	case *PasswordChangedPayload:
		return *v
	case *PasswordResetRequestedPayload:
		return *v
	}
	return p
}
