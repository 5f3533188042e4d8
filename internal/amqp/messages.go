package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mealtrack/internal/core"
)

// MessageVersion is bumped whenever the message layout changes incompatibly.
const MessageVersion = 1

var ErrInvalidMessage = errors.New("invalid meal event message")

// MealEventMessage carries one confirmed ledger mutation. The event fields
// are inlined so consumers that only care about id/kind/date can ignore the
// envelope.
type MealEventMessage struct {
	core.MealEvent
	Version     int       `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

// NewMealEventMessage wraps ev for publishing.
func NewMealEventMessage(ev core.MealEvent) *MealEventMessage {
	return &MealEventMessage{
		MealEvent:   ev,
		Version:     MessageVersion,
		PublishedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MealEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RoutingKey is used as the AMQP message type, e.g. "meal.created".
func (m *MealEventMessage) RoutingKey() string {
	return "meal." + string(m.Kind)
}

// MealEventMessageFromJSON decodes and checks a message body.
func MealEventMessageFromJSON(data []byte) (*MealEventMessage, error) {
	var msg MealEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	switch msg.Kind {
	case core.EventCreated, core.EventUpdated, core.EventDeleted:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, msg.Kind)
	}
	if msg.Meal.ID == "" {
		return nil, fmt.Errorf("%w: missing meal id", ErrInvalidMessage)
	}
	return &msg, nil
}
