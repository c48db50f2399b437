package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"budgetview/internal/core"
)

// RefreshMessage asks a worker to refresh one cached collection, or all of
// them when Entity is "all". Start and End are YYYY-MM-DD and optional; an
// empty bound defaults to the current month.
type RefreshMessage struct {
	ID        string    `json:"id,omitempty"`
	Entity    string    `json:"entity"`
	Start     string    `json:"start,omitempty"`
	End       string    `json:"end,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingEntity = errors.New("refresh message has no entity")

// NewRefreshMessage creates a refresh request for entity over r. A zero r
// leaves the range to the worker.
func NewRefreshMessage(entity string, r core.DateRange) *RefreshMessage {
	msg := &RefreshMessage{
		ID:        ulid.Make().String(),
		Entity:    entity,
		Timestamp: time.Now(),
	}
	if !r.Start.IsZero() {
		msg.Start = r.StartDate()
	}
	if !r.End.IsZero() {
		msg.End = r.EndDate()
	}
	return msg
}

// Range resolves the requested range relative to now.
func (m *RefreshMessage) Range(now time.Time) (core.DateRange, error) {
	return core.ParseDateRange(m.Start, m.End, now)
}

// ToJSON converts the message to JSON bytes
func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshMessageFromJSON parses and validates a message body.
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entity == "" {
		return nil, errMissingEntity
	}
	return &msg, nil
}
