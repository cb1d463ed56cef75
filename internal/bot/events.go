package bot

import (
	"encoding/json"
	"time"

	"github.com/intenise/sentry/internal/broadcast"
)

// BroadcastEvent is published when the operator finishes composing a
// broadcast; the fan-out handler consumes it off the event bus so delivery
// never blocks command handling.
type BroadcastEvent struct {
	OperatorID int64           `json:"operator_id"`
	Draft      broadcast.Draft `json:"draft"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Marshal serializes the event to JSON
func (e BroadcastEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBroadcastEvent deserializes JSON to BroadcastEvent
func UnmarshalBroadcastEvent(data []byte) (BroadcastEvent, error) {
	var event BroadcastEvent
	err := json.Unmarshal(data, &event)
	return event, err
}
