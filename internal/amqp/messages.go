package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
)

var ErrInvalidEvent = errors.New("invalid budget event")

var knownKinds = map[core.EventKind]bool{
	core.EventPreferenceCreated: true,
	core.EventPreferenceUpdated: true,
	core.EventPreferenceDeleted: true,
	core.EventLedgerAppended:    true,
	core.EventPeriodChanged:     true,
}

// NewBudgetEvent stamps an event with the current time.
func NewBudgetEvent(kind core.EventKind, userID string, period *core.Date) core.BudgetEvent {
	return core.BudgetEvent{
		Kind:      kind,
		UserID:    userID,
		Period:    period,
		Timestamp: time.Now().UTC(),
	}
}

// EncodeBudgetEvent converts the event to JSON bytes
func EncodeBudgetEvent(evt core.BudgetEvent) ([]byte, error) {
	if err := validateEvent(evt); err != nil {
		return nil, err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return json.Marshal(evt)
}

// DecodeBudgetEvent parses and checks a message body.
func DecodeBudgetEvent(data []byte) (core.BudgetEvent, error) {
	var evt core.BudgetEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return core.BudgetEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validateEvent(evt); err != nil {
		return core.BudgetEvent{}, err
	}
	return evt, nil
}

func validateEvent(evt core.BudgetEvent) error {
	if !knownKinds[evt.Kind] {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, evt.Kind)
	}
	if evt.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}
	return nil
}
