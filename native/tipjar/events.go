package tipjar

import (
	"tipjar/core/events"
	"tipjar/core/types"
)

const (
	// EventTypeCreatorRegistered is emitted when a new creator registers.
	EventTypeCreatorRegistered = "tipjar.creator.registered"
	// EventTypeCreatorUpdated is emitted when a creator changes their
	// profile.
	EventTypeCreatorUpdated = "tipjar.creator.updated"
	// EventTypeTipReceived is emitted for every successful tip.
	EventTypeTipReceived = "tipjar.tip.received"
	// EventTypeWithdrawalCompleted is emitted after a successful payout.
	EventTypeWithdrawalCompleted = "tipjar.withdrawal.completed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// CreatorRegisteredEvent announces a new creator record.
func CreatorRegisteredEvent(creator string, name string, about string) *types.Event {
	return &types.Event{
		Type: EventTypeCreatorRegistered,
		Attributes: map[string]string{
			"creator": creator,
			"name":    name,
			"about":   about,
		},
	}
}

// CreatorUpdatedEvent announces a profile change.
func CreatorUpdatedEvent(creator string, name string, about string) *types.Event {
	return &types.Event{
		Type: EventTypeCreatorUpdated,
		Attributes: map[string]string{
			"creator": creator,
			"name":    name,
			"about":   about,
		},
	}
}

// TipReceivedEvent captures one supporter contribution.
func TipReceivedEvent(creator string, supporter string, amount string, timestamp int64, name string, message string) *types.Event {
	return &types.Event{
		Type: EventTypeTipReceived,
		Attributes: map[string]string{
			"creator":   creator,
			"supporter": supporter,
			"amount":    amount,
			"timestamp": formatTimestamp(timestamp),
			"name":      name,
			"message":   message,
		},
	}
}

// WithdrawalCompletedEvent captures a settled payout.
func WithdrawalCompletedEvent(creator string, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawalCompleted,
		Attributes: map[string]string{
			"creator": creator,
			"amount":  amount,
		},
	}
}
