package bus

import (
	"slices"

	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
)

// Callback receives one event. Payloads are shared between subscribers and must
// be treated as read-only. A callback must not publish.
type Callback func(model.Event) error

// Subscription is a registered callback.
type Subscription struct {
	id      string
	symbols []string
	cb      Callback
}

// ID is the stable identifier reported in subscriber_error events.
func (s *Subscription) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *Subscription) matches(ev model.Event) bool {
	if ev.Topic != enum.TopicBarUpdate || len(s.symbols) == 0 {
		return true
	}
	return ev.Snapshot != nil && slices.Contains(s.symbols, ev.Snapshot.Primary.Symbol)
}
