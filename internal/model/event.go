package model

import (
	"time"

	"marketfeed/internal/model/enum"
)

// OpsEvent reports an operational status change.
type OpsEvent struct {
	Time    time.Time         `json:"timestamp_utc"`
	Kind    enum.OpsKind      `json:"-"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

// Reason returns detail["reason"].
func (e OpsEvent) Reason() string {
	return e.Detail["reason"]
}

// Heartbeat is a periodic liveness marker.
type Heartbeat struct {
	Time     time.Time      `json:"timestamp_utc"`
	State    enum.FeedState `json:"-"`
	Sequence uint64         `json:"last_sequence"`
	// SeqPerSymbol is the latest bar.update sequence of each primary symbol.
	SeqPerSymbol map[string]uint64 `json:"seq_per_symbol,omitempty"`
}

// Event is what subscribers receive. Exactly one payload matches Topic.
type Event struct {
	Topic     enum.Topic
	Snapshot  *AlignedSnapshot
	Ops       *OpsEvent
	Heartbeat *Heartbeat
}

// Sequence returns the bar.update sequence, or 0 for other topics.
func (e Event) Sequence() uint64 {
	if e.Snapshot == nil {
		return 0
	}
	return e.Snapshot.Sequence
}
