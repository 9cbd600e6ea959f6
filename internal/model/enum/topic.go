package enum

type Topic uint8

const (
	_topic_beg Topic = iota
	TopicBarUpdate
	TopicOpsEvent
	TopicHealthHeartbeat
	_topic_end
)

func (t Topic) IsAvailable() bool {
	return t > _topic_beg && t < _topic_end
}

func (t Topic) String() string {
	switch t {
	case TopicBarUpdate:
		return "bar.update"
	case TopicOpsEvent:
		return "ops.event"
	case TopicHealthHeartbeat:
		return "health.heartbeat"
	default:
		return "unknown"
	}
}

// ParseTopic maps a topic name such as "bar.update" to its enum value.
func ParseTopic(s string) (Topic, bool) {
	for t := _topic_beg + 1; t < _topic_end; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}
