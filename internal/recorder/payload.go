package recorder

import (
	"time"

	"github.com/bytedance/sonic"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
)

// api sorts map keys so identical events always encode to identical bytes.
var api = sonic.ConfigStd

var ErrEmptyEvent = errors.New("journal event without payload")

type barPayload struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"timestamp_utc"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// snapshotPayload is the bar.update body. Absent context symbols encode as null;
// ContextOrder keeps the configured order the map loses.
type snapshotPayload struct {
	Sequence     uint64                 `json:"sequence"`
	SessionDate  model.Date             `json:"session_date"`
	Primary      barPayload             `json:"primary_bar"`
	Context      map[string]*barPayload `json:"context_bars"`
	ContextOrder []string               `json:"context_order"`
}

type opsPayload struct {
	Time    time.Time         `json:"timestamp_utc"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

type heartbeatPayload struct {
	Time     time.Time         `json:"timestamp_utc"`
	State    string            `json:"state"`
	Sequence uint64            `json:"last_sequence"`
	PerSym   map[string]uint64 `json:"seq_per_symbol,omitempty"`
}

func toBarPayload(b model.Bar) barPayload {
	return barPayload{
		Symbol: b.Symbol,
		Time:   b.Time.UTC(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func (p barPayload) bar() model.Bar {
	return model.Bar{
		Symbol: p.Symbol,
		Time:   p.Time.UTC(),
		Open:   p.Open,
		High:   p.High,
		Low:    p.Low,
		Close:  p.Close,
		Volume: p.Volume,
	}
}

// EncodeEvent renders ev as the JSON body of its topic.
func EncodeEvent(ev model.Event) ([]byte, error) {
	switch {
	case ev.Topic == enum.TopicBarUpdate && ev.Snapshot != nil:
		s := ev.Snapshot
		p := snapshotPayload{
			Sequence:     s.Sequence,
			SessionDate:  s.SessionDate,
			Primary:      toBarPayload(s.Primary),
			Context:      make(map[string]*barPayload, len(s.Context)),
			ContextOrder: s.Context.Symbols(),
		}
		for _, c := range s.Context {
			if !c.Present {
				p.Context[c.Symbol] = nil
				continue
			}
			bar := toBarPayload(c.Bar)
			p.Context[c.Symbol] = &bar
		}
		return api.Marshal(p)
	case ev.Topic == enum.TopicOpsEvent && ev.Ops != nil:
		return api.Marshal(opsPayload{
			Time:    ev.Ops.Time.UTC(),
			Kind:    ev.Ops.Kind.String(),
			Message: ev.Ops.Message,
			Detail:  ev.Ops.Detail,
		})
	case ev.Topic == enum.TopicHealthHeartbeat && ev.Heartbeat != nil:
		return api.Marshal(heartbeatPayload{
			Time:     ev.Heartbeat.Time.UTC(),
			State:    ev.Heartbeat.State.String(),
			Sequence: ev.Heartbeat.Sequence,
			PerSym:   ev.Heartbeat.SeqPerSymbol,
		})
	}
	return nil, errors.Wrapf(ErrEmptyEvent, "topic %s", ev.Topic)
}

// DecodeEvent rebuilds the event stored in r.
func DecodeEvent(r Record) (model.Event, error) {
	switch r.Topic {
	case enum.TopicBarUpdate:
		var p snapshotPayload
		if err := api.Unmarshal(r.Payload, &p); err != nil {
			return model.Event{}, errors.Wrap(err, "decode bar.update")
		}
		snap := &model.AlignedSnapshot{
			Sequence:    p.Sequence,
			SessionDate: p.SessionDate,
			Primary:     p.Primary.bar(),
			Context:     make(model.ContextBars, 0, len(p.ContextOrder)),
		}
		for _, sym := range p.ContextOrder {
			entry := model.ContextBar{Symbol: sym}
			if bar := p.Context[sym]; bar != nil {
				entry.Bar = bar.bar()
				entry.Present = true
			}
			snap.Context = append(snap.Context, entry)
		}
		return model.Event{Topic: r.Topic, Snapshot: snap}, nil
	case enum.TopicOpsEvent:
		var p opsPayload
		if err := api.Unmarshal(r.Payload, &p); err != nil {
			return model.Event{}, errors.Wrap(err, "decode ops.event")
		}
		kind, ok := enum.ParseOpsKind(p.Kind)
		if !ok {
			return model.Event{}, errors.Wrapf(ErrInvalidTopic, "ops kind %q", p.Kind)
		}
		return model.Event{Topic: r.Topic, Ops: &model.OpsEvent{
			Time:    p.Time.UTC(),
			Kind:    kind,
			Message: p.Message,
			Detail:  p.Detail,
		}}, nil
	case enum.TopicHealthHeartbeat:
		var p heartbeatPayload
		if err := api.Unmarshal(r.Payload, &p); err != nil {
			return model.Event{}, errors.Wrap(err, "decode health.heartbeat")
		}
		state, ok := enum.ParseFeedState(p.State)
		if !ok {
			return model.Event{}, errors.Wrapf(ErrInvalidTopic, "heartbeat state %q", p.State)
		}
		return model.Event{Topic: r.Topic, Heartbeat: &model.Heartbeat{
			Time:         p.Time.UTC(),
			State:        state,
			Sequence:     p.Sequence,
			SeqPerSymbol: p.PerSym,
		}}, nil
	}
	return model.Event{}, errors.Wrapf(ErrInvalidTopic, "topic %d", r.Topic)
}

func recordOf(ev model.Event, payload []byte) Record {
	r := Record{Topic: ev.Topic, Sequence: ev.Sequence(), Payload: payload}
	switch {
	case ev.Snapshot != nil:
		r.Time = ev.Snapshot.Primary.Time
	case ev.Ops != nil:
		r.Time = ev.Ops.Time
	case ev.Heartbeat != nil:
		r.Time = ev.Heartbeat.Time
		r.Sequence = ev.Heartbeat.Sequence
	}
	return r
}
