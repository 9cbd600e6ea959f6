package recorder

import (
	"bytes"
	"errors"
	"fmt"

	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
)

var ErrMismatch = errors.New("journal mismatch")

// CompareSnapshots checks that two runs published the same bar.update stream:
// same count and byte-identical payloads in order. Other topics carry wall-clock
// time and run ids, so they are ignored.
func CompareSnapshots(a, b []model.Event) error {
	sa, err := snapshotPayloads(a)
	if err != nil {
		return err
	}
	sb, err := snapshotPayloads(b)
	if err != nil {
		return err
	}
	n := min(len(sa), len(sb))
	for i := 0; i < n; i++ {
		if !bytes.Equal(sa[i], sb[i]) {
			return fmt.Errorf("%w: bar.update #%d differs", ErrMismatch, i+1)
		}
	}
	if len(sa) != len(sb) {
		return fmt.Errorf("%w: %d vs %d bar.update events", ErrMismatch, len(sa), len(sb))
	}
	return nil
}

func snapshotPayloads(events []model.Event) ([][]byte, error) {
	var out [][]byte
	for _, ev := range events {
		if ev.Topic != enum.TopicBarUpdate {
			continue
		}
		payload, err := EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}
