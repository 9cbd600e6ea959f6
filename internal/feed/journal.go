package feed

import (
	"strconv"

	"github.com/yanun0323/logs"

	"marketfeed/internal/bus"
	"marketfeed/internal/model"
	"marketfeed/internal/recorder"
)

// journalSub is the journal of one run and its subscription. A nil *journalSub
// means journaling is off.
type journalSub struct {
	j   *recorder.Journal
	sub *bus.Subscription
}

// openJournal subscribes a journal when settings.JournalDir is set. A journal
// that cannot be opened is logged and skipped; it never blocks a run.
func (c *Controller) openJournal(date model.Date) *journalSub {
	if c.settings.JournalDir == "" {
		return nil
	}
	j, err := recorder.Open(recorder.DefaultConfig(c.settings.JournalDir), date)
	if err != nil {
		logs.Errorf("open journal in %s, err: %+v", c.settings.JournalDir, err)
		return nil
	}
	sub, err := c.pub.Subscribe(nil, j.Callback)
	if err != nil {
		_ = j.Close()
		logs.Errorf("subscribe journal, err: %+v", err)
		return nil
	}
	c.mu.Lock()
	c.result.Journal = j.Path()
	c.mu.Unlock()
	return &journalSub{j: j, sub: sub}
}

func (s *journalSub) close(pub *bus.Publisher) {
	if s == nil {
		return
	}
	pub.Unsubscribe(s.sub)
	if err := s.j.Close(); err != nil {
		logs.Errorf("close journal %s, err: %+v", s.j.Path(), err)
	}
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func intString(v int) string {
	return strconv.Itoa(v)
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}
