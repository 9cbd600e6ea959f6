package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"marketfeed/internal/model"
	"marketfeed/internal/model/enum"
)

var ErrClosed = errors.New("journal closed")

// Journal appends published events to one file per session. It is meant to be
// registered as a bus subscriber: writes happen inside the delivery, so the
// file order is the delivery order and nothing is dropped.
type Journal struct {
	cfg    Config
	topics map[enum.Topic]struct{}
	path   string

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	w       *Writer
	records uint64
	closed  bool
}

// Open creates <prefix>-<yyyymmdd>-<n>.journal in cfg.Dir, picking the first free n.
func Open(cfg Config, session model.Date) (*Journal, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	var topics map[enum.Topic]struct{}
	if len(cfg.Topics) > 0 {
		topics = make(map[enum.Topic]struct{}, len(cfg.Topics))
		for _, name := range cfg.Topics {
			t, _ := enum.ParseTopic(name)
			topics[t] = struct{}{}
		}
	}

	day := strings.ReplaceAll(session.String(), "-", "")
	for id := 1; ; id++ {
		name := fmt.Sprintf("%s-%s-%06d%s", cfg.FilePrefix, day, id, fileSuffix)
		path := filepath.Join(cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		buf := bufio.NewWriterSize(file, cfg.BufferSize)
		return &Journal{
			cfg:    cfg,
			topics: topics,
			path:   path,
			file:   file,
			buf:    buf,
			w:      NewWriter(buf),
		}, nil
	}
}

func (j *Journal) Path() string {
	return j.path
}

// Records returns the number of records written.
func (j *Journal) Records() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

// Callback is the bus.Callback form of Append.
func (j *Journal) Callback(ev model.Event) error {
	return j.Append(ev)
}

// Append encodes and buffers ev. Events of filtered-out topics are skipped.
func (j *Journal) Append(ev model.Event) error {
	if j.topics != nil {
		if _, ok := j.topics[ev.Topic]; !ok {
			return nil
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.w.Write(ev); err != nil {
		return err
	}
	j.records++
	return nil
}

// Flush writes buffered records to the file.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.buf.Flush()
}

// Close flushes, optionally syncs, and closes the file. It is safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	if j.cfg.SyncOnClose {
		if err := j.file.Sync(); err != nil {
			_ = j.file.Close()
			return err
		}
	}
	return j.file.Close()
}
