package recorder

import (
	"fmt"

	"marketfeed/internal/model/enum"
)

const (
	defaultBufferSize = 64 * 1024
	defaultFilePrefix = "feed"
	fileSuffix        = ".journal"
)

// Config controls journal writing.
type Config struct {
	Dir        string
	FilePrefix string
	BufferSize int
	// Topics limits what is journaled. Empty journals every topic.
	Topics []string
	// SyncOnClose fsyncs the file when the journal is closed.
	SyncOnClose bool
}

// DefaultConfig returns a baseline journal configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		FilePrefix:  defaultFilePrefix,
		BufferSize:  defaultBufferSize,
		SyncOnClose: true,
	}
}

func (c Config) withDefaults() Config {
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid journal config: Dir is empty")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid journal config: BufferSize must be > 0")
	}
	if c.FilePrefix == "" {
		return fmt.Errorf("invalid journal config: FilePrefix is empty")
	}
	for _, topic := range c.Topics {
		if _, ok := enum.ParseTopic(topic); !ok {
			return fmt.Errorf("invalid journal config: unknown topic %q", topic)
		}
	}
	return nil
}
