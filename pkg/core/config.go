package core

import (
	"fmt"
	"time"

	"github.com/liliang-cn/sqstash/pkg/schema"
)

// OpenMode selects how a database is opened
type OpenMode int

const (
	// ModeReadWrite opens the file at Path, creating it if needed
	ModeReadWrite OpenMode = iota
	// ModeReadOnly opens an existing file at Path without write access
	ModeReadOnly
	// ModeMemory opens a private in-memory database; Path is ignored
	ModeMemory
)

func (m OpenMode) String() string {
	switch m {
	case ModeReadWrite:
		return "read-write"
	case ModeReadOnly:
		return "read-only"
	case ModeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseOpenMode is the inverse of OpenMode.String
func ParseOpenMode(s string) (OpenMode, error) {
	for _, m := range []OpenMode{ModeReadWrite, ModeReadOnly, ModeMemory} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown open mode %q", s)
}

// Config holds the configuration for a Database
type Config struct {
	Path string
	Mode OpenMode

	// Types are the user types this session can store. Built-in primitives
	// are always available.
	Types []*schema.Type

	// StrictTypes makes Open fail when a supplied type is incompatible with
	// its stored descriptor. Otherwise the type is only unusable.
	StrictTypes bool

	BusyTimeout  time.Duration
	MaxOpenConns int
	Logger       Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Mode:         ModeReadWrite,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
		Logger:       NopLogger(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
