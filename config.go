package sqstash

import (
	"fmt"
	"os"
	"time"

	"github.com/liliang-cn/sqstash/pkg/core"
	"github.com/liliang-cn/sqstash/pkg/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents database configuration
type Config struct {
	Path         string        `yaml:"path"`           // Database file path, ignored in memory mode
	Mode         string        `yaml:"mode"`           // read-write, read-only or memory
	StrictTypes  bool          `yaml:"strict_types"`   // Fail Open on breaking type changes
	BusyTimeout  time.Duration `yaml:"busy_timeout"`   // How long writers wait for a lock
	MaxOpenConns int           `yaml:"max_open_conns"` // Connection pool size for file databases
	Log          LogConfig     `yaml:"log"`
}

// LogConfig selects where and how the database logs
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error; empty disables logging
	Format string `yaml:"format"` // console or json
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// DefaultConfig returns default configuration
func DefaultConfig(path string) Config {
	d := core.DefaultConfig()
	return Config{
		Path:         path,
		Mode:         core.ModeReadWrite.String(),
		BusyTimeout:  d.BusyTimeout,
		MaxOpenConns: d.MaxOpenConns,
		Log: LogConfig{
			Format: "console",
			Output: "stderr",
		},
	}
}

// LoadConfig reads a YAML configuration file. Missing keys keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// CoreConfig converts c into the engine configuration for the given types.
func (c Config) CoreConfig(types ...*schema.Type) (core.Config, error) {
	cc := core.DefaultConfig()
	if c.Mode != "" {
		mode, err := core.ParseOpenMode(c.Mode)
		if err != nil {
			return cc, &core.ArgumentError{Msg: "config", Err: err}
		}
		cc.Mode = mode
	}
	cc.Path = c.Path
	cc.Types = types
	cc.StrictTypes = c.StrictTypes
	if c.BusyTimeout > 0 {
		cc.BusyTimeout = c.BusyTimeout
	}
	if c.MaxOpenConns > 0 {
		cc.MaxOpenConns = c.MaxOpenConns
	}

	logger, err := c.Log.build()
	if err != nil {
		return cc, err
	}
	cc.Logger = logger
	return cc, nil
}

func (l LogConfig) build() (core.Logger, error) {
	if l.Level == "" {
		return core.NopLogger(), nil
	}
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, &core.ArgumentError{Msg: "log level", Err: err}
	}
	format := l.Format
	if format == "" {
		format = "console"
	}
	output := l.Output
	if output == "" {
		output = "stderr"
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         format,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return core.NewZapLogger(zl.Named("sqstash")), nil
}
