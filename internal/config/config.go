// Package config loads streamtap settings from a TOML file onto defaults.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"streamtap/pkg/framesink"
)

// Sink kinds.
const (
	SinkText   = "text"
	SinkDisk   = "disk"
	SinkRecord = "record"
	SinkQueue  = "queue"
)

// Renderer names.
const (
	RenderAuto = "auto"
	RenderText = "text"
	RenderHex  = "hex"
)

// Config holds runtime settings of the CLI.
type Config struct {
	Sink          string
	Output        string // empty means stdout for text, required for disk and record
	Boundary      []byte
	Framing       bool
	QueueCapacity int
	Overflow      framesink.OverflowPolicy
	Render        string
	InspectAddr   string
	LogLevel      string
	LogFormat     string
}

// Default returns the settings used when no file or flag changes them.
func Default() Config {
	return Config{
		Sink:          SinkText,
		Boundary:      append([]byte{}, framesink.DefaultBoundary...),
		Framing:       true,
		QueueCapacity: framesink.DefaultQueueCapacity,
		Overflow:      framesink.OverflowBlock,
		Render:        RenderAuto,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// config.toml key mapping to Config.
type fileConfig struct {
	Sink          string `toml:"sink"`
	Output        string `toml:"output"`
	Boundary      string `toml:"boundary"`
	Framing       bool   `toml:"framing"`
	QueueCapacity int    `toml:"queue_capacity"`
	Overflow      string `toml:"overflow"`
	Render        string `toml:"render"`
	InspectAddr   string `toml:"inspect_addr"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
}

// Load decodes path onto Default and validates the result. Keys missing
// from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("sink") {
		cfg.Sink = strings.TrimSpace(raw.Sink)
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("boundary") {
		boundary, err := ParseBoundary(raw.Boundary)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.Boundary = boundary
	}
	if meta.IsDefined("framing") {
		cfg.Framing = raw.Framing
	}
	if meta.IsDefined("queue_capacity") {
		cfg.QueueCapacity = raw.QueueCapacity
	}
	if meta.IsDefined("overflow") {
		policy, err := ParseOverflow(raw.Overflow)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.Overflow = policy
	}
	if meta.IsDefined("render") {
		cfg.Render = strings.TrimSpace(raw.Render)
	}
	if meta.IsDefined("inspect_addr") {
		cfg.InspectAddr = strings.TrimSpace(raw.InspectAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every setting has a supported value.
func (c Config) Validate() error {
	switch c.Sink {
	case SinkText, SinkQueue:
	case SinkDisk, SinkRecord:
		if c.Output == "" {
			return fmt.Errorf("sink %q requires an output path", c.Sink)
		}
	default:
		return fmt.Errorf("unsupported sink %q (expected text, disk, record or queue)", c.Sink)
	}
	if c.Framing && len(c.Boundary) == 0 {
		return framesink.ErrEmptyBoundary
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.InspectAddr != "" && c.Sink != SinkQueue {
		return fmt.Errorf("inspect_addr requires sink %q, got %q", SinkQueue, c.Sink)
	}
	switch c.Render {
	case RenderAuto, RenderText, RenderHex:
	default:
		return fmt.Errorf("unsupported render mode %q (expected auto, text or hex)", c.Render)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (expected text or json)", c.LogFormat)
	}
	return nil
}

// ParseBoundary decodes a Go-escaped string such as `\r\n` or `\x00\x01`
// into the bytes it denotes. An empty result is rejected.
func ParseBoundary(s string) ([]byte, error) {
	unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid boundary %q: %w", s, err)
	}
	if unquoted == "" {
		return nil, framesink.ErrEmptyBoundary
	}
	return []byte(unquoted), nil
}

// ParseOverflow maps "block" and "reject" to an OverflowPolicy.
func ParseOverflow(s string) (framesink.OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block", "":
		return framesink.OverflowBlock, nil
	case "reject":
		return framesink.OverflowReject, nil
	default:
		return 0, fmt.Errorf("unsupported overflow policy %q (expected block or reject)", s)
	}
}
