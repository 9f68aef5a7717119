// Package config provides the configuration schema, loader and recognizer
// registry for speechkit.
package config

import (
	"time"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/perf"
	"github.com/MrWong99/speechkit/pkg/segment"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Segment     SegmentConfig     `yaml:"segment"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Cache       CacheConfig       `yaml:"cache"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics and /report
	// (e.g. ":9464"). Empty disables the diagnostics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig describes the PCM format the pipeline works in. Input in any
// other format is converted on ingest.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	BitDepth   int `yaml:"bit_depth"`
	Channels   int `yaml:"channels"`
}

// SegmentConfig sizes the segment buffer, in milliseconds of audio.
type SegmentConfig struct {
	// BufferSizeMs is the hard cap on buffered audio.
	BufferSizeMs int `yaml:"buffer_size_ms"`

	// BufferThresholdMs is the amount of audio at which a segment is ready.
	BufferThresholdMs int `yaml:"buffer_threshold_ms"`

	// MinAudioLengthMs is the intended lower bound for a useful segment.
	MinAudioLengthMs int `yaml:"min_audio_length_ms"`
}

// FingerprintConfig tunes fingerprint rounding.
type FingerprintConfig struct {
	// Precision is the number of decimals kept for each feature. Lower
	// values make more near-identical segments collide.
	Precision int `yaml:"precision"`
}

// CacheConfig configures the result cache tiers.
type CacheConfig struct {
	// Capacity bounds the per-session in-process cache.
	Capacity int `yaml:"capacity"`

	// Remote configures an optional shared Redis tier.
	Remote RemoteCacheConfig `yaml:"remote"`
}

// RemoteCacheConfig configures the shared Redis result tier. An empty Addr
// disables it.
type RemoteCacheConfig struct {
	// Addr is a host:port or a redis:// URL.
	Addr string `yaml:"addr"`

	// TTL bounds how long a shared result is kept. 0 means no expiry.
	TTL time.Duration `yaml:"ttl"`

	// KeyPrefix namespaces keys, e.g. per deployment.
	KeyPrefix string `yaml:"key_prefix"`
}

// MetricsConfig sizes the performance monitor windows.
type MetricsConfig struct {
	AccuracyWindow   int     `yaml:"accuracy_window"`
	LatencyWindow    int     `yaml:"latency_window"`
	// SuccessThreshold is a pointer so that an explicit 0 survives defaults.
	SuccessThreshold *float64 `yaml:"success_threshold"`
}

// RecognizerConfig selects and configures the speech recognizer. Name is
// used to look up the constructor in the [Registry].
type RecognizerConfig struct {
	// Name selects the registered recognizer ("whisper", "openai", "mock").
	Name string `yaml:"name"`

	// BaseURL overrides the recognizer's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted recognizers.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the recognizer.
	Model string `yaml:"model"`

	// Language is a BCP-47 hint such as "en". Empty lets the recognizer
	// detect it.
	Language string `yaml:"language"`

	// Timeout bounds a single recognition call. 0 means no limit beyond the
	// caller's context.
	Timeout time.Duration `yaml:"timeout"`
}

// ResilienceConfig configures recognizer failover. The primary recognizer
// and each fallback sit behind their own circuit breaker.
type ResilienceConfig struct {
	// Fallbacks are tried in order when the primary recognizer fails or its
	// circuit is open.
	Fallbacks []RecognizerConfig `yaml:"fallbacks"`

	// MaxFailures is the number of consecutive failures that opens a circuit.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open circuit waits before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful probes that close a circuit.
	HalfOpenMax int `yaml:"half_open_max"`
}

// Format returns the configured pipeline audio format.
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.Audio.SampleRate,
		BitDepth:   c.Audio.BitDepth,
		Channels:   c.Audio.Channels,
	}
}

// SegmentBuffer returns the segment buffer configuration.
func (c *Config) SegmentBuffer() segment.Config {
	return segment.Config{
		BufferSize:      time.Duration(c.Segment.BufferSizeMs) * time.Millisecond,
		BufferThreshold: time.Duration(c.Segment.BufferThresholdMs) * time.Millisecond,
		MinAudioLength:  time.Duration(c.Segment.MinAudioLengthMs) * time.Millisecond,
		Format:          c.Format(),
	}
}

// Monitor returns the performance monitor configuration.
func (c *Config) Monitor() perf.Config {
	return perf.Config{
		AccuracyWindow:   c.Metrics.AccuracyWindow,
		LatencyWindow:    c.Metrics.LatencyWindow,
		CacheCapacity:    c.Cache.Capacity,
		SuccessThreshold: c.Metrics.SuccessThreshold,
	}
}
