package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speechkit/internal/resilience"
	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/fingerprint"
	"github.com/MrWong99/speechkit/pkg/perf"
	"github.com/MrWong99/speechkit/pkg/resultcache"
	"github.com/MrWong99/speechkit/pkg/resultcache/redisstore"
	"github.com/MrWong99/speechkit/pkg/segment"
)

// ValidRecognizerNames lists the recognizers built into speechkit. Used by
// [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"whisper", "openai", "mock"}

// DefaultRecognizer is the recognizer used when none is configured.
const DefaultRecognizer = "whisper"

// maxPrecision bounds fingerprint precision; beyond this, float noise makes
// every segment unique and the cache useless.
const maxPrecision = 9

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = audio.DefaultFormat.SampleRate
	}
	if cfg.Audio.BitDepth == 0 {
		cfg.Audio.BitDepth = audio.DefaultFormat.BitDepth
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = audio.DefaultFormat.Channels
	}

	seg := segment.DefaultConfig()
	if cfg.Segment.BufferSizeMs == 0 {
		cfg.Segment.BufferSizeMs = int(seg.BufferSize / time.Millisecond)
	}
	if cfg.Segment.BufferThresholdMs == 0 {
		cfg.Segment.BufferThresholdMs = int(seg.BufferThreshold / time.Millisecond)
	}
	if cfg.Segment.MinAudioLengthMs == 0 {
		cfg.Segment.MinAudioLengthMs = int(seg.MinAudioLength / time.Millisecond)
	}

	if cfg.Fingerprint.Precision == 0 {
		cfg.Fingerprint.Precision = fingerprint.DefaultPrecision
	}

	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = resultcache.DefaultCapacity
	}
	if cfg.Cache.Remote.KeyPrefix == "" {
		cfg.Cache.Remote.KeyPrefix = redisstore.DefaultPrefix
	}

	if cfg.Metrics.AccuracyWindow == 0 {
		cfg.Metrics.AccuracyWindow = perf.DefaultAccuracyWindow
	}
	if cfg.Metrics.LatencyWindow == 0 {
		cfg.Metrics.LatencyWindow = perf.DefaultLatencyWindow
	}
	if cfg.Metrics.SuccessThreshold == nil {
		cfg.Metrics.SuccessThreshold = perf.Threshold(perf.DefaultSuccessThreshold)
	}

	if cfg.Recognizer.Name == "" {
		cfg.Recognizer.Name = DefaultRecognizer
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = resilience.DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = resilience.DefaultResetTimeout
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = resilience.DefaultHalfOpenMax
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is unsupported; only 16-bit PCM is handled", cfg.Audio.BitDepth))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}

	// Segment
	if cfg.Segment.BufferSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("segment.buffer_size_ms %d must be positive", cfg.Segment.BufferSizeMs))
	}
	if cfg.Segment.BufferThresholdMs <= 0 {
		errs = append(errs, fmt.Errorf("segment.buffer_threshold_ms %d must be positive", cfg.Segment.BufferThresholdMs))
	}
	if cfg.Segment.BufferThresholdMs > cfg.Segment.BufferSizeMs {
		errs = append(errs, fmt.Errorf("segment.buffer_threshold_ms %d exceeds segment.buffer_size_ms %d", cfg.Segment.BufferThresholdMs, cfg.Segment.BufferSizeMs))
	}
	if cfg.Segment.MinAudioLengthMs < 0 {
		errs = append(errs, fmt.Errorf("segment.min_audio_length_ms %d must not be negative", cfg.Segment.MinAudioLengthMs))
	}
	if cfg.Segment.MinAudioLengthMs > cfg.Segment.BufferSizeMs {
		errs = append(errs, fmt.Errorf("segment.min_audio_length_ms %d exceeds segment.buffer_size_ms %d", cfg.Segment.MinAudioLengthMs, cfg.Segment.BufferSizeMs))
	}

	// Fingerprint
	if cfg.Fingerprint.Precision > maxPrecision {
		errs = append(errs, fmt.Errorf("fingerprint.precision %d is out of range; maximum is %d", cfg.Fingerprint.Precision, maxPrecision))
	}

	// Cache
	if cfg.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity %d must not be negative", cfg.Cache.Capacity))
	}
	if cfg.Cache.Remote.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.remote.ttl %s must not be negative", cfg.Cache.Remote.TTL))
	}

	// Metrics
	if cfg.Metrics.AccuracyWindow < 0 {
		errs = append(errs, fmt.Errorf("metrics.accuracy_window %d must not be negative", cfg.Metrics.AccuracyWindow))
	}
	if cfg.Metrics.LatencyWindow < 0 {
		errs = append(errs, fmt.Errorf("metrics.latency_window %d must not be negative", cfg.Metrics.LatencyWindow))
	}
	if th := cfg.Metrics.SuccessThreshold; th != nil && (*th < 0 || *th >= 1) {
		errs = append(errs, fmt.Errorf("metrics.success_threshold %.2f is out of range [0, 1)", *th))
	}

	// Recognizer
	errs = append(errs, validateRecognizer("recognizer", cfg.Recognizer)...)

	// Resilience
	for i, fb := range cfg.Resilience.Fallbacks {
		errs = append(errs, validateRecognizer(fmt.Sprintf("resilience.fallbacks[%d]", i), fb)...)
	}
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	return errors.Join(errs...)
}

// validateRecognizer checks one recognizer entry; path prefixes the field
// names in error messages.
func validateRecognizer(path string, rc RecognizerConfig) []error {
	var errs []error
	if rc.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", path, rc.Timeout))
	}
	validateRecognizerName(rc.Name)
	if rc.Name == "openai" && rc.APIKey == "" && rc.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.api_key is required for the openai recognizer unless base_url is set", path))
	}
	return errs
}

// validateRecognizerName logs a warning if name is non-empty and not one of
// [ValidRecognizerNames].
func validateRecognizerName(name string) {
	if name == "" || slices.Contains(ValidRecognizerNames, name) {
		return
	}
	slog.Warn("unknown recognizer name; may be a typo or a third-party recognizer",
		"name", name,
		"known", ValidRecognizerNames,
	)
}
