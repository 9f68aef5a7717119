// Command speechkit replays WAV recordings through the speech pipeline and
// prints a JSON report per file: the transcript, recognition accuracy against
// an optional reference transcript, per-stage latency and cache statistics.
//
// Usage:
//
//	speechkit [-config speechkit.yaml] [-chunk 100ms] [-serve] file.wav...
//
// A file "talk.wav" is scored against "talk.txt" when that file exists.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speechkit/internal/config"
	"github.com/MrWong99/speechkit/internal/diag"
	"github.com/MrWong99/speechkit/internal/observe"
	"github.com/MrWong99/speechkit/internal/pipeline"
	"github.com/MrWong99/speechkit/internal/resilience"
	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/audio/wav"
	"github.com/MrWong99/speechkit/pkg/perf"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/recognizer/openai"
	"github.com/MrWong99/speechkit/pkg/recognizer/whisper"
	"github.com/MrWong99/speechkit/pkg/resultcache"
	"github.com/MrWong99/speechkit/pkg/resultcache/redisstore"
	"github.com/MrWong99/speechkit/pkg/types"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// defaultWhisperURL is used when the whisper recognizer has no base_url.
const defaultWhisperURL = "http://localhost:8080"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	chunkSize := flag.Duration("chunk", 100*time.Millisecond, "audio replayed per capture chunk")
	jobs := flag.Int("jobs", runtime.NumCPU(), "files processed in parallel")
	segments := flag.Bool("segments", false, "include per-segment results in the output")
	serve := flag.Bool("serve", false, "keep the diagnostics server running until interrupted")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: speechkit [flags] file.wav...")
		flag.PrintDefaults()
		return 2
	}
	if *chunkSize <= 0 {
		fmt.Fprintln(os.Stderr, "speechkit: -chunk must be positive")
		return 2
	}

	// ── Config ────────────────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "speechkit: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "speechkit: %v\n", err)
			}
			return 1
		}
		cfg = loaded
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("speechkit starting",
		"version", version,
		"recognizer", cfg.Recognizer.Name,
		"format", cfg.Format().String(),
		"files", len(files),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Recognizer ────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinRecognizers(reg)

	rec, err := buildRecognizer(reg, cfg)
	if err != nil {
		slog.Error("failed to create recognizer", "err", err)
		return 1
	}
	checkers := []diag.Checker{{Name: "recognizer", Check: rec.Ready}}

	// ── Remote cache ──────────────────────────────────────────────────────────
	var remote *resultcache.Guard
	if addr := cfg.Cache.Remote.Addr; addr != "" {
		rdb, err := redisstore.Dial(ctx, addr)
		if err != nil {
			// The remote tier is an optimisation; run with local caches only.
			slog.Warn("remote cache unavailable, continuing without it", "err", err)
		} else {
			defer rdb.Close()
			remote = resultcache.NewGuard(redisstore.New(rdb, cfg.Cache.Remote.KeyPrefix, cfg.Cache.Remote.TTL))
			checkers = append(checkers, diag.Checker{
				Name:  "redis",
				Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			})
			slog.Info("remote cache connected", "addr", addr)
		}
	}

	// ── Observability ─────────────────────────────────────────────────────────
	board := diag.NewBoard()
	var metrics *observe.Metrics
	if addr := cfg.Server.MetricsAddr; addr != "" {
		fallbacks := make([]string, 0, len(cfg.Resilience.Fallbacks))
		for _, fb := range cfg.Resilience.Fallbacks {
			fallbacks = append(fallbacks, fb.Name)
		}
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: version,
			Recognizer:     cfg.Recognizer.Name,
			Fallbacks:      fallbacks,
			Format:         cfg.Format(),
		})
		if err != nil {
			slog.Error("failed to init telemetry", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown", "err", err)
			}
		}()
		metrics = observe.DefaultMetrics()

		srv := &http.Server{
			Addr:              addr,
			Handler:           diag.New(board, checkers...).Handler(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("diagnostics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("diagnostics server failed", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ── Process ───────────────────────────────────────────────────────────────
	p := &processor{
		session: pipeline.Config{
			Segment:           cfg.SegmentBuffer(),
			Precision:         cfg.Fingerprint.Precision,
			Monitor:           cfg.Monitor(),
			RecognizerName:    cfg.Recognizer.Name,
			RecognizerTimeout: cfg.Recognizer.Timeout,
		},
		rec:      rec,
		remote:   remote,
		metrics:  metrics,
		board:    board,
		chunk:    *chunkSize,
		segments: *segments,
	}

	reports, err := p.processAll(ctx, files, *jobs)
	if err != nil {
		slog.Error("processing failed", "err", err)
		return 1
	}

	// ── Output ────────────────────────────────────────────────────────────────
	if err := writeReports(os.Stdout, reports); err != nil {
		slog.Error("failed to write reports", "err", err)
		return 1
	}

	if *serve && cfg.Server.MetricsAddr != "" {
		slog.Info("processing done, serving diagnostics until interrupted")
		<-ctx.Done()
	}
	slog.Info("goodbye")
	return 0
}

// ── Recognizers ──────────────────────────────────────────────────────────────

// registerBuiltinRecognizers wires every recognizer shipped with speechkit
// into reg.
func registerBuiltinRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("whisper", func(rc config.RecognizerConfig) (recognizer.Recognizer, error) {
		url := rc.BaseURL
		if url == "" {
			url = defaultWhisperURL
		}
		opts := []whisper.Option{whisper.WithTimeout(rc.Timeout)}
		if rc.Model != "" {
			opts = append(opts, whisper.WithModel(rc.Model))
		}
		if rc.Language != "" {
			opts = append(opts, whisper.WithLanguage(rc.Language))
		}
		return whisper.New(url, opts...)
	})

	reg.RegisterRecognizer("openai", func(rc config.RecognizerConfig) (recognizer.Recognizer, error) {
		opts := []openai.Option{openai.WithTimeout(rc.Timeout)}
		if rc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(rc.BaseURL))
		}
		if rc.Language != "" {
			opts = append(opts, openai.WithLanguage(rc.Language))
		}
		return openai.New(rc.APIKey, rc.Model, opts...)
	})

	// "mock" answers every segment with its length, which is enough to
	// exercise segmentation, caching and the reports without a model.
	reg.RegisterRecognizer("mock", func(rc config.RecognizerConfig) (recognizer.Recognizer, error) {
		return recognizer.Func(func(_ context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
			if len(pcm) == 0 {
				return types.Transcript{}, recognizer.ErrEmptyAudio
			}
			d := format.Duration(len(pcm))
			return types.Transcript{
				Text:       fmt.Sprintf("[%s of audio]", d.Round(time.Millisecond)),
				Confidence: 1,
				Language:   rc.Language,
				Duration:   d,
			}, nil
		}), nil
	})
}

// buildRecognizer creates the primary recognizer and every configured
// fallback, each behind its own circuit breaker.
func buildRecognizer(reg *config.Registry, cfg *config.Config) (*resilience.Failover, error) {
	rcs := append([]config.RecognizerConfig{cfg.Recognizer}, cfg.Resilience.Fallbacks...)
	backends := make([]resilience.Backend, 0, len(rcs))
	for i, rc := range rcs {
		r, err := reg.CreateRecognizer(rc)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", rc.Name, err)
		}
		name := rc.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", rc.Name, i)
		}
		backends = append(backends, resilience.Backend{Name: name, Recognizer: r})
	}
	return resilience.NewFailover(resilience.BreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
		HalfOpenMax:  cfg.Resilience.HalfOpenMax,
	}, backends...)
}

// ── Processing ───────────────────────────────────────────────────────────────

// fileReport is the JSON document printed for each input file.
type fileReport struct {
	File     string                  `json:"file"`
	Source   string                  `json:"source_format"`
	Score    *perf.RecognitionMetric `json:"score,omitempty"`
	Report   pipeline.Report         `json:"report"`
	Segments []pipeline.Result       `json:"segments,omitempty"`
}

// processor holds what every per-file session shares.
type processor struct {
	session  pipeline.Config
	rec      recognizer.Recognizer
	remote   *resultcache.Guard
	metrics  *observe.Metrics
	board    *diag.Board
	chunk    time.Duration
	segments bool
}

// processAll runs one session per file, at most jobs at a time. Reports are
// returned in input order.
func (p *processor) processAll(ctx context.Context, files []string, jobs int) ([]fileReport, error) {
	reports := make([]fileReport, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range files {
		g.Go(func() error {
			r, err := p.processFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// processFile decodes path, replays it in capture-sized chunks and flushes
// the tail. Recognition failures of single segments are logged and counted
// in the report; only decode errors and cancellation abort the file.
func (p *processor) processFile(ctx context.Context, path string) (fileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileReport{}, err
	}
	pcm, src, err := wav.Decode(f)
	_ = f.Close()
	if err != nil {
		return fileReport{}, err
	}

	fr := fileReport{File: path, Source: src.String()}
	sess, err := pipeline.NewSession(pipeline.SessionConfig{
		Config:     p.session,
		Recognizer: p.rec,
		Remote:     p.remote,
		Metrics:    p.metrics,
	})
	if err != nil {
		return fileReport{}, err
	}
	defer sess.Close()

	log := slog.With("file", path, "session_id", sess.ID())
	log.Info("processing", "format", src.String(), "duration", src.Duration(len(pcm)))

	conv := &audio.Converter{Target: sess.Format()}
	for _, c := range splitChunks(pcm, src, p.chunk) {
		if err := ctx.Err(); err != nil {
			return fileReport{}, err
		}
		results, err := sess.Push(ctx, conv.Convert(c, src))
		if p.segments {
			fr.Segments = append(fr.Segments, results...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return fileReport{}, ctx.Err()
			}
			log.Warn("segment failed", "err", err)
		}
	}
	res, ok, err := sess.Flush(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return fileReport{}, ctx.Err()
	case err != nil:
		log.Warn("final segment failed", "err", err)
	case ok && p.segments:
		fr.Segments = append(fr.Segments, res)
	}

	ref, err := readReference(path)
	switch {
	case err == nil:
		m := sess.Score(ref)
		fr.Score = &m
	case !errors.Is(err, os.ErrNotExist):
		log.Warn("reference transcript unreadable", "err", err)
	}

	fr.Report = sess.Report()
	p.board.Put(path, fr.Report)
	log.Info("processed", "segments", fr.Report.Segments, "errors", fr.Report.Errors)
	return fr, nil
}

// splitChunks cuts pcm into frame-aligned chunks of about d each, stamped
// with their offset into the recording. The last chunk may be shorter.
func splitChunks(pcm []byte, f audio.Format, d time.Duration) []audio.Chunk {
	frame := f.BitDepth / 8 * f.Channels
	if frame <= 0 || len(pcm) == 0 {
		return nil
	}
	size := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	size -= size % frame
	if size <= 0 {
		size = frame
	}

	chunks := make([]audio.Chunk, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		chunks = append(chunks, audio.Chunk{
			Data:      pcm[off:end],
			Timestamp: f.Duration(off),
		})
	}
	return chunks
}

// readReference returns the trimmed contents of the .txt file next to a
// recording.
func readReference(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeReports(w io.Writer, reports []fileReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
