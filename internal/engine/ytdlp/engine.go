// Package ytdlp drives the yt-dlp command-line extractor.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// DefaultAttemptTimeout bounds one yt-dlp invocation.
const DefaultAttemptTimeout = 2 * time.Minute

// Runner executes a command and returns its output streams.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

// Run executes name with args under ctx.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config controls the engine.
type Config struct {
	Binary         string
	AttemptTimeout time.Duration
}

// Engine implements ingest.Engine and ingest.Updater.
type Engine struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// New builds an Engine. A nil runner executes real processes.
func New(cfg Config, runner Runner, logger *zap.Logger) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}
}

// Extract dumps metadata for sourceURL without downloading media.
func (e *Engine) Extract(ctx context.Context, sourceURL string, strategy ingest.Strategy) (ingest.RawInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	args := Args(sourceURL, strategy)
	e.logger.Debug("running yt-dlp", zap.String("strategy", strategy.Name), zap.Strings("args", args))
	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ingest.RawInfo{}, fmt.Errorf("yt-dlp %s: %w", strategy.Name, ctxErr)
		}
		if isNotInstalled(err) {
			return ingest.RawInfo{}, e.notInstalled(err)
		}
		return ingest.RawInfo{}, fmt.Errorf("yt-dlp %s: %w: %s", strategy.Name, err, summarize(stderr))
	}

	var raw ingest.RawInfo
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return ingest.RawInfo{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	return raw, nil
}

// Update runs the binary's self-update and returns its output.
func (e *Engine) Update(ctx context.Context) (string, error) {
	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Binary, "-U")
	if isNotInstalled(err) {
		return "", e.notInstalled(err)
	}
	if err != nil {
		return "", fmt.Errorf("update yt-dlp: %w: %s", err, summarize(stderr))
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Args maps a strategy onto yt-dlp flags.
func Args(sourceURL string, s ingest.Strategy) []string {
	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--quiet",
		"--no-playlist",
	}
	if s.Format != "" {
		args = append(args, "-f", s.Format)
	}
	if s.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(s.SocketTimeout.Seconds())))
	}
	if s.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(s.Retries))
	}
	if s.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(s.FragmentRetries))
	}
	if s.WriteSubtitles {
		args = append(args, "--write-subs")
	}
	if s.WriteAutoSubs {
		args = append(args, "--write-auto-subs")
	}
	if len(s.SubtitleLangs) > 0 {
		args = append(args, "--sub-langs", strings.Join(s.SubtitleLangs, ","))
	}
	keys := make([]string, 0, len(s.Headers))
	for k := range s.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--add-header", k+":"+s.Headers[k])
	}
	for _, ea := range s.ExtractorArgs {
		args = append(args, "--extractor-args", ea)
	}
	return append(args, "--", sourceURL)
}

// summarize keeps the last non-empty stderr line, which is where yt-dlp reports
// the cause.
func summarize(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no error output"
}

func isNotInstalled(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

func (e *Engine) notInstalled(err error) error {
	return fmt.Errorf("%w: %s: %v", ingest.ErrEngineNotInstalled, e.cfg.Binary, err)
}
