package service

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Transcoder abstracts the external transcoder binary so the worker can be
// tested without invoking a real process.
type Transcoder interface {
	ProbeDuration(ctx context.Context, inputPath string) (time.Duration, error)
	HasSubtitleStream(ctx context.Context, inputPath string) bool
	Transcode(ctx context.Context, inputPath, outputPath string, duration time.Duration, onProgress func(percent int)) error
	ExtractSubtitle(ctx context.Context, inputPath, outputPath string) error
}

// FFmpegTranscoder drives ffmpeg/ffprobe and normalizes sources into an
// H.264/AAC MP4 delivery format.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpegTranscoder() *FFmpegTranscoder {
	return &FFmpegTranscoder{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

// ProbeDuration reads the container duration. Callers treat an error as
// "duration unknown" and skip progress reporting.
func (t *FFmpegTranscoder) ProbeDuration(ctx context.Context, inputPath string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nk=1:nw=1",
		inputPath,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("probe duration of %q: %w", inputPath, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// HasSubtitleStream reports whether the source carries at least one subtitle
// stream. Probe failures degrade to false; subtitle extraction is
// best-effort throughout.
func (t *FFmpegTranscoder) HasSubtitleStream(ctx context.Context, inputPath string) bool {
	out, err := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-select_streams", "s:0",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		inputPath,
	).Output()
	if err != nil {
		slog.Warn("ffprobe subtitle check failed, skipping subtitle extraction", "err", err)
		return false
	}
	return len(strings.TrimSpace(string(out))) > 0
}

// Transcode runs ffmpeg with machine-readable progress on stdout, invoking
// onProgress with a 0-99 percentage whenever it changes. No progress is
// reported when duration is zero.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string, duration time.Duration, onProgress func(percent int)) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-threads", "0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-strict", "experimental",
		"-y",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg progress pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// The scanner blocks until ffmpeg emits the next progress line; this
	// reader loop is the only suspension point while the job transcodes.
	scanner := bufio.NewScanner(stdout)
	lastPercent := -1
	for scanner.Scan() {
		percent, ok := progressPercent(scanner.Text(), duration)
		if !ok || percent == lastPercent {
			continue
		}
		lastPercent = percent
		if onProgress != nil {
			onProgress(percent)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("ffmpeg progress stream read failed", "err", err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg transcode of %q: %w", inputPath, err)
	}
	return nil
}

// progressPercent extracts a 0-99 completion percentage from one line of
// ffmpeg -progress output. The out_time_ms field is in microseconds despite
// its name.
func progressPercent(line string, total time.Duration) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	value, found := strings.CutPrefix(line, "out_time_ms=")
	if !found {
		return 0, false
	}
	micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || micros < 0 {
		return 0, false
	}
	elapsed := time.Duration(micros) * time.Microsecond
	percent := int(elapsed * 100 / total)
	if percent > 99 {
		percent = 99
	}
	return percent, true
}

// ExtractSubtitle converts the first subtitle stream to WebVTT.
func (t *FFmpegTranscoder) ExtractSubtitle(ctx context.Context, inputPath, outputPath string) error {
	out, err := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-threads", "1",
		"-map", "0:s:0",
		"-y",
		outputPath,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("extract subtitle from %q: %w (%s)", inputPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}
