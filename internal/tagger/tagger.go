// Package tagger writes title, artist, album and cover art into extracted files.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/italolelis/ytm_dumper/internal/logctx"
)

// DefaultBinary is looked up in PATH when no ffmpeg path is configured.
const DefaultBinary = "ffmpeg"

// Request describes the tags to write into Path.
type Request struct {
	Path     string
	Title    string
	Artist   string
	Album    string
	CoverURL string
}

// Tagger writes tags into an existing media file in place.
type Tagger interface {
	Tag(ctx context.Context, req Request) error
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpeg tags files by remuxing them with ffmpeg.
type FFmpeg struct {
	binary string
	run    commandRunner
}

// NewFFmpeg builds a tagger that runs binary, or DefaultBinary when empty.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}

	return &FFmpeg{binary: binary, run: defaultCommandRunner}
}

// WithCommandRunner replaces the process runner, for tests.
func (f *FFmpeg) WithCommandRunner(r commandRunner) *FFmpeg {
	if r != nil {
		f.run = r
	}

	return f
}

// Available checks that the binary runs.
func (f *FFmpeg) Available(ctx context.Context) error {
	if err := f.run(ctx, f.binary, "-version"); err != nil {
		return fmt.Errorf("%s is not usable: %w", f.binary, err)
	}

	return nil
}

// Tag remuxes req.Path into a temporary file next to it and replaces the
// original on success. The original is left untouched on failure.
func (f *FFmpeg) Tag(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Path) == "" {
		return errors.New("path is required")
	}

	if req.Title == "" && req.Artist == "" && req.Album == "" && req.CoverURL == "" {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx)

	tmpPath := filepath.Join(filepath.Dir(req.Path), ".tag-"+filepath.Base(req.Path))
	args := buildArgs(req, tmpPath)

	logger.Debug("executing ffmpeg", "path", req.Path, "cover", attachesCover(req))

	if err := f.run(ctx, f.binary, args...); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	if _, err := os.Stat(tmpPath); err != nil {
		return fmt.Errorf("ffmpeg did not produce output file: %w", err)
	}

	if err := os.Rename(tmpPath, req.Path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to replace original file: %w", err)
	}

	return nil
}

// attachesCover reports whether the container of req.Path can carry a cover.
func attachesCover(req Request) bool {
	return req.CoverURL != "" && strings.EqualFold(filepath.Ext(req.Path), ".m4a")
}

func buildArgs(req Request, outputPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", req.Path}

	if attachesCover(req) {
		args = append(args, "-i", req.CoverURL, "-map", "0:a", "-map", "1:v", "-disposition:v", "attached_pic")
	} else {
		args = append(args, "-map", "0")
	}

	args = append(args, "-c", "copy")

	if req.Title != "" {
		args = append(args, "-metadata", "title="+req.Title)
	}

	if req.Artist != "" {
		args = append(args, "-metadata", "artist="+req.Artist)
	}

	if req.Album != "" {
		args = append(args, "-metadata", "album="+req.Album)
	}

	if attachesCover(req) {
		args = append(args, "-metadata:s:v", "title=Album cover")
	}

	return append(args, "-y", outputPath)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}
