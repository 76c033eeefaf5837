package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"

	"media-cache/internal/logging"
)

// extractVideoFrame grabs one frame as PNG via ffmpeg. It seeks to 1s first
// and retries from the start for clips shorter than that.
func extractVideoFrame(ctx context.Context, path string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	attempts := [][]string{
		{"-ss", "00:00:01", "-i", path, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-"},
		{"-i", path, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-"},
	}

	var lastErr error
	for _, args := range attempts {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "ffmpeg", args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
			logging.Debug("FFmpeg attempt failed for %s: %v", path, lastErr)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if stdout.Len() == 0 {
			lastErr = fmt.Errorf("ffmpeg produced no output for %s", path)
			continue
		}

		img, _, err := image.Decode(&stdout)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
		}
		return img, nil
	}
	return nil, lastErr
}
