package slidecast

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// transcodeToMP4 converts a WebM-family capture into an H.264/AAC MP4
// with the index up front. The hop is strictly best effort: any failure
// logs and returns the original blob untouched, never an error.
func transcodeToMP4(ctx context.Context, blob []byte, container Container, caps *Capabilities, logger *slog.Logger) ([]byte, Container, bool) {
	if container == ContainerMP4 || !container.isWebMFamily() {
		return blob, container, false
	}
	if !caps.CanTranscode || caps.FFmpegPath == "" {
		return blob, container, false
	}

	dir, err := os.MkdirTemp("", "slidecast-transcode-*")
	if err != nil {
		logger.Warn("transcode skipped", "error", err)
		return blob, container, false
	}
	defer os.RemoveAll(dir)

	ext := ".webm"
	if container == ContainerMatroska {
		ext = ".mkv"
	}
	inPath := filepath.Join(dir, "in"+ext)
	outPath := filepath.Join(dir, "out.mp4")

	if err := os.WriteFile(inPath, blob, 0o600); err != nil {
		logger.Warn("transcode skipped", "error", err)
		return blob, container, false
	}

	cmd := exec.CommandContext(ctx, caps.FFmpegPath,
		"-v", "error",
		"-y",
		"-i", inPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Warn("transcode failed, keeping original container",
			"error", err, "output", string(out))
		return blob, container, false
	}

	mp4Data, err := os.ReadFile(outPath)
	if err != nil || len(mp4Data) == 0 {
		logger.Warn("transcode produced no output", "error", err)
		return blob, container, false
	}

	logger.Debug("transcoded to mp4", "in_bytes", len(blob), "out_bytes", len(mp4Data))
	return mp4Data, ContainerMP4, true
}
