package slidecast

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ClipConfig describes a clip source's output.
type ClipConfig struct {
	Width       int     // Frame width in pixels
	Height      int     // Frame height in pixels
	FPS         int     // Frames per second
	DurationSec float64 // Native clip length (0 = unknown)
	HasAudio    bool    // Whether ReadSamples yields audio
}

// ClipSource produces raw video frames (and optionally S16 PCM audio) for
// one video slide. Sources loop implicitly: when the underlying clip ends
// they wrap to the beginning, so the render window trims or extends the
// clip without the caller tracking its native length.
type ClipSource interface {
	io.Closer

	// Start (re)starts decoding from time zero.
	Start(ctx context.Context) error

	// Stop pauses decoding; Start resumes from time zero.
	Stop() error

	// ReadFrame reads the next frame in presentation order.
	ReadFrame(ctx context.Context) (*image.NRGBA, error)

	// ReadSamples reads the next n samples per channel of interleaved
	// S16LE 48kHz stereo PCM. Sources without audio return silence.
	ReadSamples(ctx context.Context, n int) ([]byte, error)

	// Config returns the clip configuration.
	Config() ClipConfig
}

// --- In-memory clip ---

// FrameClip is a ClipSource backed by in-memory frames and PCM. Useful for
// injected content and tests.
type FrameClip struct {
	frames []*image.NRGBA
	pcm    []byte // interleaved S16LE 48kHz stereo, may be nil
	config ClipConfig

	mu       sync.Mutex
	framePos int
	pcmPos   int
	running  bool
}

// NewFrameClip builds a clip from pre-rendered frames at the given FPS.
// pcm may be nil for a silent clip.
func NewFrameClip(frames []*image.NRGBA, fps int, pcm []byte) (*FrameClip, error) {
	if len(frames) == 0 {
		return nil, errors.New("frame clip needs at least one frame")
	}
	if fps <= 0 {
		fps = 30
	}
	b := frames[0].Bounds()
	return &FrameClip{
		frames: frames,
		pcm:    pcm,
		config: ClipConfig{
			Width:       b.Dx(),
			Height:      b.Dy(),
			FPS:         fps,
			DurationSec: float64(len(frames)) / float64(fps),
			HasAudio:    len(pcm) > 0,
		},
	}, nil
}

func (c *FrameClip) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framePos = 0
	c.pcmPos = 0
	c.running = true
	return nil
}

func (c *FrameClip) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *FrameClip) ReadFrame(ctx context.Context) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := c.frames[c.framePos%len(c.frames)]
	c.framePos++
	return frame, nil
}

func (c *FrameClip) ReadSamples(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, n*4) // 2 channels * 2 bytes
	if len(c.pcm) == 0 {
		return out, nil
	}
	for i := 0; i < len(out); i++ {
		out[i] = c.pcm[c.pcmPos%len(c.pcm)]
		c.pcmPos++
	}
	return out, nil
}

func (c *FrameClip) Config() ClipConfig { return c.config }

func (c *FrameClip) Close() error { return nil }

// --- FFmpeg-decoded clip ---

// ffmpegClip decodes a clip file through ffmpeg rawvideo/s16le pipes,
// scaled and cover-cropped to the output canvas at decode time.
type ffmpegClip struct {
	path       string
	ffmpegPath string
	config     ClipConfig
	outW, outH int
	fps        int

	mu       sync.Mutex
	videoCmd *exec.Cmd
	videoOut io.ReadCloser
	videoBuf *bufio.Reader
	audioCmd *exec.Cmd
	audioOut io.ReadCloser
	audioBuf *bufio.Reader
	last     *image.NRGBA
	closed   bool
}

// openFFmpegClip probes a clip and prepares a decoder targeting the given
// canvas size and frame rate. Decoding itself starts lazily on Start.
func openFFmpegClip(ctx context.Context, path, ffmpegPath string, outW, outH, fps int) (*ffmpegClip, error) {
	cfg, err := probeClip(ctx, path)
	if err != nil {
		return nil, err
	}
	cfg.Width = outW
	cfg.Height = outH
	cfg.FPS = fps
	return &ffmpegClip{
		path:       path,
		ffmpegPath: ffmpegPath,
		config:     cfg,
		outW:       outW,
		outH:       outH,
		fps:        fps,
	}, nil
}

// probeClip reads stream metadata with ffprobe.
func probeClip(ctx context.Context, path string) (ClipConfig, error) {
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return ClipConfig{}, fmt.Errorf("clip probing needs ffprobe: %w", err)
	}

	out, err := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path).Output()
	if err != nil {
		return ClipConfig{}, fmt.Errorf("probe %s: %w", path, err)
	}

	cfg := ClipConfig{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(strings.Trim(line, ","))
		switch {
		case line == "audio":
			cfg.HasAudio = true
		case line == "video":
		default:
			if d, err := strconv.ParseFloat(line, 64); err == nil {
				cfg.DurationSec = d
			}
		}
	}
	return cfg, nil
}

func (c *ffmpegClip) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("clip closed")
	}
	c.stopLocked()
	if err := c.startVideoLocked(); err != nil {
		return err
	}
	if c.config.HasAudio {
		if err := c.startAudioLocked(); err != nil {
			c.stopLocked()
			return err
		}
	}
	return nil
}

func (c *ffmpegClip) startVideoLocked() error {
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d",
		c.outW, c.outH, c.outW, c.outH, c.fps)
	cmd := exec.Command(c.ffmpegPath,
		"-v", "error",
		"-i", c.path,
		"-an",
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start clip decoder: %w", err)
	}
	c.videoCmd = cmd
	c.videoOut = out
	c.videoBuf = bufio.NewReaderSize(out, 1<<20)
	return nil
}

func (c *ffmpegClip) startAudioLocked() error {
	cmd := exec.Command(c.ffmpegPath,
		"-v", "error",
		"-i", c.path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start clip audio decoder: %w", err)
	}
	c.audioCmd = cmd
	c.audioOut = out
	c.audioBuf = bufio.NewReaderSize(out, 1<<18)
	return nil
}

func (c *ffmpegClip) ReadFrame(ctx context.Context) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoBuf == nil {
		return nil, errors.New("clip not started")
	}

	img := image.NewNRGBA(image.Rect(0, 0, c.outW, c.outH))
	if _, err := io.ReadFull(c.videoBuf, img.Pix); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		// Wrap to the beginning; the render window trims/loops the clip.
		c.stopVideoLocked()
		if err := c.startVideoLocked(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(c.videoBuf, img.Pix); err != nil {
			if c.last != nil {
				return c.last, nil
			}
			return nil, fmt.Errorf("clip decode: %w", err)
		}
	}
	c.last = img
	return img, nil
}

func (c *ffmpegClip) ReadSamples(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, n*4)
	if c.audioBuf == nil {
		return out, nil // silence
	}
	if _, err := io.ReadFull(c.audioBuf, out); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		c.stopAudioLocked()
		if err := c.startAudioLocked(); err != nil {
			return out, nil
		}
		// Partial reads at the wrap point leave trailing silence.
		io.ReadFull(c.audioBuf, out)
	}
	return out, nil
}

func (c *ffmpegClip) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *ffmpegClip) stopLocked() {
	c.stopVideoLocked()
	c.stopAudioLocked()
}

func (c *ffmpegClip) stopVideoLocked() {
	if c.videoCmd != nil {
		c.videoOut.Close()
		c.videoCmd.Process.Kill()
		c.videoCmd.Wait()
		c.videoCmd = nil
		c.videoBuf = nil
	}
}

func (c *ffmpegClip) stopAudioLocked() {
	if c.audioCmd != nil {
		c.audioOut.Close()
		c.audioCmd.Process.Kill()
		c.audioCmd.Wait()
		c.audioCmd = nil
		c.audioBuf = nil
	}
}

func (c *ffmpegClip) Config() ClipConfig { return c.config }

func (c *ffmpegClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.closed = true
	return nil
}
