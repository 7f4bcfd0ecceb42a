package slidecast

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// RenderState names the phase a render session is in. States only move
// forward; Failed and Done are terminal.
type RenderState int

const (
	StateIdle RenderState = iota
	StateLoadingMedia
	StateMixingAudio
	StateCapturing
	StateFinalizing
	StateTranscoding
	StateDone
	StateFailed
)

func (s RenderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingMedia:
		return "loading-media"
	case StateMixingAudio:
		return "mixing-audio"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateTranscoding:
		return "transcoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressFunc receives render progress. Percent is monotonic across the
// whole session; the frame loop occupies 25 through 92.
type ProgressFunc func(state RenderState, percent int, message string)

// RenderOptions configures one GenerateVideo call. The zero value renders
// a 1080x1920 portrait video at 30 fps with host-detected capabilities.
type RenderOptions struct {
	Width  int // Output width, default 1080
	Height int // Output height, default 1920
	FPS    int // Output frame rate, default 30

	// BackgroundAudio optionally requests a music track under the whole
	// timeline. A requested track that cannot be loaded fails the render
	// with ErrAudioMix.
	BackgroundAudio *BackgroundAudio

	// OnProgress is invoked as the session advances. Optional.
	OnProgress ProgressFunc

	// Capabilities overrides host detection. Nil probes once at session
	// start.
	Capabilities *Capabilities

	// HTTPClient fetches remote background audio. Nil uses the default
	// client.
	HTTPClient *http.Client

	// Logger receives session logs. Nil uses slog.Default.
	Logger *slog.Logger

	// Yield runs between frames so embedders can keep their own loop
	// responsive. Nil means no yielding.
	Yield func()
}

func (o *RenderOptions) applyDefaults() {
	if o.Width <= 0 {
		o.Width = 1080
	}
	if o.Height <= 0 {
		o.Height = 1920
	}
	if o.FPS <= 0 {
		o.FPS = 30
	}
	if o.Capabilities == nil {
		o.Capabilities = DetectCapabilities()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Output is the finished video blob.
type Output struct {
	Data       []byte
	MIMEType   string
	Container  Container
	Duration   float64 // Seconds
	Transcoded bool    // True when the MP4 normalization hop ran
}

// GenerateVideo renders the timeline into a single video container blob:
// media is resolved up front, then a virtual clock walks the timeline
// frame by frame, compositing slides, motion, transitions and text while
// mixing audio into the same capture, and finally the container is
// closed and, when possible, normalized to MP4.
func GenerateVideo(ctx context.Context, timeline *Timeline, opts RenderOptions) (*Output, error) {
	opts.applyDefaults()
	logger := opts.Logger.With("component", "renderer", "session", uuid.NewString())

	report := func(state RenderState, percent int, message string) {
		if opts.OnProgress != nil {
			opts.OnProgress(state, percent, message)
		}
	}

	fail := func(err error) (*Output, error) {
		logger.Error("render failed", "error", err)
		report(StateFailed, 0, err.Error())
		return nil, err
	}

	if err := timeline.Validate(); err != nil {
		return fail(err)
	}

	totalSec := timeline.TotalDuration()
	logger.Info("render started",
		"slides", len(timeline.Slides), "duration_sec", totalSec,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height), "fps", opts.FPS)

	report(StateLoadingMedia, 5, "loading media")
	media, err := loadTimeline(ctx, timeline, opts.Capabilities, opts.Width, opts.Height, opts.FPS, logger)
	if err != nil {
		return fail(err)
	}
	defer media.Close()

	report(StateMixingAudio, 15, "preparing audio")
	mixer, err := newAudioMixer(ctx, opts.BackgroundAudio, media, opts.HTTPClient, logger)
	if err != nil {
		return fail(err)
	}
	defer mixer.Pause()

	capture, err := newCapturePipeline(opts.Capabilities, opts.Width, opts.Height, opts.FPS, logger)
	if err != nil {
		return fail(err)
	}

	report(StateCapturing, 25, "rendering frames")
	if err := runFrameLoop(ctx, timeline, media, mixer, capture, &opts, report); err != nil {
		capture.Abort()
		return fail(err)
	}

	report(StateFinalizing, 95, "finalizing video")
	mixer.Pause()
	result, err := capture.Stop(ctx)
	if err != nil {
		return fail(err)
	}

	out := &Output{
		Data:      result.Data,
		MIMEType:  result.MIMEType,
		Container: result.Container,
		Duration:  totalSec,
	}

	if result.Container.isWebMFamily() && opts.Capabilities.CanTranscode {
		report(StateTranscoding, 97, "converting to mp4")
		data, container, transcoded := transcodeToMP4(ctx, out.Data, out.Container, opts.Capabilities, logger)
		out.Data = data
		out.Container = container
		out.MIMEType = container.MimeType()
		out.Transcoded = transcoded
	}

	stats := capture.Stats()
	logger.Info("render finished",
		"container", out.Container.String(), "bytes", len(out.Data),
		"frames", stats.FramesEncoded, "transcoded", out.Transcoded)
	report(StateDone, 100, "done")
	return out, nil
}

// runFrameLoop walks the virtual clock across the timeline, writing one
// video frame and one audio tick per iteration.
func runFrameLoop(ctx context.Context, timeline *Timeline, media *loadedMedia, mixer *AudioMixer, capture *CapturePipeline, opts *RenderOptions, report ProgressFunc) error {
	fps := opts.FPS
	totalSec := timeline.TotalDuration()
	totalFrames := int(math.Ceil(totalSec * float64(fps)))
	frameDur := int64(time.Second) / int64(fps)

	composer := newFrameComposer(timeline, media, opts.Width, opts.Height)
	frame := NewVideoFrame(opts.Width, opts.Height)
	frame.Duration = frameDur

	active := -1
	lastPct := -1

	for n := 0; n < totalFrames; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sec := float64(n) / float64(fps)
		idx := timeline.ActiveIndexAt(sec)
		if idx != active {
			if err := mixer.SetActiveSlide(ctx, idx, &timeline.Slides[idx]); err != nil {
				return err
			}
			active = idx
		}

		out, err := composer.compose(ctx, sec)
		if err != nil {
			return err
		}

		frame.Timestamp = int64(n) * frameDur
		frame.FromNRGBA(out)
		if err := capture.WriteFrame(frame); err != nil {
			return err
		}

		tick := tickSamples(fps, n)
		samples, err := mixer.MixTick(ctx, tick, frame.Timestamp)
		if err != nil {
			return err
		}
		if err := capture.WriteSamples(samples); err != nil {
			return err
		}

		if pct := 25 + 67*n/totalFrames; pct != lastPct {
			lastPct = pct
			report(StateCapturing, pct, "rendering frames")
		}
		if opts.Yield != nil {
			opts.Yield()
		}
	}
	return nil
}

// frameComposer draws the output picture for any point on the virtual
// clock. It lives apart from the frame loop so slide composition can be
// exercised without a capture pipeline behind it.
type frameComposer struct {
	timeline *Timeline
	media    *loadedMedia
	stills   []*image.NRGBA
	posters  []*image.NRGBA
	motions  []KenBurns

	work     *image.NRGBA
	incoming *image.NRGBA
	out      *image.NRGBA
}

// newFrameComposer resolves each slide's motion and filtered still once
// so a render is internally stable.
func newFrameComposer(timeline *Timeline, media *loadedMedia, width, height int) *frameComposer {
	c := &frameComposer{
		timeline: timeline,
		media:    media,
		stills:   make([]*image.NRGBA, len(timeline.Slides)),
		posters:  make([]*image.NRGBA, len(timeline.Slides)),
		motions:  make([]KenBurns, len(timeline.Slides)),
		work:     image.NewNRGBA(image.Rect(0, 0, width, height)),
		incoming: image.NewNRGBA(image.Rect(0, 0, width, height)),
		out:      image.NewNRGBA(image.Rect(0, 0, width, height)),
	}
	for i := range timeline.Slides {
		s := &timeline.Slides[i]
		c.motions[i] = s.EffectiveKenBurns(i)
		if media.images[i] != nil {
			c.stills[i] = applySlideFilters(media.images[i], s.Filters)
		}
	}
	return c
}

// compose renders the picture for virtual time sec. A fading non-final
// slide spends its last transition window blending the next slide in on
// top of its still-moving picture, text dimming with it; the next slide's
// own clock starts at the boundary. The returned canvas is reused by the
// next call.
func (c *frameComposer) compose(ctx context.Context, sec float64) (*image.NRGBA, error) {
	idx := c.timeline.ActiveIndexAt(sec)
	slide := &c.timeline.Slides[idx]
	elapsed := sec - c.timeline.startOf(idx)

	if err := c.drawAt(ctx, c.work, idx, elapsed, false); err != nil {
		return nil, err
	}

	blend := 0.0
	if slide.Transition == TransitionFade && idx+1 < len(c.timeline.Slides) {
		if d := c.timeline.transitionFor(idx); d > 0 {
			if remaining := slide.DurationSec - elapsed; remaining < d {
				blend = easeOutQuad((d - remaining) / d)
			}
		}
	}

	textAlpha := 1.0
	if blend > 0 {
		if err := c.drawAt(ctx, c.incoming, idx+1, 0, true); err != nil {
			return nil, err
		}
		copy(c.out.Pix, c.work.Pix)
		blendInto(c.out, c.incoming, blend)
		textAlpha = 1 - blend
	} else {
		copy(c.out.Pix, c.work.Pix)
	}

	drawTextOverlay(c.out, slide.Text, elapsed, textAlpha)
	return c.out, nil
}

// drawAt composites one slide at the given elapsed time. poster selects a
// non-advancing first frame for clips, used when the slide is previewed
// under an outgoing fade before it becomes active.
func (c *frameComposer) drawAt(ctx context.Context, dst *image.NRGBA, idx int, elapsed float64, poster bool) error {
	slide := &c.timeline.Slides[idx]

	if clip := c.media.clips[idx]; clip != nil {
		var img *image.NRGBA
		var err error
		if poster {
			img, err = c.clipPoster(ctx, idx)
		} else {
			img, err = clip.ReadFrame(ctx)
		}
		if err != nil {
			return fmt.Errorf("slide %d clip: %w", idx+1, err)
		}
		img = applySlideFilters(img, slide.Filters)
		if img.Bounds().Size() == dst.Bounds().Size() {
			drawFull(dst, img)
		} else {
			// Injected sources may not match the canvas; cover-crop them.
			b := img.Bounds()
			view := kenBurnsView(b.Dx(), b.Dy(), dst.Bounds().Dx(), dst.Bounds().Dy(), KenBurnsUnset, 0)
			drawCover(dst, img, view)
		}
		return nil
	}

	still := c.stills[idx]
	progress := easeInOutCubic(clamp01(elapsed / slide.DurationSec))
	b := still.Bounds()
	view := kenBurnsView(b.Dx(), b.Dy(), dst.Bounds().Dx(), dst.Bounds().Dy(), c.motions[idx], progress)
	drawCover(dst, still, view)
	return nil
}

// clipPoster decodes and caches a clip's first frame. The decoder is
// restarted afterwards so the clip still plays from time zero when its
// slide becomes active.
func (c *frameComposer) clipPoster(ctx context.Context, idx int) (*image.NRGBA, error) {
	if c.posters[idx] != nil {
		return c.posters[idx], nil
	}
	clip := c.media.clips[idx]
	if err := clip.Start(ctx); err != nil {
		return nil, err
	}
	img, err := clip.ReadFrame(ctx)
	clip.Stop()
	if err != nil {
		return nil, err
	}
	c.posters[idx] = imaging.Clone(img)
	return c.posters[idx], nil
}

// tickSamples spreads the sample rate across a second of frames so every
// second mixes exactly mixSampleRate samples regardless of fps.
func tickSamples(fps, n int) int {
	i := n % fps
	return (mixSampleRate*(i+1))/fps - (mixSampleRate*i)/fps
}
