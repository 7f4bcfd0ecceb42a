package slidecast

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
)

// ErrMediaLoad wraps decode failures and load watchdog timeouts.
var ErrMediaLoad = errors.New("media load failed")

// mediaLoadTimeout bounds the wait for any single asset to become
// decode-ready.
const mediaLoadTimeout = 15 * time.Second

// loadedMedia holds decode-ready handles for every slide, indexed like the
// slide list: exactly one of images[i] / clips[i] is populated.
type loadedMedia struct {
	images []*image.NRGBA
	clips  []ClipSource

	// owned lists the clip sources the loader opened itself; injected
	// sources stay under the caller's control.
	owned []ClipSource
}

// Close releases every clip source the loader opened.
func (m *loadedMedia) Close() {
	for _, c := range m.owned {
		c.Close()
	}
	m.owned = nil
}

// loadTimeline resolves each slide's media before rendering starts so the
// render loop never blocks on I/O. Any failure aborts the whole load; the
// error names the offending slide by 1-based position.
func loadTimeline(ctx context.Context, t *Timeline, caps *Capabilities, width, height, fps int, logger *slog.Logger) (*loadedMedia, error) {
	media := &loadedMedia{
		images: make([]*image.NRGBA, len(t.Slides)),
		clips:  make([]ClipSource, len(t.Slides)),
	}

	for i := range t.Slides {
		s := &t.Slides[i]
		loadCtx, cancel := context.WithTimeout(ctx, mediaLoadTimeout)
		err := loadSlide(loadCtx, s, i, media, caps, width, height, fps)
		cancel()
		if err != nil {
			media.Close()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: slide %d timed out", ErrMediaLoad, i+1)
			}
			return nil, fmt.Errorf("%w: slide %d: %v", ErrMediaLoad, i+1, err)
		}
		logger.Debug("slide media ready", "slide", i+1, "clip", s.Media.IsClip())
	}

	return media, nil
}

func loadSlide(ctx context.Context, s *Slide, i int, media *loadedMedia, caps *Capabilities, width, height, fps int) error {
	switch {
	case s.Media.Image != nil:
		media.images[i] = imaging.Clone(s.Media.Image)
		return nil

	case s.Media.ImagePath != "":
		img, err := decodeImageFile(ctx, s.Media.ImagePath)
		if err != nil {
			return err
		}
		media.images[i] = img
		return nil

	case s.Media.Clip != nil:
		media.clips[i] = s.Media.Clip
		return nil

	case s.Media.ClipPath != "":
		if !caps.CanDecodeClips {
			return errors.New("video clips need an ffmpeg runtime")
		}
		clip, err := openFFmpegClip(ctx, s.Media.ClipPath, caps.FFmpegPath, width, height, fps)
		if err != nil {
			return err
		}
		media.clips[i] = clip
		media.owned = append(media.owned, clip)
		return nil

	default:
		return ErrMissingMedia
	}
}

// decodeImageFile decodes an image under the load watchdog. Decoding runs
// in its own goroutine so a pathological file cannot stall the session
// past the deadline.
func decodeImageFile(ctx context.Context, path string) (*image.NRGBA, error) {
	type result struct {
		img *image.NRGBA
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			ch <- result{nil, err}
			return
		}
		ch <- result{imaging.Clone(img), nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.img, r.err
	}
}
