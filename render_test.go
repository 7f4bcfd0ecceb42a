package slidecast

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func renderTestOptions() RenderOptions {
	return RenderOptions{
		Width:        64,
		Height:       64,
		FPS:          30,
		Capabilities: fallbackCaps(),
		Logger:       silentLogger(),
	}
}

func TestGenerateVideoEndToEnd(t *testing.T) {
	clip, err := NewFrameClip([]*image.NRGBA{gradientNRGBA(64, 64)}, 30, constPCMBytes(2000, 48000))
	if err != nil {
		t.Fatal(err)
	}

	tl := &Timeline{
		TransitionDuration: 0.2,
		Slides: []Slide{
			{
				Media:       Media{Image: gradientNRGBA(128, 128)},
				DurationSec: 0.5,
				Transition:  TransitionFade,
				Text:        &TextOverlay{Content: "first", Animation: TextAnimationFadeIn},
			},
			{
				Media:       Media{Clip: clip},
				DurationSec: 0.5,
				ClipVolume:  0.8,
			},
			{
				Media:       Media{Image: gradientNRGBA(96, 96)},
				DurationSec: 0.5,
				Filters:     &Filters{Preset: FilterPresetVintage, Brightness: 1.1},
			},
		},
	}

	var states []RenderState
	lastPct := -1
	opts := renderTestOptions()
	opts.OnProgress = func(state RenderState, percent int, message string) {
		states = append(states, state)
		if percent < lastPct {
			t.Errorf("progress went backwards: %d after %d", percent, lastPct)
		}
		lastPct = percent
	}
	yields := 0
	opts.Yield = func() { yields++ }

	out, err := GenerateVideo(context.Background(), tl, opts)
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Data) == 0 {
		t.Fatal("empty output blob")
	}
	if !bytes.HasPrefix(out.Data, ebmlMagic) {
		t.Fatal("fallback output should be a Matroska stream")
	}
	if out.Container != ContainerMatroska || out.MIMEType != "video/x-matroska" {
		t.Fatalf("container = %v mime = %q", out.Container, out.MIMEType)
	}
	if out.Transcoded {
		t.Fatal("transcode flag set with transcoding disabled")
	}
	if math.Abs(out.Duration-1.5) > 1.0/30 {
		t.Fatalf("duration = %v, want 1.5 within one frame", out.Duration)
	}

	wantFrames := int(math.Ceil(1.5 * 30))

	// The playable duration comes from the container's own block
	// timestamps, not just the reported field.
	times := videoBlockTimesMs(t, out.Data)
	if len(times) != wantFrames {
		t.Errorf("container holds %d video blocks, want %d", len(times), wantFrames)
	}
	playable := float64(times[len(times)-1])/1000 + 1.0/30
	if math.Abs(playable-1.5) > 1.0/30 {
		t.Errorf("playable duration = %v, want 1.5 within one frame", playable)
	}
	if yields != wantFrames {
		t.Errorf("yield ran %d times, want one per frame (%d)", yields, wantFrames)
	}
	if lastPct != 100 {
		t.Errorf("final progress = %d, want 100", lastPct)
	}
	if states[len(states)-1] != StateDone {
		t.Errorf("final state = %v, want done", states[len(states)-1])
	}
	assertStateOrder(t, states)
}

func constPCMBytes(value int16, frames int) []byte {
	out := make([]byte, frames*4)
	for i := 0; i < len(out); i += 2 {
		out[i] = byte(value)
		out[i+1] = byte(value >> 8)
	}
	return out
}

// assertStateOrder checks states only ever move forward.
func assertStateOrder(t *testing.T, states []RenderState) {
	t.Helper()
	prev := StateIdle
	for _, s := range states {
		if s < prev {
			t.Fatalf("state went backwards: %v after %v", s, prev)
		}
		prev = s
	}
}

func TestTransitionBlendsDuringOutgoingWindow(t *testing.T) {
	red := solidNRGBA(64, 64, color.NRGBA{255, 0, 0, 255})
	blue := solidNRGBA(64, 64, color.NRGBA{0, 0, 255, 255})
	tl := &Timeline{
		TransitionDuration: 0.5,
		Slides: []Slide{
			{Media: Media{Image: red}, DurationSec: 2, Transition: TransitionFade},
			{Media: Media{Image: blue}, DurationSec: 2},
		},
	}

	ctx := context.Background()
	media, err := loadTimeline(ctx, tl, fallbackCaps(), 64, 64, 30, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer media.Close()
	composer := newFrameComposer(tl, media, 64, 64)

	// Before the window: the outgoing slide alone.
	out, err := composer.compose(ctx, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	px := out.NRGBAAt(32, 32)
	if px.R < 200 || px.B > 20 {
		t.Fatalf("at t=1.0 expected pure red, got %v", px)
	}

	// Mid-window: both slides contribute to the same frame.
	out, err = composer.compose(ctx, 1.75)
	if err != nil {
		t.Fatal(err)
	}
	px = out.NRGBAAt(32, 32)
	if px.R < 20 || px.B < 20 {
		t.Fatalf("at t=1.75 expected a red/blue blend, got %v", px)
	}

	// The blend deepens towards the boundary.
	late, err := composer.compose(ctx, 1.95)
	if err != nil {
		t.Fatal(err)
	}
	if lpx := late.NRGBAAt(32, 32); lpx.B <= px.B {
		t.Fatalf("blend did not deepen: B %d at t=1.95 vs %d at t=1.75", lpx.B, px.B)
	}

	// Past the boundary: the incoming slide alone, at full strength.
	out, err = composer.compose(ctx, 2.1)
	if err != nil {
		t.Fatal(err)
	}
	px = out.NRGBAAt(32, 32)
	if px.B < 200 || px.R > 20 {
		t.Fatalf("at t=2.1 expected pure blue, got %v", px)
	}
}

func TestTransitionSkipsFinalSlide(t *testing.T) {
	red := solidNRGBA(64, 64, color.NRGBA{255, 0, 0, 255})
	tl := &Timeline{
		TransitionDuration: 0.5,
		Slides: []Slide{
			{Media: Media{Image: red}, DurationSec: 2, Transition: TransitionFade},
		},
	}

	ctx := context.Background()
	media, err := loadTimeline(ctx, tl, fallbackCaps(), 64, 64, 30, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer media.Close()
	composer := newFrameComposer(tl, media, 64, 64)

	out, err := composer.compose(ctx, 1.9)
	if err != nil {
		t.Fatal(err)
	}
	if px := out.NRGBAAt(32, 32); px.R < 200 {
		t.Fatalf("final slide must not fade, got %v", px)
	}
}

func TestGenerateVideoEmptyTimeline(t *testing.T) {
	var gotState RenderState
	opts := renderTestOptions()
	opts.OnProgress = func(state RenderState, percent int, message string) { gotState = state }

	_, err := GenerateVideo(context.Background(), &Timeline{}, opts)
	if !errors.Is(err, ErrNoSlides) {
		t.Fatalf("expected ErrNoSlides, got %v", err)
	}
	if gotState != StateFailed {
		t.Fatalf("last reported state = %v, want failed", gotState)
	}
}

func TestGenerateVideoMissingMediaNamesSlide(t *testing.T) {
	tl := testTimeline(1, 1)
	tl.Slides[1].Media = Media{}

	_, err := GenerateVideo(context.Background(), tl, renderTestOptions())
	if err == nil || !errors.Is(err, ErrMissingMedia) {
		t.Fatalf("expected ErrMissingMedia, got %v", err)
	}
}

func TestGenerateVideoRequestedAudioFailureIsFatal(t *testing.T) {
	tl := testTimeline(0.5)
	opts := renderTestOptions()
	opts.BackgroundAudio = &BackgroundAudio{URL: "/nonexistent/track.mp3"}

	_, err := GenerateVideo(context.Background(), tl, opts)
	if !errors.Is(err, ErrAudioMix) {
		t.Fatalf("expected ErrAudioMix, got %v", err)
	}
}

func TestGenerateVideoCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tl := testTimeline(5)

	opts := renderTestOptions()
	frames := 0
	opts.Yield = func() {
		frames++
		if frames == 3 {
			cancel()
		}
	}

	_, err := GenerateVideo(ctx, tl, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTickSamplesCoversExactlyOneSecond(t *testing.T) {
	for _, fps := range []int{24, 25, 30, 60} {
		total := 0
		for n := 0; n < fps; n++ {
			total += tickSamples(fps, n)
		}
		if total != mixSampleRate {
			t.Errorf("fps %d: %d samples per second, want %d", fps, total, mixSampleRate)
		}
	}
}

func TestRenderStateStrings(t *testing.T) {
	states := []RenderState{
		StateIdle, StateLoadingMedia, StateMixingAudio, StateCapturing,
		StateFinalizing, StateTranscoding, StateDone, StateFailed,
	}
	seen := map[string]bool{}
	for _, s := range states {
		str := s.String()
		if str == "unknown" || seen[str] {
			t.Errorf("state %d has bad name %q", s, str)
		}
		seen[str] = true
	}
}
