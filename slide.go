package slidecast

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
)

// Common validation errors.
var (
	ErrNoSlides     = errors.New("timeline has no slides")
	ErrMissingMedia = errors.New("slide is missing its media")
)

// TextPosition anchors a text overlay vertically.
type TextPosition int

const (
	TextPositionBottom TextPosition = iota
	TextPositionCenter
	TextPositionTop
)

// TextSize selects the overlay font size relative to the frame width.
type TextSize int

const (
	TextSizeMedium TextSize = iota
	TextSizeSmall
	TextSizeLarge
)

// TextAnimation selects the overlay entrance animation.
type TextAnimation int

const (
	TextAnimationNone TextAnimation = iota
	TextAnimationFadeIn
	TextAnimationSlideUp
	TextAnimationSlideDown
	TextAnimationZoomIn
	TextAnimationTypewriter
	TextAnimationBounce
)

// TextFont selects the overlay typeface.
type TextFont int

const (
	TextFontSystem TextFont = iota
	TextFontSerif
	TextFontMono
	TextFontHandwritten
	TextFontBold
)

// TextOverlay describes the text drawn on top of a slide.
type TextOverlay struct {
	Content   string
	Position  TextPosition
	Color     string // #rrggbb or #rrggbbaa, empty = white
	Size      TextSize
	Animation TextAnimation
	Font      TextFont
	Shadow    bool
}

// FilterPreset names a predefined filter combination.
type FilterPreset int

const (
	FilterPresetNone FilterPreset = iota
	FilterPresetWarm
	FilterPresetCool
	FilterPresetVintage
	FilterPresetMono
	FilterPresetVivid
)

// Filters adjusts slide appearance. Multipliers use 1.0 as unity; the zero
// value of a multiplier means "unset" and is treated as unity.
type Filters struct {
	Brightness float64 // 1.0 = unchanged
	Contrast   float64 // 1.0 = unchanged
	Saturation float64 // 1.0 = unchanged
	BlurRadius float64 // 0 = no blur
	Preset     FilterPreset
}

// KenBurns selects the motion applied to still images.
type KenBurns int

const (
	KenBurnsUnset KenBurns = iota
	KenBurnsZoomIn
	KenBurnsZoomOut
	KenBurnsPanLeft
	KenBurnsPanRight
	KenBurnsPanUp
	KenBurnsPanDown
	KenBurnsRandom
)

func (k KenBurns) String() string {
	switch k {
	case KenBurnsZoomIn:
		return "zoom-in"
	case KenBurnsZoomOut:
		return "zoom-out"
	case KenBurnsPanLeft:
		return "pan-left"
	case KenBurnsPanRight:
		return "pan-right"
	case KenBurnsPanUp:
		return "pan-up"
	case KenBurnsPanDown:
		return "pan-down"
	case KenBurnsRandom:
		return "random"
	default:
		return "unset"
	}
}

// kenBurnsCycle is the deterministic assignment order for slides that do
// not request a direction. Indexed by slide position so repeated renders
// of the same timeline move the same way.
var kenBurnsCycle = [...]KenBurns{
	KenBurnsZoomIn,
	KenBurnsZoomOut,
	KenBurnsPanLeft,
	KenBurnsPanRight,
	KenBurnsPanUp,
	KenBurnsPanDown,
}

// EffectiveKenBurns resolves the motion for the slide at the given index.
func (s *Slide) EffectiveKenBurns(index int) KenBurns {
	switch s.KenBurns {
	case KenBurnsUnset:
		return kenBurnsCycle[index%len(kenBurnsCycle)]
	case KenBurnsRandom:
		return kenBurnsCycle[rand.Intn(len(kenBurnsCycle))]
	default:
		return s.KenBurns
	}
}

// Transition selects the blend applied at the boundary with the next slide.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionFade
)

// Media references a slide's visual content. Exactly one field must be set.
type Media struct {
	Image     image.Image // Pre-decoded still image
	ImagePath string      // Still image file on disk
	ClipPath  string      // Video clip file on disk (decoded via ffmpeg)
	Clip      ClipSource  // Injected clip source
}

// set reports how many media references are populated.
func (m *Media) set() int {
	n := 0
	if m.Image != nil {
		n++
	}
	if m.ImagePath != "" {
		n++
	}
	if m.ClipPath != "" {
		n++
	}
	if m.Clip != nil {
		n++
	}
	return n
}

// IsClip reports whether the media is a video clip.
func (m *Media) IsClip() bool {
	return m.ClipPath != "" || m.Clip != nil
}

// Slide is one timed unit of visual content in the output timeline.
type Slide struct {
	Media       Media
	DurationSec float64

	Text    *TextOverlay
	Filters *Filters

	KenBurns KenBurns // Images only

	Transition         Transition
	TransitionDuration float64 // 0 = use the timeline default

	// Video clips only.
	ClipMuted  bool
	ClipVolume float64 // Clamped to [0,1] at mix time
}

// Timeline is the ordered, immutable input to one render call.
type Timeline struct {
	Slides []Slide

	// TransitionDuration is the default boundary blend length in seconds
	// for slides that do not set their own. Zero disables transitions.
	TransitionDuration float64
}

// TotalDuration returns the timeline length in seconds.
func (t *Timeline) TotalDuration() float64 {
	var total float64
	for _, s := range t.Slides {
		total += s.DurationSec
	}
	return total
}

// transitionFor returns the effective outgoing blend length for slide i.
func (t *Timeline) transitionFor(i int) float64 {
	d := t.Slides[i].TransitionDuration
	if d <= 0 {
		d = t.TransitionDuration
	}
	// A blend can never exceed the slide it leaves.
	if d > t.Slides[i].DurationSec {
		d = t.Slides[i].DurationSec
	}
	return d
}

// Validate checks the timeline before any resource is allocated.
func (t *Timeline) Validate() error {
	if len(t.Slides) == 0 {
		return ErrNoSlides
	}
	for i := range t.Slides {
		s := &t.Slides[i]
		if n := s.Media.set(); n == 0 {
			return fmt.Errorf("%w: slide %d", ErrMissingMedia, i+1)
		} else if n > 1 {
			return fmt.Errorf("slide %d: more than one media reference set", i+1)
		}
		if s.DurationSec <= 0 {
			return fmt.Errorf("slide %d: duration must be positive, got %v", i+1, s.DurationSec)
		}
	}
	return nil
}

// ActiveIndexAt returns the slide active at virtual time t (seconds).
// Ties at a boundary resolve to the later slide's start (the earlier slide
// occupies [start, start+duration)), and the final slide absorbs any
// rounding remainder at the end of the timeline.
func (t *Timeline) ActiveIndexAt(sec float64) int {
	var cum float64
	for i, s := range t.Slides {
		cum += s.DurationSec
		if sec < cum {
			return i
		}
	}
	return len(t.Slides) - 1
}

// startOf returns the cumulative start time of slide i in seconds.
func (t *Timeline) startOf(i int) float64 {
	var cum float64
	for j := 0; j < i; j++ {
		cum += t.Slides[j].DurationSec
	}
	return cum
}

// clampVolume clamps a clip volume into [0,1] regardless of input.
func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
