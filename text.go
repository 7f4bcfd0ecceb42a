package slidecast

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// textEntranceSec is the entrance animation window at the start of each
// slide. After it elapses the overlay is fully settled.
const textEntranceSec = 0.5

// maxTextWidthFrac caps line width relative to the canvas.
const maxTextWidthFrac = 0.85

var fontData = map[TextFont][]byte{
	TextFontSystem:      goregular.TTF,
	TextFontBold:        gobold.TTF,
	TextFontMono:        gomono.TTF,
	TextFontSerif:       goitalic.TTF,
	TextFontHandwritten: gosmallcaps.TTF,
}

var (
	fontMu     sync.Mutex
	parsedFont = map[TextFont]*opentype.Font{}
	faceCache  = map[faceKey]font.Face{}
)

type faceKey struct {
	font TextFont
	size int
}

func overlayFace(f TextFont, sizePx int) (font.Face, error) {
	fontMu.Lock()
	defer fontMu.Unlock()

	key := faceKey{f, sizePx}
	if face, ok := faceCache[key]; ok {
		return face, nil
	}

	parsed, ok := parsedFont[f]
	if !ok {
		data, have := fontData[f]
		if !have {
			data = goregular.TTF
		}
		var err error
		parsed, err = opentype.Parse(data)
		if err != nil {
			return nil, err
		}
		parsedFont[f] = parsed
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(sizePx),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	faceCache[key] = face
	return face, nil
}

// fontSizePx maps the relative size onto the canvas width.
func fontSizePx(size TextSize, canvasW int) int {
	switch size {
	case TextSizeSmall:
		return canvasW / 24
	case TextSizeLarge:
		return canvasW / 12
	default:
		return canvasW / 18
	}
}

// parseHexColor reads #rrggbb or #rrggbbaa, defaulting to opaque white.
func parseHexColor(s string) color.NRGBA {
	c := color.NRGBA{255, 255, 255, 255}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return c
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return c
	}
	if len(s) == 8 {
		return color.NRGBA{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
	return color.NRGBA{byte(v >> 16), byte(v >> 8), byte(v), 255}
}

// wrapText splits content into lines no wider than maxWidth.
func wrapText(face font.Face, content string, maxWidth fixed.Int26_6) []string {
	var lines []string
	for _, paragraph := range strings.Split(content, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if font.MeasureString(face, candidate) > maxWidth {
				lines = append(lines, line)
				line = w
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

// drawTextOverlay renders the overlay onto the canvas. elapsed is the time
// since the slide became active; alpha scales the whole overlay, letting
// transitions fade text together with the picture.
func drawTextOverlay(dst *image.NRGBA, ov *TextOverlay, elapsed float64, alpha float64) {
	if ov == nil || strings.TrimSpace(ov.Content) == "" || alpha <= 0 {
		return
	}

	bounds := dst.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	p := clamp01(elapsed / textEntranceSec)
	content := ov.Content
	sizePx := fontSizePx(ov.Size, w)
	var offY float64

	switch ov.Animation {
	case TextAnimationFadeIn:
		alpha *= easeOutQuad(p)
	case TextAnimationSlideUp:
		alpha *= p
		offY = (1 - easeOutQuad(p)) * float64(h) * 0.06
	case TextAnimationSlideDown:
		alpha *= p
		offY = -(1 - easeOutQuad(p)) * float64(h) * 0.06
	case TextAnimationZoomIn:
		alpha *= p
		scaled := 0.6 + 0.4*easeOutQuad(p)
		sizePx = int(float64(sizePx) * scaled)
		if sizePx < 4 {
			sizePx = 4
		}
	case TextAnimationTypewriter:
		runes := []rune(content)
		n := int(float64(len(runes)) * p)
		if n > len(runes) {
			n = len(runes)
		}
		content = string(runes[:n])
		if content == "" {
			return
		}
	case TextAnimationBounce:
		alpha *= p
		offY = (1 - easeOutBounce(p)) * float64(h) * 0.06
	}
	if alpha <= 0 {
		return
	}

	face, err := overlayFace(ov.Font, sizePx)
	if err != nil {
		return
	}

	maxWidth := fixed.I(int(float64(w) * maxTextWidthFrac))
	lines := wrapText(face, content, maxWidth)

	metrics := face.Metrics()
	lineH := metrics.Height.Ceil()
	blockH := lineH * len(lines)

	var blockTop int
	margin := h / 12
	switch ov.Position {
	case TextPositionTop:
		blockTop = margin
	case TextPositionCenter:
		blockTop = (h - blockH) / 2
	default:
		blockTop = h - margin - blockH
	}
	blockTop += int(offY)

	// Widest line sizes the backing panel.
	var blockW int
	for _, line := range lines {
		if lw := font.MeasureString(face, line).Ceil(); lw > blockW {
			blockW = lw
		}
	}

	pad := sizePx / 2
	panel := image.Rect((w-blockW)/2-pad, blockTop-pad/2, (w+blockW)/2+pad, blockTop+blockH+pad/2)
	fillRoundedRect(dst, panel.Intersect(bounds), sizePx/3, color.NRGBA{0, 0, 0, byte(110 * alpha)})

	textColor := parseHexColor(ov.Color)
	textColor.A = byte(float64(textColor.A) * alpha)
	shadow := color.NRGBA{0, 0, 0, byte(float64(textColor.A) * 0.7)}

	drawer := &font.Drawer{Dst: dst, Face: face}
	y := blockTop + metrics.Ascent.Ceil()
	for _, line := range lines {
		lw := font.MeasureString(face, line).Ceil()
		x := (w - lw) / 2
		if ov.Shadow {
			drawer.Src = image.NewUniform(shadow)
			drawer.Dot = fixed.P(x+2, y+2)
			drawer.DrawString(line)
		}
		drawer.Src = image.NewUniform(textColor)
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
		y += lineH
	}
}

// fillRoundedRect paints a translucent rounded rectangle over dst.
func fillRoundedRect(dst *image.NRGBA, r image.Rectangle, radius int, c color.NRGBA) {
	if r.Empty() || c.A == 0 {
		return
	}
	if radius*2 > r.Dx() {
		radius = r.Dx() / 2
	}
	if radius*2 > r.Dy() {
		radius = r.Dy() / 2
	}
	src := image.NewUniform(c)
	r2 := radius * radius

	for y := r.Min.Y; y < r.Max.Y; y++ {
		x0, x1 := r.Min.X, r.Max.X
		dy := 0
		if y < r.Min.Y+radius {
			dy = r.Min.Y + radius - y
		} else if y >= r.Max.Y-radius {
			dy = y - (r.Max.Y - radius - 1)
		}
		if dy > 0 {
			// Shrink the span inside the corner arcs.
			dx := radius
			for dx > 0 && dx*dx+dy*dy > r2 {
				dx--
			}
			inset := radius - dx
			x0 += inset
			x1 -= inset
		}
		if x0 >= x1 {
			continue
		}
		row := image.Rect(x0, y, x1, y+1)
		draw.Draw(dst, row, src, image.Point{}, draw.Over)
	}
}
