package slidecast

import (
	"bytes"
	"image/color"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.NRGBA
	}{
		{"", color.NRGBA{255, 255, 255, 255}},
		{"#ff0000", color.NRGBA{255, 0, 0, 255}},
		{"00ff00", color.NRGBA{0, 255, 0, 255}},
		{"#11223344", color.NRGBA{0x11, 0x22, 0x33, 0x44}},
		{"#zzz", color.NRGBA{255, 255, 255, 255}},
	}
	for _, c := range cases {
		if got := parseHexColor(c.in); got != c.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestWrapTextRespectsWidth(t *testing.T) {
	face, err := overlayFace(TextFontSystem, 20)
	if err != nil {
		t.Fatal(err)
	}
	maxWidth := fixed.I(200)

	lines := wrapText(face, "the quick brown fox jumps over the lazy dog", maxWidth)
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %d line(s)", len(lines))
	}
	for _, line := range lines {
		if w := font.MeasureString(face, line); w > maxWidth {
			t.Errorf("line %q measures %v, over %v", line, w, maxWidth)
		}
	}
}

func TestWrapTextKeepsParagraphs(t *testing.T) {
	face, err := overlayFace(TextFontSystem, 20)
	if err != nil {
		t.Fatal(err)
	}
	lines := wrapText(face, "one\ntwo", fixed.I(10000))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestOverlayFaceCached(t *testing.T) {
	a, err := overlayFace(TextFontBold, 24)
	if err != nil {
		t.Fatal(err)
	}
	b, err := overlayFace(TextFontBold, 24)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("same font and size should share a face")
	}
}

func TestDrawTextOverlayPaintsPixels(t *testing.T) {
	canvas := solidNRGBA(320, 240, color.NRGBA{0, 0, 0, 255})
	before := make([]byte, len(canvas.Pix))
	copy(before, canvas.Pix)

	ov := &TextOverlay{Content: "hello", Position: TextPositionCenter}
	drawTextOverlay(canvas, ov, 1.0, 1.0)

	if bytes.Equal(before, canvas.Pix) {
		t.Fatal("overlay drew nothing")
	}
}

func TestDrawTextOverlayEmptyContent(t *testing.T) {
	canvas := solidNRGBA(64, 64, color.NRGBA{0, 0, 0, 255})
	before := make([]byte, len(canvas.Pix))
	copy(before, canvas.Pix)

	drawTextOverlay(canvas, &TextOverlay{Content: "   "}, 1.0, 1.0)
	drawTextOverlay(canvas, nil, 1.0, 1.0)

	if !bytes.Equal(before, canvas.Pix) {
		t.Fatal("blank overlay should not touch the canvas")
	}
}

func TestDrawTextOverlayTypewriterStartsEmpty(t *testing.T) {
	canvas := solidNRGBA(320, 240, color.NRGBA{0, 0, 0, 255})
	before := make([]byte, len(canvas.Pix))
	copy(before, canvas.Pix)

	ov := &TextOverlay{Content: "typing", Animation: TextAnimationTypewriter}
	drawTextOverlay(canvas, ov, 0, 1.0)

	if !bytes.Equal(before, canvas.Pix) {
		t.Fatal("typewriter at t=0 should show no characters")
	}
}

func TestDrawTextOverlayZeroAlpha(t *testing.T) {
	canvas := solidNRGBA(320, 240, color.NRGBA{0, 0, 0, 255})
	before := make([]byte, len(canvas.Pix))
	copy(before, canvas.Pix)

	ov := &TextOverlay{Content: "hidden"}
	drawTextOverlay(canvas, ov, 1.0, 0)

	if !bytes.Equal(before, canvas.Pix) {
		t.Fatal("zero alpha should not touch the canvas")
	}
}

func TestFontSizePx(t *testing.T) {
	w := 1080
	small := fontSizePx(TextSizeSmall, w)
	medium := fontSizePx(TextSizeMedium, w)
	large := fontSizePx(TextSizeLarge, w)
	if !(small < medium && medium < large) {
		t.Fatalf("sizes not ordered: %d %d %d", small, medium, large)
	}
}
