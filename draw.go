package slidecast

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// Ken-Burns motion envelope. Zooms travel between unity and the max zoom;
// pans hold a fixed zoom and slide the window across the pan span.
const (
	kenBurnsMaxZoom = 1.15
	kenBurnsPanZoom = 1.10
	kenBurnsPanSpan = 0.08
)

// applySlideFilters runs a slide's static filter chain over one canvas.
// Stills pay this once before the render loop; clip frames pay it per
// decoded frame.
func applySlideFilters(img *image.NRGBA, f *Filters) *image.NRGBA {
	if f == nil {
		return img
	}

	out := applyPreset(img, f.Preset)
	if p := multiplierPercent(f.Brightness); p != 0 {
		out = imaging.AdjustBrightness(out, p)
	}
	if p := multiplierPercent(f.Contrast); p != 0 {
		out = imaging.AdjustContrast(out, p)
	}
	if p := multiplierPercent(f.Saturation); p != 0 {
		out = imaging.AdjustSaturation(out, p)
	}
	if f.BlurRadius > 0 {
		out = imaging.Blur(out, f.BlurRadius)
	}
	return out
}

// multiplierPercent maps a unity-based multiplier onto the -100..100
// percent scale the adjustment functions take. Zero means unset.
func multiplierPercent(m float64) float64 {
	if m == 0 {
		return 0
	}
	p := (m - 1) * 100
	if p > 100 {
		p = 100
	} else if p < -100 {
		p = -100
	}
	return p
}

func applyPreset(img *image.NRGBA, preset FilterPreset) *image.NRGBA {
	switch preset {
	case FilterPresetWarm:
		out := imaging.AdjustSaturation(img, 12)
		return imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			c.R = clampByte(int32(c.R) + 12)
			c.B = clampByte(int32(c.B) - 10)
			return c
		})
	case FilterPresetCool:
		out := imaging.AdjustSaturation(img, 6)
		return imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			c.R = clampByte(int32(c.R) - 10)
			c.B = clampByte(int32(c.B) + 12)
			return c
		})
	case FilterPresetVintage:
		out := imaging.AdjustSaturation(img, -30)
		out = imaging.AdjustContrast(out, -8)
		return imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			c.R = clampByte(int32(c.R) + 10)
			c.G = clampByte(int32(c.G) + 4)
			c.B = clampByte(int32(c.B) - 12)
			return c
		})
	case FilterPresetMono:
		return imaging.Grayscale(img)
	case FilterPresetVivid:
		out := imaging.AdjustSaturation(img, 35)
		return imaging.AdjustContrast(out, 10)
	default:
		return img
	}
}

// coverWindow returns the largest source window matching the destination
// aspect ratio, centered. This is the zoom=1 Ken-Burns window.
func coverWindow(srcW, srcH, dstW, dstH int) (w, h float64) {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)
	scale := sx
	if sy > sx {
		scale = sy
	}
	return float64(dstW) / scale, float64(dstH) / scale
}

// kenBurnsView computes the source rectangle for a still at the given
// motion and progress (0..1, already eased by the caller).
func kenBurnsView(srcW, srcH, dstW, dstH int, motion KenBurns, progress float64) image.Rectangle {
	visW, visH := coverWindow(srcW, srcH, dstW, dstH)

	zoom := 1.0
	var offX, offY float64
	switch motion {
	case KenBurnsZoomIn:
		zoom = 1 + (kenBurnsMaxZoom-1)*progress
	case KenBurnsZoomOut:
		zoom = kenBurnsMaxZoom - (kenBurnsMaxZoom-1)*progress
	case KenBurnsPanLeft:
		zoom = kenBurnsPanZoom
		offX = kenBurnsPanSpan * visW * (1 - 2*progress)
	case KenBurnsPanRight:
		zoom = kenBurnsPanZoom
		offX = kenBurnsPanSpan * visW * (2*progress - 1)
	case KenBurnsPanUp:
		zoom = kenBurnsPanZoom
		offY = kenBurnsPanSpan * visH * (1 - 2*progress)
	case KenBurnsPanDown:
		zoom = kenBurnsPanZoom
		offY = kenBurnsPanSpan * visH * (2*progress - 1)
	}

	winW := visW / zoom
	winH := visH / zoom
	cx := float64(srcW)/2 + offX
	cy := float64(srcH)/2 + offY

	x0 := cx - winW/2
	y0 := cy - winH/2
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x0+winW > float64(srcW) {
		x0 = float64(srcW) - winW
	}
	if y0+winH > float64(srcH) {
		y0 = float64(srcH) - winH
	}

	return image.Rect(int(x0), int(y0), int(x0+winW), int(y0+winH))
}

// drawCover scales the source view rectangle onto the full canvas.
func drawCover(dst *image.NRGBA, src image.Image, view image.Rectangle) {
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, view, xdraw.Src, nil)
}

// drawFull copies a canvas-sized frame onto the canvas without scaling.
func drawFull(dst, src *image.NRGBA) {
	if dst.Bounds() == src.Bounds() && dst.Stride == src.Stride {
		copy(dst.Pix, src.Pix)
		return
	}
	xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Src)
}

// blendInto mixes the overlay canvas into dst with the given opacity.
// Both canvases must be the same size and fully opaque.
func blendInto(dst, overlay *image.NRGBA, alpha float64) {
	if alpha <= 0 {
		return
	}
	if alpha >= 1 {
		copy(dst.Pix, overlay.Pix)
		return
	}
	a := int32(alpha * 256)
	inv := 256 - a
	for i := range dst.Pix {
		dst.Pix[i] = byte((int32(dst.Pix[i])*inv + int32(overlay.Pix[i])*a) >> 8)
	}
}
