// Core frame and sample types used across the compositor.
package slidecast

import (
	"image"
)

// VideoFrame represents a raw I420 video frame produced by the renderer.
type VideoFrame struct {
	Data      [][]byte // Y, U, V plane data
	Stride    []int    // Stride for each plane in bytes
	Width     int      // Frame width in pixels
	Height    int      // Frame height in pixels
	Timestamp int64    // Presentation timestamp in nanoseconds
	Duration  int64    // Frame duration in nanoseconds
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// YCbCr wraps the frame planes in an image.YCbCr without copying.
// The returned image aliases the frame data.
func (f *VideoFrame) YCbCr() *image.YCbCr {
	return &image.YCbCr{
		Y:              f.Data[0],
		Cb:             f.Data[1],
		Cr:             f.Data[2],
		YStride:        f.Stride[0],
		CStride:        f.Stride[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// NewVideoFrame allocates an I420 frame of the given (even) dimensions.
func NewVideoFrame(width, height int) *VideoFrame {
	width = (width + 1) &^ 1
	height = (height + 1) &^ 1
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return &VideoFrame{
		Data:   [][]byte{make([]byte, ySize), make([]byte, uvSize), make([]byte, uvSize)},
		Stride: []int{width, width / 2, width / 2},
		Width:  width,
		Height: height,
	}
}

// FromNRGBA converts an RGBA canvas into the frame's I420 planes using
// BT.601 studio-swing coefficients. The canvas must match the frame size.
func (f *VideoFrame) FromNRGBA(img *image.NRGBA) {
	w, h := f.Width, f.Height
	y, u, v := f.Data[0], f.Data[1], f.Data[2]
	cStride := f.Stride[1]

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := img.PixOffset(col, row)
			r := int32(img.Pix[i])
			g := int32(img.Pix[i+1])
			b := int32(img.Pix[i+2])

			y[row*f.Stride[0]+col] = clampByte(((66*r + 129*g + 25*b + 128) >> 8) + 16)

			if row%2 == 0 && col%2 == 0 {
				ci := (row/2)*cStride + col/2
				u[ci] = clampByte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
				v[ci] = clampByte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			}
		}
	}
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// AudioSamples represents raw interleaved S16 PCM.
type AudioSamples struct {
	Data        []byte // Interleaved little-endian S16 sample data
	SampleRate  int    // Sample rate (48000 throughout the pipeline)
	Channels    int    // Number of channels (2 throughout the pipeline)
	SampleCount int    // Number of samples per channel
	Timestamp   int64  // Presentation timestamp in nanoseconds
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Timestamp:   s.Timestamp,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}

// EncodedFrame holds one encoded video frame.
type EncodedFrame struct {
	Data     []byte // Encoded bitstream data
	Keyframe bool   // True when the frame is independently decodable
	PTS      int64  // Presentation timestamp in nanoseconds
	Duration int64  // Frame duration in nanoseconds
}

// EncodedAudio holds one encoded audio frame.
type EncodedAudio struct {
	Data     []byte // Encoded data (Opus packet or raw PCM block)
	PTS      int64  // Presentation timestamp in nanoseconds
	Duration int64  // Frame duration in nanoseconds
}
