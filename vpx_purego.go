//go:build (darwin || linux) && !novpx

// VP8/VP9 encoding via libslidecast_vpx using purego.
//
// libslidecast_vpx is a thin wrapper around libvpx with a primitive-only
// API, loaded dynamically at runtime. When the library cannot be found the
// codecs report unavailable and capture falls back to the pure-Go path.

package slidecast

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	vpxOnce    sync.Once
	vpxHandle  uintptr
	vpxInitErr error
)

// libslidecast_vpx function pointers
var (
	vpxEncoderCreate  func(codec, width, height, fps, bitrateBps, quality int32) uint64
	vpxEncoderEncode  func(enc uint64, y, u, v uintptr, strideY, strideUV int32, ptsNs int64, forceKey int32, out uintptr, outCap int32, keyframe uintptr) int32
	vpxEncoderFlush   func(enc uint64, out uintptr, outCap int32, keyframe uintptr) int32
	vpxEncoderDestroy func(enc uint64)
	vpxGetError       func() uintptr
)

const (
	vpxWrapperCodecVP8 = 8
	vpxWrapperCodecVP9 = 9
)

func init() {
	registerVideoEncoder(VideoCodecVP8, func(config VideoEncoderConfig) (VideoEncoder, error) {
		return newVPXEncoder(config)
	})
	registerVideoEncoder(VideoCodecVP9, func(config VideoEncoderConfig) (VideoEncoder, error) {
		return newVPXEncoder(config)
	})
}

// vpxAvailable probes the wrapper library once and caches the result.
func vpxAvailable() bool {
	return loadVPX() == nil
}

func loadVPX() error {
	vpxOnce.Do(func() {
		var lastErr error
		for _, path := range codecLibPaths("libslidecast_vpx") {
			handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				lastErr = err
				continue
			}
			if err := registerVPXSymbols(handle); err != nil {
				purego.Dlclose(handle)
				lastErr = err
				continue
			}
			vpxHandle = handle
			return
		}
		if lastErr == nil {
			lastErr = errors.New("libslidecast_vpx not found")
		}
		vpxInitErr = fmt.Errorf("load libslidecast_vpx: %w", lastErr)
	})
	return vpxInitErr
}

func registerVPXSymbols(handle uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libslidecast_vpx symbol missing: %v", r)
		}
	}()
	purego.RegisterLibFunc(&vpxEncoderCreate, handle, "slidecast_vpx_encoder_create")
	purego.RegisterLibFunc(&vpxEncoderEncode, handle, "slidecast_vpx_encoder_encode")
	purego.RegisterLibFunc(&vpxEncoderFlush, handle, "slidecast_vpx_encoder_flush")
	purego.RegisterLibFunc(&vpxEncoderDestroy, handle, "slidecast_vpx_encoder_destroy")
	purego.RegisterLibFunc(&vpxGetError, handle, "slidecast_vpx_get_error")
	return nil
}

func vpxLastError() error {
	if vpxGetError == nil {
		return errors.New("vpx: unknown error")
	}
	msg := goStringFromPtr(vpxGetError())
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("vpx: %s", msg)
}

// vpxEncoder encodes I420 frames through the native wrapper.
type vpxEncoder struct {
	handle uint64
	codec  VideoCodec
	config VideoEncoderConfig
	out    []byte

	frames atomic.Uint64
	bytes  atomic.Uint64
	mu     sync.Mutex
	closed bool
}

func newVPXEncoder(config VideoEncoderConfig) (*vpxEncoder, error) {
	if err := loadVPX(); err != nil {
		return nil, err
	}

	wrapperCodec := int32(vpxWrapperCodecVP8)
	if config.Codec == VideoCodecVP9 {
		wrapperCodec = vpxWrapperCodecVP9
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.BitrateBps <= 0 {
		config.BitrateBps = 4_000_000
	}

	handle := vpxEncoderCreate(wrapperCodec,
		int32(config.Width), int32(config.Height),
		int32(config.FPS), int32(config.BitrateBps), int32(config.Quality))
	if handle == 0 {
		return nil, vpxLastError()
	}

	return &vpxEncoder{
		handle: handle,
		codec:  config.Codec,
		config: config,
		// Worst case for a keyframe; the wrapper reports overflow as an error.
		out: make([]byte, I420Size(config.Width, config.Height)+1024),
	}, nil
}

func (e *vpxEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("vpx: encoder closed")
	}

	var keyframe int32
	n := vpxEncoderEncode(e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]), int32(frame.Stride[1]),
		frame.Timestamp, 0,
		uintptr(unsafe.Pointer(&e.out[0])), int32(len(e.out)),
		uintptr(unsafe.Pointer(&keyframe)))
	if n < 0 {
		return nil, vpxLastError()
	}
	if n == 0 {
		return nil, nil // Encoder buffering
	}

	data := make([]byte, n)
	copy(data, e.out[:n])

	e.frames.Add(1)
	e.bytes.Add(uint64(n))

	return &EncodedFrame{
		Data:     data,
		Keyframe: keyframe != 0,
		PTS:      frame.Timestamp,
		Duration: frame.Duration,
	}, nil
}

func (e *vpxEncoder) Flush() ([]*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil
	}

	var out []*EncodedFrame
	for {
		var keyframe int32
		n := vpxEncoderFlush(e.handle,
			uintptr(unsafe.Pointer(&e.out[0])), int32(len(e.out)),
			uintptr(unsafe.Pointer(&keyframe)))
		if n < 0 {
			return out, vpxLastError()
		}
		if n == 0 {
			return out, nil
		}
		data := make([]byte, n)
		copy(data, e.out[:n])
		out = append(out, &EncodedFrame{Data: data, Keyframe: keyframe != 0})
	}
}

func (e *vpxEncoder) Codec() VideoCodec { return e.codec }

func (e *vpxEncoder) Stats() EncoderStats {
	return EncoderStats{FramesEncoded: e.frames.Load(), BytesEncoded: e.bytes.Load()}
}

func (e *vpxEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		vpxEncoderDestroy(e.handle)
		e.closed = true
	}
	return nil
}
