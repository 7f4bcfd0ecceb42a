//go:build (darwin || linux) && !noopus

// Opus encoding via libslidecast_opus using purego.
//
// libslidecast_opus wraps libopus with a primitive-only API, loaded
// dynamically at runtime. Absence of the library downgrades audio to the
// raw PCM fallback track.

package slidecast

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	opusOnce    sync.Once
	opusHandle  uintptr
	opusInitErr error
)

// libslidecast_opus function pointers
var (
	opusEncoderCreate  func(sampleRate, channels, bitrateBps int32) uint64
	opusEncoderEncode  func(enc uint64, pcm uintptr, frameSize int32, out uintptr, outCap int32) int32
	opusEncoderDestroy func(enc uint64)
	opusGetError       func() uintptr
)

// opusFrameSize is the fixed 20ms granule the encoder consumes at 48kHz.
const opusFrameSize = 960

func init() {
	registerAudioEncoder(AudioCodecOpus, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return newOpusEncoder(config)
	})
}

// opusAvailable probes the wrapper library once and caches the result.
func opusAvailable() bool {
	return loadOpus() == nil
}

func loadOpus() error {
	opusOnce.Do(func() {
		var lastErr error
		for _, path := range codecLibPaths("libslidecast_opus") {
			handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				lastErr = err
				continue
			}
			if err := registerOpusSymbols(handle); err != nil {
				purego.Dlclose(handle)
				lastErr = err
				continue
			}
			opusHandle = handle
			return
		}
		if lastErr == nil {
			lastErr = errors.New("libslidecast_opus not found")
		}
		opusInitErr = fmt.Errorf("load libslidecast_opus: %w", lastErr)
	})
	return opusInitErr
}

func registerOpusSymbols(handle uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libslidecast_opus symbol missing: %v", r)
		}
	}()
	purego.RegisterLibFunc(&opusEncoderCreate, handle, "slidecast_opus_encoder_create")
	purego.RegisterLibFunc(&opusEncoderEncode, handle, "slidecast_opus_encoder_encode")
	purego.RegisterLibFunc(&opusEncoderDestroy, handle, "slidecast_opus_encoder_destroy")
	purego.RegisterLibFunc(&opusGetError, handle, "slidecast_opus_get_error")
	return nil
}

func opusLastError() error {
	if opusGetError == nil {
		return errors.New("opus: unknown error")
	}
	msg := goStringFromPtr(opusGetError())
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("opus: %s", msg)
}

// opusEncoderImpl encodes 20ms S16 PCM granules through the native wrapper.
type opusEncoderImpl struct {
	handle uint64
	config AudioEncoderConfig
	out    []byte

	mu     sync.Mutex
	closed bool
}

func newOpusEncoder(config AudioEncoderConfig) (*opusEncoderImpl, error) {
	if err := loadOpus(); err != nil {
		return nil, err
	}
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.BitrateBps == 0 {
		config.BitrateBps = 128_000
	}

	handle := opusEncoderCreate(int32(config.SampleRate), int32(config.Channels), int32(config.BitrateBps))
	if handle == 0 {
		return nil, opusLastError()
	}
	return &opusEncoderImpl{
		handle: handle,
		config: config,
		out:    make([]byte, 4000), // Opus recommended max packet size
	}, nil
}

func (e *opusEncoderImpl) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("opus: encoder closed")
	}
	if samples.SampleCount != opusFrameSize {
		return nil, fmt.Errorf("opus: expected %d samples per channel, got %d", opusFrameSize, samples.SampleCount)
	}

	n := opusEncoderEncode(e.handle,
		uintptr(unsafe.Pointer(&samples.Data[0])),
		int32(samples.SampleCount),
		uintptr(unsafe.Pointer(&e.out[0])), int32(len(e.out)))
	if n < 0 {
		return nil, opusLastError()
	}

	data := make([]byte, n)
	copy(data, e.out[:n])

	return &EncodedAudio{
		Data:     data,
		PTS:      samples.Timestamp,
		Duration: int64(samples.SampleCount) * 1e9 / int64(samples.SampleRate),
	}, nil
}

func (e *opusEncoderImpl) FrameSize() int { return opusFrameSize }

func (e *opusEncoderImpl) Codec() AudioCodec { return AudioCodecOpus }

func (e *opusEncoderImpl) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		opusEncoderDestroy(e.handle)
		e.closed = true
	}
	return nil
}
