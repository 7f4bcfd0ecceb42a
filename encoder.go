package slidecast

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Common encoder errors.
var (
	ErrCodecNotSupported = errors.New("codec not supported")
	ErrNotSupported      = errors.New("operation not supported")
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec      VideoCodec
	Width      int // Frame width
	Height     int // Frame height
	FPS        int // Target framerate
	BitrateBps int // Target bitrate in bits per second
	Quality    int // Codec-specific quality (0-63 for VP8/VP9, 1-100 for MJPEG)
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:      codec,
		Width:      width,
		Height:     height,
		FPS:        30,
		BitrateBps: 4_000_000,
		Quality:    32,
	}
}

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded uint64
	BytesEncoded  uint64
}

// VideoEncoder encodes raw I420 frames to a compressed bitstream.
type VideoEncoder interface {
	io.Closer

	// Encode encodes one frame. Returns nil if the encoder is buffering.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// Flush flushes any buffered frames at end of stream.
	Flush() ([]*EncodedFrame, error)

	// Codec returns the codec type.
	Codec() VideoCodec

	// Stats returns encoding statistics.
	Stats() EncoderStats
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec      AudioCodec
	SampleRate int // 48000 throughout the pipeline
	Channels   int // 2 throughout the pipeline
	BitrateBps int // Target bitrate in bps (compressed codecs only)
}

// DefaultAudioEncoderConfig returns a default audio encoder configuration.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:      codec,
		SampleRate: 48000,
		Channels:   2,
		BitrateBps: 128_000,
	}
}

// AudioEncoder encodes raw PCM to a compressed bitstream.
type AudioEncoder interface {
	io.Closer

	// Encode encodes exactly FrameSize samples per channel.
	Encode(samples *AudioSamples) (*EncodedAudio, error)

	// FrameSize returns the samples-per-channel granule the encoder
	// expects per Encode call. Zero means any size is accepted.
	FrameSize() int

	// Codec returns the codec type.
	Codec() AudioCodec
}

// --- Registry ---

type videoEncoderFactory func(VideoEncoderConfig) (VideoEncoder, error)
type audioEncoderFactory func(AudioEncoderConfig) (AudioEncoder, error)

type encoderRegistry struct {
	mu    sync.RWMutex
	video map[VideoCodec]videoEncoderFactory
	audio map[AudioCodec]audioEncoderFactory
}

var globalEncoderRegistry = &encoderRegistry{
	video: make(map[VideoCodec]videoEncoderFactory),
	audio: make(map[AudioCodec]audioEncoderFactory),
}

func registerVideoEncoder(codec VideoCodec, factory videoEncoderFactory) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()
	globalEncoderRegistry.video[codec] = factory
}

func registerAudioEncoder(codec AudioCodec, factory audioEncoderFactory) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()
	globalEncoderRegistry.audio[codec] = factory
}

// NewVideoEncoder creates a video encoder for the configured codec.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	factory, ok := globalEncoderRegistry.video[config.Codec]
	globalEncoderRegistry.mu.RUnlock()

	if !ok || !VideoEncoderAvailable(config.Codec) {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// NewAudioEncoder creates an audio encoder for the configured codec.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	factory, ok := globalEncoderRegistry.audio[config.Codec]
	globalEncoderRegistry.mu.RUnlock()

	if !ok || !AudioEncoderAvailable(config.Codec) {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// VideoEncoderAvailable reports whether the codec can encode at runtime.
// Native codecs probe their shared library on first call.
func VideoEncoderAvailable(codec VideoCodec) bool {
	switch codec {
	case VideoCodecMJPEG:
		return true
	case VideoCodecVP8, VideoCodecVP9:
		return vpxAvailable()
	default:
		return false
	}
}

// AudioEncoderAvailable reports whether the codec can encode at runtime.
func AudioEncoderAvailable(codec AudioCodec) bool {
	switch codec {
	case AudioCodecPCM:
		return true
	case AudioCodecOpus:
		return opusAvailable()
	default:
		return false
	}
}
