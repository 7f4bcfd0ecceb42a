package slidecast

import (
	"bytes"
	"image/jpeg"
	"sync/atomic"
)

func init() {
	registerVideoEncoder(VideoCodecMJPEG, func(config VideoEncoderConfig) (VideoEncoder, error) {
		return newMJPEGEncoder(config), nil
	})
	registerAudioEncoder(AudioCodecPCM, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return &pcmEncoder{config: config}, nil
	})
}

// mjpegEncoder is the pure-Go fallback video encoder. Every frame is an
// independently decodable JPEG, so capture works on hosts without any
// native codec library.
type mjpegEncoder struct {
	config  VideoEncoderConfig
	buf     bytes.Buffer
	frames  atomic.Uint64
	bytes   atomic.Uint64
	quality int
}

func newMJPEGEncoder(config VideoEncoderConfig) *mjpegEncoder {
	quality := config.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &mjpegEncoder{config: config, quality: quality}
}

func (e *mjpegEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.buf.Reset()
	// The YCbCr view aliases the I420 planes, so this encodes without a
	// color conversion pass.
	if err := jpeg.Encode(&e.buf, frame.YCbCr(), &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}

	data := make([]byte, e.buf.Len())
	copy(data, e.buf.Bytes())

	e.frames.Add(1)
	e.bytes.Add(uint64(len(data)))

	return &EncodedFrame{
		Data:     data,
		Keyframe: true,
		PTS:      frame.Timestamp,
		Duration: frame.Duration,
	}, nil
}

func (e *mjpegEncoder) Flush() ([]*EncodedFrame, error) { return nil, nil }

func (e *mjpegEncoder) Codec() VideoCodec { return VideoCodecMJPEG }

func (e *mjpegEncoder) Stats() EncoderStats {
	return EncoderStats{FramesEncoded: e.frames.Load(), BytesEncoded: e.bytes.Load()}
}

func (e *mjpegEncoder) Close() error { return nil }

// pcmEncoder passes S16 PCM through unchanged (A_PCM/INT/LIT in Matroska).
type pcmEncoder struct {
	config AudioEncoderConfig
}

func (e *pcmEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	data := make([]byte, len(samples.Data))
	copy(data, samples.Data)
	return &EncodedAudio{
		Data:     data,
		PTS:      samples.Timestamp,
		Duration: int64(samples.SampleCount) * 1e9 / int64(samples.SampleRate),
	}, nil
}

func (e *pcmEncoder) FrameSize() int { return 0 }

func (e *pcmEncoder) Codec() AudioCodec { return AudioCodecPCM }

func (e *pcmEncoder) Close() error { return nil }
