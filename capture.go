package slidecast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

// ErrRecorderStop is returned when finalizing the capture pipeline does
// not complete within the stop watchdog.
var ErrRecorderStop = errors.New("recorder did not stop in time")

// captureStopTimeout bounds the encoder flush and container finalization.
const captureStopTimeout = 10 * time.Second

// CaptureResult is the finalized container blob.
type CaptureResult struct {
	Data      []byte
	Container Container
	MIMEType  string
}

// muxer sinks encoded frames into an in-memory container.
type muxer interface {
	writeVideo(f *EncodedFrame) error
	writeAudio(a *EncodedAudio) error
	finish() ([]byte, error)
}

// CapturePipeline owns the encoder pair and the container writer for one
// render session. Codec and container come from the session Capabilities,
// resolved once before the first frame.
type CapturePipeline struct {
	videoCodec VideoCodec
	audioCodec AudioCodec
	container  Container

	video VideoEncoder
	audio AudioEncoder
	mux   muxer

	// PCM is rebuffered to the audio encoder's granule.
	pcmPending []byte
	pcmPTS     int64

	logger  *slog.Logger
	stopped bool
}

// newCapturePipeline resolves codecs against the capabilities and opens
// the encoders and container writer.
func newCapturePipeline(caps *Capabilities, width, height, fps int, logger *slog.Logger) (*CapturePipeline, error) {
	videoCodec := caps.pickVideoCodec()
	audioCodec := caps.pickAudioCodec(videoCodec)
	container := caps.resolveContainer(videoCodec, audioCodec)

	video, err := NewVideoEncoder(DefaultVideoEncoderConfig(videoCodec, width, height))
	if err != nil {
		return nil, fmt.Errorf("video encoder: %w", err)
	}
	audio, err := NewAudioEncoder(DefaultAudioEncoderConfig(audioCodec))
	if err != nil {
		video.Close()
		return nil, fmt.Errorf("audio encoder: %w", err)
	}

	var mux muxer
	switch container {
	case ContainerMP4:
		mux, err = newFMP4Muxer(width, height, fps)
	default:
		mux, err = newMatroskaMuxer(videoCodec, audioCodec, width, height, fps)
	}
	if err != nil {
		video.Close()
		audio.Close()
		return nil, fmt.Errorf("container writer: %w", err)
	}

	logger.Debug("capture pipeline ready",
		"video", videoCodec.String(), "audio", audioCodec.String(), "container", container.String())

	return &CapturePipeline{
		videoCodec: videoCodec,
		audioCodec: audioCodec,
		container:  container,
		video:      video,
		audio:      audio,
		mux:        mux,
		logger:     logger,
	}, nil
}

// Container reports the container the pipeline writes.
func (p *CapturePipeline) Container() Container { return p.container }

// WriteFrame encodes and muxes one raw frame.
func (p *CapturePipeline) WriteFrame(frame *VideoFrame) error {
	encoded, err := p.video.Encode(frame)
	if err != nil {
		return err
	}
	if encoded == nil {
		return nil // encoder is buffering
	}
	return p.mux.writeVideo(encoded)
}

// WriteSamples encodes and muxes raw PCM, rebuffering to the audio
// encoder's granule when it has one.
func (p *CapturePipeline) WriteSamples(samples *AudioSamples) error {
	granule := p.audio.FrameSize()
	if granule == 0 {
		encoded, err := p.audio.Encode(samples)
		if err != nil {
			return err
		}
		return p.mux.writeAudio(encoded)
	}

	if len(p.pcmPending) == 0 {
		p.pcmPTS = samples.Timestamp
	}
	p.pcmPending = append(p.pcmPending, samples.Data...)

	granuleBytes := granule * samples.Channels * 2
	granuleNs := int64(granule) * 1e9 / int64(samples.SampleRate)
	for len(p.pcmPending) >= granuleBytes {
		chunk := &AudioSamples{
			Data:        p.pcmPending[:granuleBytes],
			SampleRate:  samples.SampleRate,
			Channels:    samples.Channels,
			SampleCount: granule,
			Timestamp:   p.pcmPTS,
		}
		encoded, err := p.audio.Encode(chunk)
		if err != nil {
			return err
		}
		if err := p.mux.writeAudio(encoded); err != nil {
			return err
		}
		p.pcmPending = p.pcmPending[granuleBytes:]
		p.pcmPTS += granuleNs
	}
	return nil
}

// Stop flushes the encoders, finalizes the container and returns the blob.
// Finalization runs under a watchdog so a wedged flush cannot hang the
// session past the deadline.
func (p *CapturePipeline) Stop(ctx context.Context) (*CaptureResult, error) {
	if p.stopped {
		return nil, errors.New("capture already stopped")
	}
	p.stopped = true

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := p.finalize()
		ch <- result{data, err}
	}()

	timer := time.NewTimer(captureStopTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &CaptureResult{
			Data:      r.data,
			Container: p.container,
			MIMEType:  p.container.MimeType(),
		}, nil
	case <-timer.C:
		return nil, ErrRecorderStop
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Abort closes the encoders without finalizing the container. Used when
// the frame loop fails mid-render.
func (p *CapturePipeline) Abort() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.video.Close()
	p.audio.Close()
}

func (p *CapturePipeline) finalize() ([]byte, error) {
	defer p.video.Close()
	defer p.audio.Close()

	// Pad a trailing partial granule with silence so no audio is dropped.
	if granule := p.audio.FrameSize(); granule > 0 && len(p.pcmPending) > 0 {
		granuleBytes := granule * mixChannels * 2
		pad := make([]byte, granuleBytes-len(p.pcmPending))
		if err := p.WriteSamplesTail(pad); err != nil {
			return nil, err
		}
	}

	frames, err := p.video.Flush()
	if err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := p.mux.writeVideo(f); err != nil {
			return nil, err
		}
	}

	return p.mux.finish()
}

// WriteSamplesTail appends raw silence bytes to complete the last granule.
func (p *CapturePipeline) WriteSamplesTail(pad []byte) error {
	return p.WriteSamples(&AudioSamples{
		Data:        pad,
		SampleRate:  mixSampleRate,
		Channels:    mixChannels,
		SampleCount: len(pad) / (mixChannels * 2),
		Timestamp:   p.pcmPTS + int64(len(p.pcmPending)/(mixChannels*2))*1e9/mixSampleRate,
	})
}

// Stats reports video encoder metrics for progress logging.
func (p *CapturePipeline) Stats() EncoderStats { return p.video.Stats() }

// --- Matroska / WebM writer ---

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

// matroskaMuxer writes a SimpleBlock-based WebM/Matroska stream. Strict
// WebM and the Matroska fallback share the writer; only the codec IDs and
// the reported MIME type differ.
type matroskaMuxer struct {
	buf     *bytes.Buffer
	writers []webm.BlockWriteCloser
}

func newMatroskaMuxer(video VideoCodec, audio AudioCodec, width, height, fps int) (*matroskaMuxer, error) {
	buf := &bytes.Buffer{}
	writers, err := webm.NewSimpleBlockWriter(nopWriteCloser{buf}, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         video.MatroskaCodecID(),
			TrackType:       1,
			DefaultDuration: uint64(time.Second / time.Duration(fps)),
			Video: &webm.Video{
				PixelWidth:  uint64(width),
				PixelHeight: uint64(height),
			},
		},
		{
			Name:        "Audio",
			TrackNumber: 2,
			TrackUID:    2,
			CodecID:     audio.MatroskaCodecID(),
			TrackType:   2,
			Audio: &webm.Audio{
				SamplingFrequency: float64(mixSampleRate),
				Channels:          uint64(mixChannels),
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return &matroskaMuxer{buf: buf, writers: writers}, nil
}

func (m *matroskaMuxer) writeVideo(f *EncodedFrame) error {
	_, err := m.writers[0].Write(f.Keyframe, f.PTS/int64(time.Millisecond), f.Data)
	return err
}

func (m *matroskaMuxer) writeAudio(a *EncodedAudio) error {
	_, err := m.writers[1].Write(true, a.PTS/int64(time.Millisecond), a.Data)
	return err
}

func (m *matroskaMuxer) finish() ([]byte, error) {
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	return m.buf.Bytes(), nil
}

// --- Fragmented MP4 writer ---

const (
	fmp4VideoTrackID   = 1
	fmp4AudioTrackID   = 2
	fmp4VideoTimeScale = 90000
)

// fmp4Muxer writes an init segment plus one fragment per track. Samples
// are buffered in memory until finish since the whole render is an
// in-memory blob anyway.
type fmp4Muxer struct {
	init         *fmp4.Init
	videoSamples []*fmp4.PartSample
	audioSamples []*fmp4.PartSample
}

func newFMP4Muxer(width, height, fps int) (*fmp4Muxer, error) {
	return &fmp4Muxer{
		init: &fmp4.Init{
			Tracks: []*fmp4.InitTrack{
				{
					ID:        fmp4VideoTrackID,
					TimeScale: fmp4VideoTimeScale,
					Codec: &fmp4.CodecVP9{
						Width:             width,
						Height:            height,
						Profile:           0,
						BitDepth:          8,
						ChromaSubsampling: 1,
					},
				},
				{
					ID:        fmp4AudioTrackID,
					TimeScale: mixSampleRate,
					Codec: &fmp4.CodecOpus{
						ChannelCount: mixChannels,
					},
				},
			},
		},
	}, nil
}

func (m *fmp4Muxer) writeVideo(f *EncodedFrame) error {
	m.videoSamples = append(m.videoSamples, &fmp4.PartSample{
		Duration:        uint32(f.Duration * fmp4VideoTimeScale / int64(time.Second)),
		IsNonSyncSample: !f.Keyframe,
		Payload:         f.Data,
	})
	return nil
}

func (m *fmp4Muxer) writeAudio(a *EncodedAudio) error {
	m.audioSamples = append(m.audioSamples, &fmp4.PartSample{
		Duration: uint32(a.Duration * mixSampleRate / int64(time.Second)),
		Payload:  a.Data,
	})
	return nil
}

func (m *fmp4Muxer) finish() ([]byte, error) {
	var buf seekablebuffer.Buffer
	if err := m.init.Marshal(&buf); err != nil {
		return nil, err
	}

	part := &fmp4.Part{
		Tracks: []*fmp4.PartTrack{
			{ID: fmp4VideoTrackID, BaseTime: 0, Samples: m.videoSamples},
			{ID: fmp4AudioTrackID, BaseTime: 0, Samples: m.audioSamples},
		},
	}
	if err := part.Marshal(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
